package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fxxsj/work-order-sub001/internal/repository"
)

// generateOrderNumber 在事务内生成施工单号，格式 WO + YYYYMM + 四位流水。
// 依赖前缀行锁串行化同月并发创建，超过 9999 时顺延扩位。
func generateOrderNumber(ctx context.Context, repo *repository.WorkOrderRepository, now time.Time) (string, error) {
	prefix := "WO" + now.Format("200601")

	latest, err := repo.MaxOrderNumberWithPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("查询最大单号失败: %w", err)
	}

	seq := 1
	if latest != "" {
		tail := strings.TrimPrefix(latest, prefix)
		n, err := strconv.Atoi(tail)
		if err != nil {
			return "", fmt.Errorf("单号格式异常: %s", latest)
		}
		seq = n + 1
	}

	return fmt.Sprintf("%s%04d", prefix, seq), nil
}
