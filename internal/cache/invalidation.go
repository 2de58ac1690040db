package cache

import (
	"context"

	"go.uber.org/zap"
)

// Invalidator 收集事务内产生的失效键，提交后统一清除。
// 事务回滚时丢弃即可，缓存不会被误清。
type Invalidator struct {
	cache    Cache
	logger   *zap.Logger
	keys     map[string]bool
	prefixes map[string]bool
}

func NewInvalidator(cache Cache, logger *zap.Logger) *Invalidator {
	return &Invalidator{
		cache:    cache,
		logger:   logger,
		keys:     make(map[string]bool),
		prefixes: make(map[string]bool),
	}
}

// TaskChanged 任务变动后需要失效的键。操作员统计键带时间窗等维度，
// 按前缀整体清除。
func (inv *Invalidator) TaskChanged(departmentID, operatorID *string) {
	if departmentID != nil {
		inv.keys[KeyDeptWorkloadPrefix+*departmentID] = true
	}
	if operatorID != nil {
		inv.prefixes[KeyOperatorPrefix] = true
	}
	inv.prefixes[KeyDashboardPrefix] = true
}

// WorkOrderChanged 施工单变动后失效看板
func (inv *Invalidator) WorkOrderChanged() {
	inv.prefixes[KeyDashboardPrefix] = true
}

// Flush 事务提交后调用。缓存清除失败只记日志，不影响业务结果。
func (inv *Invalidator) Flush(ctx context.Context) {
	keys := make([]string, 0, len(inv.keys))
	for k := range inv.keys {
		keys = append(keys, k)
	}
	if err := inv.cache.Delete(ctx, keys...); err != nil {
		inv.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
	for p := range inv.prefixes {
		if err := inv.cache.DeletePrefix(ctx, p); err != nil {
			inv.logger.Warn("cache prefix invalidation failed", zap.String("prefix", p), zap.Error(err))
		}
	}
	inv.keys = make(map[string]bool)
	inv.prefixes = make(map[string]bool)
}
