package main

import (
	"testing"

	"go.uber.org/zap"

	"github.com/fxxsj/work-order-sub001/internal/config"
	"github.com/fxxsj/work-order-sub001/internal/notify"
)

func TestInitPublisherFallback(t *testing.T) {
	logger := zap.NewNop()

	if _, ok := initPublisher(config.RabbitMQConfig{}, config.RedisConfig{}, logger).(notify.NopPublisher); !ok {
		t.Error("expected nop publisher without MQ or Redis")
	}

	// 只配 REDIS_URL 时用 Redis 频道做事件扇出
	pub := initPublisher(config.RabbitMQConfig{}, config.RedisConfig{URL: "redis://localhost:6379/0"}, logger)
	if _, ok := pub.(*notify.RedisPublisher); !ok {
		t.Errorf("expected redis publisher, got %T", pub)
	}

	// URL 解析失败回落到空实现
	pub = initPublisher(config.RabbitMQConfig{}, config.RedisConfig{URL: "::bad::"}, logger)
	if _, ok := pub.(notify.NopPublisher); !ok {
		t.Errorf("expected nop fallback, got %T", pub)
	}
}
