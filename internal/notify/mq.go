package notify

import (
	"context"
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher 对外事件发布接口
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// NopPublisher 未配置 RABBITMQ_URL 时的空实现
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, _ string, _ any) error { return nil }

// RabbitPublisher 将事件以 JSON 发布到 topic 交换机
type RabbitPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

func NewRabbitPublisher(url, exchange string, logger *zap.Logger) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.logger.Warn("关闭 MQ 通道失败", zap.Error(err))
	}
	return p.conn.Close()
}

// RedisPublisher 通过 Redis 频道做事件扇出，频道名为 前缀+事件类型。
// 没有 MQ 的部署里 REDIS_URL 同时承担缓存与通知分发。
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channelPrefix string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channelPrefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel+routingKey, body).Err()
}

func (p *RedisPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
