package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/redis/go-redis/v9"
)

// 状态流转事件类型
const (
	EventDonationConfirmed = "donation.confirmed"
	EventDonationFailed    = "donation.failed"
	EventMilestoneReleased = "milestone.released"
	EventCampaignCompleted = "campaign.completed"
)

// Event 状态流转事件
type Event struct {
	Type    string                 `json:"type"`
	At      time.Time              `json:"at"`
	Payload map[string]interface{} `json:"payload"`
}

// NewEvent 创建事件
func NewEvent(eventType string, payload map[string]interface{}) Event {
	return Event{Type: eventType, At: time.Now(), Payload: payload}
}

// Notifier 状态流转事件通知器
// 通知失败不影响主流程，下游消费方自行保证至少一次投递之外的语义
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// RedisNotifier 基于Redis发布订阅的通知器
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

// NewRedisNotifier 创建Redis通知器并测试连接
func NewRedisNotifier(cfg config.RedisConfig) (*RedisNotifier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis notifier connected: addr=%s, channel=%s", cfg.Addr, cfg.Channel)
	return &RedisNotifier{rdb: rdb, channel: cfg.Channel}, nil
}

// Publish 发布事件到配置的频道
func (n *RedisNotifier) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}
	return nil
}

// Close 关闭Redis连接
func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}

// NopNotifier 空通知器，未配置Redis时使用
type NopNotifier struct{}

// Publish 丢弃事件，仅记录调试日志
func (NopNotifier) Publish(_ context.Context, event Event) error {
	logger.Debug("Event dropped (no notifier configured): %s", event.Type)
	return nil
}
