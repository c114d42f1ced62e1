package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/logger"
)

// 支付渠道回调状态
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event 法币支付渠道回调事件
type Event struct {
	PaymentId   string `json:"payment_id"`
	AmountMinor int64  `json:"amount"` // 法币最小单位金额
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// Provider 法币支付渠道
type Provider struct {
	name   string
	secret []byte
	rate   float64
}

// Name 渠道名称
func (p *Provider) Name() string {
	return p.name
}

// Rate 法币->XLM参考汇率
func (p *Provider) Rate() float64 {
	return p.rate
}

// VerifySignature 校验Webhook签名
// 签名是对原始请求体的HMAC-SHA256十六进制编码，常量时间比较
func (p *Provider) VerifySignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// Sign 计算负载签名（联调与测试用）
func (p *Provider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseEvent 解析回调事件负载
func (p *Provider) ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse %s webhook payload: %w", p.name, err)
	}
	if event.PaymentId == "" {
		return nil, errors.New("webhook payload missing payment_id")
	}
	if event.Status != StatusSucceeded && event.Status != StatusFailed {
		return nil, fmt.Errorf("unknown webhook status: %s", event.Status)
	}
	return &event, nil
}

// Registry 支付渠道注册表
type Registry struct {
	providers map[string]*Provider
}

// NewRegistry 从配置构建渠道注册表，缺少签名密钥的渠道不注册
func NewRegistry(cfgs map[string]config.ProviderConfig) *Registry {
	registry := &Registry{providers: make(map[string]*Provider)}
	for name, cfg := range cfgs {
		if cfg.Secret == "" {
			logger.Warn("Skipping provider %s: no webhook secret configured", name)
			continue
		}
		registry.providers[name] = &Provider{
			name:   name,
			secret: []byte(cfg.Secret),
			rate:   cfg.Rate,
		}
		logger.Info("Registered payment provider: %s", name)
	}
	return registry
}

// Get 按名称获取渠道
func (r *Registry) Get(name string) (*Provider, bool) {
	provider, exists := r.providers[name]
	return provider, exists
}
