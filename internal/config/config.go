package config

import (
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig              `mapstructure:"server"`
	Database    DatabaseConfig            `mapstructure:"database"`
	Stellar     StellarConfig             `mapstructure:"stellar"`
	Redis       RedisConfig               `mapstructure:"redis"`
	Task        TaskConfig                `mapstructure:"task"`
	Attestation AttestationConfig         `mapstructure:"attestation"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Log         LogConfig                 `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// StellarConfig Stellar账本配置
type StellarConfig struct {
	HorizonURL string                   `mapstructure:"horizon_url"` // Horizon节点URL
	Network    string                   `mapstructure:"network"`     // 网络 (testnet, public)
	Accounts   map[string]AccountConfig `mapstructure:"accounts"`    // 平台账户配置
}

// AccountConfig 单个平台账户配置
type AccountConfig struct {
	Address string `mapstructure:"address"` // 账户公钥地址
	Seed    string `mapstructure:"seed"`    // 签名私钥（支付账户需要）
	Watch   bool   `mapstructure:"watch"`   // 是否监听入账
}

// RedisConfig Redis事件通知配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"` // 事件发布频道
}

type TaskConfig struct {
	ReconcileInterval      int `mapstructure:"reconcile_interval"`       // 秒
	WalletSyncInterval     int `mapstructure:"wallet_sync_interval"`     // 秒
	AnalyticsInterval      int `mapstructure:"analytics_interval"`       // 秒
	CampaignSettleInterval int `mapstructure:"campaign_settle_interval"` // 秒
	FetchLimit             int `mapstructure:"fetch_limit"`              // 单页拉取交易数
	MaxPages               int `mapstructure:"max_pages"`                // 单轮对账最大分页数
	DonationExpiryHours    int `mapstructure:"donation_expiry_hours"`    // 捐赠意向过期时间（小时）
}

// AttestationConfig 里程碑释放认证配置
type AttestationConfig struct {
	PublicKey string `mapstructure:"public_key"` // 认证签名公钥（Stellar地址格式）
}

// ProviderConfig 法币支付渠道配置
type ProviderConfig struct {
	Secret string  `mapstructure:"secret"` // Webhook签名密钥
	Rate   float64 `mapstructure:"rate"`   // 法币->XLM参考汇率
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.Config 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.Config 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.Config 接口
func (l LogConfig) GetFile() string {
	return l.File
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/fhs")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "fundhub")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("stellar.horizon_url", "https://horizon-testnet.stellar.org")
	viper.SetDefault("stellar.network", "testnet")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.channel", "fundhub:events")
	viper.SetDefault("task.reconcile_interval", 120)
	viper.SetDefault("task.wallet_sync_interval", 300)
	viper.SetDefault("task.analytics_interval", 600)
	viper.SetDefault("task.campaign_settle_interval", 300)
	viper.SetDefault("task.fetch_limit", 200)
	viper.SetDefault("task.max_pages", 5)
	viper.SetDefault("task.donation_expiry_hours", 24)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
