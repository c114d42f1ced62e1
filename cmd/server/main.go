package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/kevrollin/fhs/internal/attest"
	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/database"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/kevrollin/fhs/internal/provider"
	"github.com/kevrollin/fhs/internal/router"
	"github.com/kevrollin/fhs/internal/stellar"
	"github.com/kevrollin/fhs/internal/task"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	logger.Setup(cfg.Log)
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化Stellar客户端
	client, err := stellar.Init(cfg.Stellar)
	if err != nil {
		log.Fatalf("Failed to initialize stellar client: %v", err)
	}

	// 初始化审核签名校验器
	verifier, err := attest.NewStellarVerifier(cfg.Attestation.PublicKey)
	if err != nil {
		log.Fatalf("Failed to initialize attestation verifier: %v", err)
	}

	// 初始化事件通知器
	var notifier notify.Notifier
	if cfg.Redis.Enabled {
		redisNotifier, err := notify.NewRedisNotifier(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to initialize redis notifier: %v", err)
		}
		defer redisNotifier.Close()
		notifier = redisNotifier
	} else {
		notifier = notify.NopNotifier{}
	}

	// 初始化支付提供方注册表
	registry := provider.NewRegistry(cfg.Providers)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(db, client, verifier, notifier, registry, cfg)

	// 启动定时任务
	manager := task.Start(db, client, notifier, cfg)
	defer manager.Stop()

	// 启动服务器
	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
