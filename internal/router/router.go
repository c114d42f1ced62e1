package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kevrollin/fhs/internal/attest"
	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/handler"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/kevrollin/fhs/internal/provider"
	"gorm.io/gorm"
)

func Setup(db *gorm.DB, client ledger.Client, verifier attest.Verifier, notifier notify.Notifier, registry *provider.Registry, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "fundhub-service",
		})
	})

	// 支付提供方回调，签名在请求头，不走API版本组
	webhookHandler := handler.NewWebhookHandler(db, registry, notifier)
	r.POST("/webhooks/payments/:provider", webhookHandler.HandlePaymentWebhook)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 捐赠相关路由
		donationHandler := handler.NewDonationHandler(db, notifier)
		donations := v1.Group("/donations")
		{
			donations.POST("", donationHandler.CreateDonation)
			donations.GET("/:id", donationHandler.GetDonation)
		}

		// 项目维度的捐赠、里程碑与托管路由
		milestoneHandler := handler.NewMilestoneHandler(db, client, verifier, notifier)
		projects := v1.Group("/projects")
		{
			projects.GET("/:id/donations", donationHandler.GetProjectDonations)
			projects.POST("/:id/milestones", milestoneHandler.RegisterMilestone)
			projects.GET("/:id/milestones", milestoneHandler.GetProjectMilestones)
			projects.POST("/:id/escrow/deposits", milestoneHandler.RecordDeposit)
			projects.GET("/:id/escrow", milestoneHandler.GetEscrowStatus)
		}

		// 里程碑释放路由
		milestones := v1.Group("/milestones")
		{
			milestones.POST("/:id/release", milestoneHandler.ReleaseMilestone)
		}

		// 资助活动路由
		campaignHandler := handler.NewCampaignHandler(db, client, notifier)
		campaigns := v1.Group("/campaigns")
		{
			campaigns.POST("", campaignHandler.CreateCampaign)
			campaigns.GET("/:id", campaignHandler.GetCampaign)
			campaigns.POST("/:id/execute", campaignHandler.ExecuteCampaign)
			campaigns.POST("/:id/retry", campaignHandler.RetryCampaign)
			campaigns.POST("/:id/pause", campaignHandler.PauseCampaign)
			campaigns.POST("/:id/resume", campaignHandler.ResumeCampaign)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
