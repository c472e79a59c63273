package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()

	r.Use(Logger())
	r.Use(Recovery())
	r.Use(CORS())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		point := v1.Group("/point")
		{
			point.GET("/balance", h.GetBalance)
			point.GET("/ledger", h.ListLedger)
			point.GET("/withdrawals", h.ListWithdrawals)
			point.GET("/reconcile", h.Reconcile)
			point.POST("/convert", h.Convert)
			point.POST("/spend", h.Spend)
			point.POST("/earn", h.Earn)
			point.POST("/adjust", h.Adjust)
		}

		coupon := v1.Group("/coupon")
		{
			coupon.POST("/purchase", h.PurchaseCoupon)
			coupon.GET("/list", h.ListMyCoupons)
		}

		bank := v1.Group("/bank-account")
		{
			bank.POST("/register", h.RegisterBankAccount)
			bank.GET("/list", h.ListBankAccounts)
			bank.POST("/set-default", h.SetDefaultBankAccount)
			bank.POST("/verify", h.VerifyBankAccount)
		}
	}

	return r
}
