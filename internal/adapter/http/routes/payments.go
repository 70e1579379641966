package routes

import (
	"cafeteria_payments/internal/adapter/http/handlers"

	"github.com/gin-gonic/gin"
)

const (
	PathPayments = "/payments"
)

func addPaymentRoutes(rg *gin.RouterGroup, paymentHandler *handlers.PaymentHandler) {
	payments := rg.Group(PathPayments)
	{
		payments.POST("/create", paymentHandler.CreatePayment)
		payments.POST("/verify", paymentHandler.VerifyPayment)
		payments.POST("/webhook/:provider", paymentHandler.HandleWebhook)
		payments.POST("/:payment_id/refund", paymentHandler.RefundPayment)
		payments.GET("/balance/:user_id", paymentHandler.GetFoodCardBalance)
		payments.GET("/history/:user_id", paymentHandler.GetPaymentHistory)
		payments.GET("/:payment_id", paymentHandler.GetPayment)
	}
}
