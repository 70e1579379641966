package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	request "cafeteria_payments/internal/adapter/http/dto/request"
	response "cafeteria_payments/internal/adapter/http/dto/response"
	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase"
	"cafeteria_payments/internal/usecase/interfaces"
	"cafeteria_payments/pkg"
)

var errInvalidPaymentPayload = pkg.NewDomainErrorSimple("INVALID_REQUEST", "Invalid request payload", http.StatusBadRequest)

// PaymentHandler handles HTTP requests for payments and the food-card ledger.

type PaymentHandler struct {
	usecase usecase.IPaymentUseCase
}

func NewPaymentHandler(uc usecase.IPaymentUseCase) *PaymentHandler {
	return &PaymentHandler{usecase: uc}
}

// CreatePayment opens a payment attempt. Food-card payments settle in the
// response; gateway payments come back PENDING with connect parameters.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var payload request.PaymentCreateRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("[payment][handler] create invalid payload err=%v", err)
		c.JSON(errInvalidPaymentPayload.HTTPStatus, errInvalidPaymentPayload.ToHTTPError())
		return
	}

	log.Printf("[payment][handler] create start user_id=%s method=%s type=%s", payload.UserID, payload.Method, payload.Type)
	result, err := h.usecase.CreatePayment(c.Request.Context(), usecase.CreatePaymentCommand{
		UserID:      payload.UserID,
		Amount:      payload.Amount,
		Currency:    payload.Currency,
		Method:      entities.PaymentMethod(payload.Method),
		Type:        entities.PaymentType(payload.Type),
		OrderID:     payload.OrderID,
		Description: payload.Description,
	})
	if err != nil {
		log.Printf("[payment][handler] create failed user_id=%s err=%v", payload.UserID, err)
		appErr := mapPaymentError(err)
		c.JSON(appErr.HTTPStatus, appErr.ToHTTPError())
		return
	}
	log.Printf("[payment][handler] create success payment_id=%s status=%s", result.Payment.PaymentID, result.Payment.Status)

	c.JSON(http.StatusCreated, response.FromPaymentCreate(result.Payment, result.ConnectParams))
}

// VerifyPayment settles a gateway payment from the frontend callback.
// Re-verifying a settled payment returns the stored record unchanged.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var payload request.PaymentVerifyRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("[payment][handler] verify invalid payload err=%v", err)
		c.JSON(errInvalidPaymentPayload.HTTPStatus, errInvalidPaymentPayload.ToHTTPError())
		return
	}

	log.Printf("[payment][handler] verify start payment_id=%s", payload.PaymentID)
	settled, err := h.usecase.VerifyPayment(c.Request.Context(), usecase.VerifyPaymentCommand{
		PaymentID:        payload.PaymentID,
		GatewayPaymentID: payload.GatewayPaymentID,
		GatewayOrderID:   payload.GatewayOrderID,
		Signature:        payload.GatewaySignature,
	})
	if err != nil {
		log.Printf("[payment][handler] verify failed payment_id=%s err=%v", payload.PaymentID, err)
		appErr := mapPaymentError(err)
		c.JSON(appErr.HTTPStatus, appErr.ToHTTPError())
		return
	}
	log.Printf("[payment][handler] verify success payment_id=%s status=%s", settled.PaymentID, settled.Status)

	c.JSON(http.StatusOK, response.FromPayment(settled))
}

// maxWebhookBody caps webhook payload reads. Provider events are a few KB.
const maxWebhookBody = 1 << 20

// HandleWebhook receives provider notifications. The response is 200 no
// matter what: verification failures go to the audit log only, so an
// untrusted caller learns nothing from the response, and settlement
// problems are ours to reconcile, not the provider's to retry forever.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	provider := c.Param("provider")
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("[payment][handler] webhook body unreadable provider=%s err=%v", provider, err)
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
		return
	}
	signature := webhookSignature(c, provider)

	if err := h.usecase.HandleWebhook(c.Request.Context(), provider, body, signature); err != nil {
		log.Printf("[payment][handler] webhook absorbed provider=%s err=%v", provider, err)
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RefundPayment refunds part or all of a settled payment. An absent amount
// refunds whatever is still refundable.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	paymentID := c.Param("payment_id")
	var payload request.PaymentRefundRequest
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("[payment][handler] refund invalid payload payment_id=%s err=%v", paymentID, err)
		c.JSON(errInvalidPaymentPayload.HTTPStatus, errInvalidPaymentPayload.ToHTTPError())
		return
	}

	amount := payload.Amount
	if amount.LessThanOrEqual(decimal.Zero) {
		current, err := h.usecase.GetPayment(c.Request.Context(), paymentID)
		if err != nil {
			appErr := mapPaymentError(err)
			c.JSON(appErr.HTTPStatus, appErr.ToHTTPError())
			return
		}
		amount = current.RefundableAmount()
	}

	log.Printf("[payment][handler] refund start payment_id=%s amount=%s", paymentID, amount)
	refunded, err := h.usecase.RefundPayment(c.Request.Context(), paymentID, amount)
	if err != nil {
		log.Printf("[payment][handler] refund failed payment_id=%s err=%v", paymentID, err)
		appErr := mapPaymentError(err)
		c.JSON(appErr.HTTPStatus, appErr.ToHTTPError())
		return
	}
	log.Printf("[payment][handler] refund success payment_id=%s status=%s refund_id=%s", refunded.PaymentID, refunded.Status, refunded.RefundID)

	c.JSON(http.StatusOK, response.FromPayment(refunded))
}

// GetPayment returns a single payment record.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID := c.Param("payment_id")

	p, err := h.usecase.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		log.Printf("[payment][handler] get failed payment_id=%s err=%v", paymentID, err)
		appErr := mapPaymentError(err)
		c.JSON(appErr.HTTPStatus, appErr.ToHTTPError())
		return
	}

	c.JSON(http.StatusOK, response.FromPayment(p))
}

// GetPaymentHistory lists all payment attempts for a user.
func (h *PaymentHandler) GetPaymentHistory(c *gin.Context) {
	userID := c.Param("user_id")

	payments, err := h.usecase.ListUserPayments(c.Request.Context(), userID)
	if err != nil {
		log.Printf("[payment][handler] history failed user_id=%s err=%v", userID, err)
		appErr := mapPaymentError(err)
		c.JSON(appErr.HTTPStatus, appErr.ToHTTPError())
		return
	}

	c.JSON(http.StatusOK, response.FromPayments(payments))
}

// GetFoodCardBalance returns the current food-card balance for a user.
func (h *PaymentHandler) GetFoodCardBalance(c *gin.Context) {
	userID := c.Param("user_id")

	card, err := h.usecase.GetFoodCardBalance(c.Request.Context(), userID)
	if err != nil {
		log.Printf("[payment][handler] balance failed user_id=%s err=%v", userID, err)
		appErr := mapPaymentError(err)
		c.JSON(appErr.HTTPStatus, appErr.ToHTTPError())
		return
	}

	c.JSON(http.StatusOK, response.FromFoodCard(card))
}

// webhookSignature pulls the provider's signature header. Stripe and Mercado
// Pago verify extra headers themselves; the value here is what the shared
// webhook path hands to the gateway adapter.
func webhookSignature(c *gin.Context, provider string) string {
	switch provider {
	case "razorpay":
		return c.GetHeader("X-Razorpay-Signature")
	case "stripe":
		return c.GetHeader("Stripe-Signature")
	case "mercadopago":
		return c.GetHeader("X-Signature")
	default:
		return c.GetHeader("X-Webhook-Signature")
	}
}

func mapPaymentError(err error) *pkg.AppError {
	switch {
	case errors.Is(err, usecase.ErrInvalidUserID),
		errors.Is(err, usecase.ErrInvalidPaymentID),
		errors.Is(err, usecase.ErrInvalidAmount),
		errors.Is(err, usecase.ErrInvalidMethod),
		errors.Is(err, usecase.ErrInvalidType),
		errors.Is(err, usecase.ErrOrderRequired),
		errors.Is(err, usecase.ErrFoodCardTopUpSelf),
		errors.Is(err, usecase.ErrInvalidRefundAmount):
		return pkg.NewDomainErrorSimple("INVALID_REQUEST", "Invalid request", http.StatusBadRequest)
	case errors.Is(err, usecase.ErrPaymentNotFound):
		return pkg.NewDomainErrorSimple("PAYMENT_NOT_FOUND", "Payment not found", http.StatusNotFound)
	case errors.Is(err, usecase.ErrOrderNotPayable):
		return pkg.NewDomainErrorSimple("ORDER_NOT_PAYABLE", "Order cannot be paid by this user", http.StatusConflict)
	case errors.Is(err, usecase.ErrInsufficientBalance):
		return pkg.NewDomainErrorSimple("INSUFFICIENT_BALANCE", "Food card balance is insufficient", http.StatusConflict)
	case errors.Is(err, usecase.ErrSignatureMismatch):
		return pkg.NewDomainErrorSimple("SIGNATURE_MISMATCH", "Payment signature verification failed", http.StatusBadRequest)
	case errors.Is(err, usecase.ErrAmountMismatch):
		return pkg.NewDomainErrorSimple("AMOUNT_MISMATCH", "Gateway settlement does not match the payment", http.StatusConflict)
	case errors.Is(err, usecase.ErrRefundNotAllowed):
		return pkg.NewDomainErrorSimple("REFUND_NOT_ALLOWED", "Payment cannot be refunded", http.StatusConflict)
	case errors.Is(err, usecase.ErrRefundExceedsAmount):
		return pkg.NewDomainErrorSimple("REFUND_EXCEEDS_AMOUNT", "Refund exceeds the refundable amount", http.StatusConflict)
	case errors.Is(err, usecase.ErrRefundConflict):
		return pkg.NewDomainErrorSimple("REFUND_CONFLICT", "A concurrent refund is in progress", http.StatusConflict)
	case errors.Is(err, usecase.ErrUnknownProvider):
		return pkg.NewDomainErrorSimple("UNKNOWN_PROVIDER", "Payment provider not configured", http.StatusBadRequest)
	case errors.Is(err, interfaces.ErrGatewayRejected):
		return pkg.NewDomainErrorSimple("GATEWAY_REJECTED", "Payment provider rejected the request", http.StatusBadRequest)
	case errors.Is(err, interfaces.ErrGatewayUnavailable):
		return pkg.NewDomainErrorSimple("GATEWAY_UNAVAILABLE", "Payment provider unavailable", http.StatusBadGateway)
	default:
		return pkg.NewDomainError("INTERNAL_ERROR", "An internal error occurred", err, http.StatusInternalServerError)
	}
}
