package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultCurrency = "INR"

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidPaymentID     = errors.New("invalid payment id")
	ErrInvalidAmount        = errors.New("invalid payment amount")
	ErrInvalidMethod        = errors.New("invalid payment method")
	ErrInvalidType          = errors.New("invalid payment type")
	ErrOrderRequired        = errors.New("order id required for order payment")
	ErrOrderNotPayable      = errors.New("order is not payable by this user")
	ErrFoodCardTopUpSelf    = errors.New("cannot top up the food card with the food card")
	ErrInsufficientBalance  = interfaces.ErrInsufficientBalance
	ErrSignatureMismatch    = errors.New("signature mismatch")
	ErrAmountMismatch       = errors.New("gateway amount mismatch")
	ErrUnknownProvider      = errors.New("unknown payment provider")
	ErrRefundNotAllowed     = errors.New("payment cannot be refunded")
	ErrRefundExceedsAmount  = errors.New("refund exceeds remaining amount")
	ErrRefundConflict       = errors.New("a concurrent refund claimed the payment")
	ErrInvalidRefundAmount  = errors.New("invalid refund amount")
	ErrWebhookUnverifiable  = errors.New("webhook signature verification failed")
	ErrWebhookUnresolvable  = errors.New("webhook does not resolve to a known payment")
)

// CreatePaymentCommand is the validated input of CreatePayment. Currency
// defaults to INR, the ledger's single currency.
type CreatePaymentCommand struct {
	UserID      string
	Amount      decimal.Decimal
	Currency    string
	Method      entities.PaymentMethod
	Type        entities.PaymentType
	OrderID     string
	Description string
}

// CreatePaymentResult pairs the stored record with the gateway connect
// parameters the frontend needs to open the provider's checkout.
type CreatePaymentResult struct {
	Payment       entities.Payment
	ConnectParams map[string]string
}

// VerifyPaymentCommand is a client-initiated settlement callback.
type VerifyPaymentCommand struct {
	PaymentID        string
	GatewayPaymentID string
	GatewayOrderID   string
	Signature        string
}

// IPaymentUseCase is the payment orchestrator: the only component that
// transitions payment status. Webhooks and client verification are two entry
// points into the same idempotent settlement path.
type IPaymentUseCase interface {
	CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (CreatePaymentResult, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (entities.Payment, error)
	HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) error
	RefundPayment(ctx context.Context, paymentID string, amount decimal.Decimal) (entities.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (entities.Payment, error)
	ListUserPayments(ctx context.Context, userID string) ([]entities.Payment, error)
	GetFoodCardBalance(ctx context.Context, userID string) (entities.FoodCard, error)
}

type PaymentUseCase struct {
	payments interfaces.IPaymentRepository
	ledger   interfaces.IFoodCardRepository
	orders   interfaces.IOrderDirectory
	gateways interfaces.IGatewayRegistry
}

var _ IPaymentUseCase = (*PaymentUseCase)(nil)

func NewPaymentUseCase(
	payments interfaces.IPaymentRepository,
	ledger interfaces.IFoodCardRepository,
	orders interfaces.IOrderDirectory,
	gateways interfaces.IGatewayRegistry,
) *PaymentUseCase {
	return &PaymentUseCase{payments: payments, ledger: ledger, orders: orders, gateways: gateways}
}

// CreatePayment validates the request, settles food-card payments against
// the ledger synchronously and opens a remote order for gateway payments.
// Gateway failures surface to the caller; the record is left FAILED with the
// reason so retries create a fresh attempt.
func (u *PaymentUseCase) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (CreatePaymentResult, error) {
	log.Printf("[payment][usecase] create start user_id=%s amount=%s method=%s type=%s", cmd.UserID, cmd.Amount, cmd.Method, cmd.Type)

	cmd.UserID = strings.TrimSpace(cmd.UserID)
	if cmd.UserID == "" {
		return CreatePaymentResult{}, ErrInvalidUserID
	}
	if cmd.Amount.LessThanOrEqual(decimal.Zero) {
		return CreatePaymentResult{}, ErrInvalidAmount
	}
	if !cmd.Method.IsValid() {
		return CreatePaymentResult{}, ErrInvalidMethod
	}
	if !cmd.Type.IsValid() {
		return CreatePaymentResult{}, ErrInvalidType
	}
	if cmd.Currency == "" {
		cmd.Currency = defaultCurrency
	}
	if cmd.Type == entities.PaymentTypeFoodCardTopUp && cmd.Method == entities.PaymentMethodFoodCard {
		return CreatePaymentResult{}, ErrFoodCardTopUpSelf
	}

	if cmd.Type == entities.PaymentTypeOrderPayment {
		if strings.TrimSpace(cmd.OrderID) == "" {
			return CreatePaymentResult{}, ErrOrderRequired
		}
		order, err := u.orders.GetOrder(ctx, cmd.OrderID)
		if err != nil {
			if errors.Is(err, interfaces.ErrOrderNotFound) {
				return CreatePaymentResult{}, ErrOrderNotPayable
			}
			return CreatePaymentResult{}, err
		}
		if !order.PayableBy(cmd.UserID) {
			log.Printf("[payment][usecase] order not payable order_id=%s user_id=%s status=%s", order.ID, cmd.UserID, order.Status)
			return CreatePaymentResult{}, ErrOrderNotPayable
		}
	}

	if cmd.Method == entities.PaymentMethodFoodCard {
		return u.createFoodCardPayment(ctx, cmd)
	}
	return u.createGatewayPayment(ctx, cmd)
}

// createFoodCardPayment settles synchronously: debit first, record PAID on
// success. An insufficient balance still leaves a FAILED record for audit.
func (u *PaymentUseCase) createFoodCardPayment(ctx context.Context, cmd CreatePaymentCommand) (CreatePaymentResult, error) {
	paymentID := newPaymentID()
	now := time.Now().UTC()
	p := entities.Payment{
		PaymentID:    paymentID,
		UserID:       cmd.UserID,
		OrderID:      cmd.OrderID,
		Amount:       cmd.Amount,
		Currency:     cmd.Currency,
		Method:       cmd.Method,
		Type:         cmd.Type,
		Description:  cmd.Description,
		RefundAmount: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := u.ledger.Debit(ctx, cmd.UserID, cmd.Amount, paymentID); err != nil {
		if errors.Is(err, interfaces.ErrInsufficientBalance) {
			p.Status = entities.PaymentStatusFailed
			p.FailureReason = "insufficient food card balance"
			p.FailedAt = now
			if _, cerr := u.payments.Create(ctx, p); cerr != nil {
				log.Printf("[payment][usecase] failed-audit record create failed payment_id=%s err=%v", paymentID, cerr)
			}
			log.Printf("[payment][usecase] food card debit declined payment_id=%s user_id=%s", paymentID, cmd.UserID)
			return CreatePaymentResult{Payment: p}, ErrInsufficientBalance
		}
		return CreatePaymentResult{}, err
	}

	p.Status = entities.PaymentStatusPaid
	p.ProcessedAt = now
	created, err := u.payments.Create(ctx, p)
	if err != nil {
		log.Printf("[payment][usecase] record create failed after debit payment_id=%s err=%v", paymentID, err)
		return CreatePaymentResult{}, err
	}
	log.Printf("[payment][usecase] food card payment settled payment_id=%s user_id=%s amount=%s", paymentID, cmd.UserID, cmd.Amount)
	return CreatePaymentResult{Payment: created}, nil
}

// createGatewayPayment persists the record PENDING before touching the
// provider, so a crash mid-call leaves a sweeper-resolvable record rather
// than an untracked remote order.
func (u *PaymentUseCase) createGatewayPayment(ctx context.Context, cmd CreatePaymentCommand) (CreatePaymentResult, error) {
	gw, err := u.gateways.ForMethod(cmd.Method)
	if err != nil {
		return CreatePaymentResult{}, ErrInvalidMethod
	}

	paymentID := newPaymentID()
	now := time.Now().UTC()
	p := entities.Payment{
		PaymentID:    paymentID,
		UserID:       cmd.UserID,
		OrderID:      cmd.OrderID,
		Amount:       cmd.Amount,
		Currency:     cmd.Currency,
		Method:       cmd.Method,
		Type:         cmd.Type,
		Status:       entities.PaymentStatusPending,
		Description:  cmd.Description,
		RefundAmount: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := u.payments.Create(ctx, p)
	if err != nil {
		return CreatePaymentResult{}, err
	}

	order, err := gw.CreateOrder(ctx, interfaces.GatewayOrderRequest{
		Amount:   cmd.Amount,
		Currency: cmd.Currency,
		Receipt:  paymentID,
		Notes:    map[string]string{"payment_id": paymentID, "user_id": cmd.UserID},
	})
	if err != nil {
		log.Printf("[payment][usecase] gateway order create failed payment_id=%s provider=%s err=%v", paymentID, gw.Provider(), err)
		failed, ferr := u.payments.CompareAndTransition(ctx, paymentID, entities.PaymentStatusPending, entities.PaymentStatusFailed, func(rec *entities.Payment) {
			rec.FailureReason = err.Error()
			rec.FailedAt = time.Now().UTC()
		})
		if ferr != nil {
			log.Printf("[payment][usecase] fail transition lost payment_id=%s err=%v", paymentID, ferr)
			failed = created
		}
		return CreatePaymentResult{Payment: failed}, err
	}

	anchored, err := u.payments.CompareAndTransition(ctx, paymentID, entities.PaymentStatusPending, entities.PaymentStatusPending, func(rec *entities.Payment) {
		rec.GatewayOrderID = order.OrderID
		rec.GatewayReceipt = paymentID
		rec.GatewayCreatedAt = time.Now().UTC()
	})
	if err != nil {
		return CreatePaymentResult{}, err
	}

	log.Printf("[payment][usecase] gateway order created payment_id=%s provider=%s gateway_order_id=%s", paymentID, gw.Provider(), order.OrderID)
	return CreatePaymentResult{Payment: anchored, ConnectParams: order.ConnectParams}, nil
}

// VerifyPayment is the client-initiated settlement entry point. It is
// idempotent: an already-final record returns its outcome unchanged.
func (u *PaymentUseCase) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (entities.Payment, error) {
	cmd.PaymentID = strings.TrimSpace(cmd.PaymentID)
	if cmd.PaymentID == "" {
		return entities.Payment{}, ErrInvalidPaymentID
	}
	log.Printf("[payment][usecase] verify start payment_id=%s gateway_payment_id=%s", cmd.PaymentID, cmd.GatewayPaymentID)

	p, err := u.payments.GetByID(ctx, cmd.PaymentID)
	if err != nil {
		return entities.Payment{}, err
	}
	if p.PaymentID == "" {
		return entities.Payment{}, ErrPaymentNotFound
	}
	if p.Status.IsFinal() {
		log.Printf("[payment][usecase] verify already finalized payment_id=%s status=%s", p.PaymentID, p.Status)
		return p, nil
	}

	gw, err := u.gateways.ForMethod(p.Method)
	if err != nil {
		return p, ErrUnknownProvider
	}

	// The stored anchor outranks the caller's copy: a valid signature over
	// someone else's order must not settle this record.
	gatewayOrderID := p.GatewayOrderID
	if gatewayOrderID == "" {
		gatewayOrderID = cmd.GatewayOrderID
	}
	if !gw.VerifySignature(gatewayOrderID, cmd.GatewayPaymentID, cmd.Signature) {
		log.Printf("[payment][audit] signature mismatch payment_id=%s provider=%s gateway_order_id=%s", p.PaymentID, gw.Provider(), gatewayOrderID)
		failed, ferr := u.payments.CompareAndTransition(ctx, p.PaymentID, entities.PaymentStatusPending, entities.PaymentStatusFailed, func(rec *entities.Payment) {
			rec.FailureReason = "signature mismatch"
			rec.FailedAt = time.Now().UTC()
		})
		if ferr != nil {
			if errors.Is(ferr, interfaces.ErrStaleState) {
				return u.reload(ctx, p.PaymentID)
			}
			return p, ferr
		}
		return failed, ErrSignatureMismatch
	}

	return u.applyGatewayOutcome(ctx, p, gw, cmd.GatewayPaymentID, cmd.Signature)
}

// HandleWebhook authenticates and resolves a provider notification, then
// funnels it through the same outcome application as VerifyPayment. Errors
// are for the caller's log only; the HTTP layer answers 200 regardless.
func (u *PaymentUseCase) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) error {
	gw, err := u.gateways.ForProvider(entities.GatewayProvider(strings.ToLower(strings.TrimSpace(provider))))
	if err != nil {
		return ErrUnknownProvider
	}

	if !gw.VerifyWebhook(payload, signature) {
		log.Printf("[payment][audit] webhook signature mismatch provider=%s payload_len=%d", gw.Provider(), len(payload))
		return ErrWebhookUnverifiable
	}

	event, err := gw.ParseWebhook(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookUnresolvable, err)
	}
	log.Printf("[payment][usecase] webhook received provider=%s event=%s gateway_order_id=%s gateway_payment_id=%s",
		gw.Provider(), event.Event, event.GatewayOrderID, event.GatewayPaymentID)

	p, err := u.resolveByGatewayIDs(ctx, event.GatewayOrderID, event.GatewayPaymentID)
	if errors.Is(err, ErrWebhookUnresolvable) && event.GatewayPaymentID != "" {
		// Providers that only send their own payment id (Mercado Pago)
		// resolve through the receipt echoed back by the gateway.
		gp, ferr := gw.FetchPayment(ctx, event.GatewayPaymentID)
		if ferr != nil {
			return ferr
		}
		if gp.Receipt == "" {
			return ErrWebhookUnresolvable
		}
		p, err = u.payments.GetByID(ctx, gp.Receipt)
		if err == nil && p.PaymentID == "" {
			err = ErrWebhookUnresolvable
		}
	}
	if err != nil {
		return err
	}
	if p.Status.IsFinal() {
		log.Printf("[payment][usecase] webhook on finalized payment payment_id=%s status=%s", p.PaymentID, p.Status)
		return nil
	}

	gatewayPaymentID := event.GatewayPaymentID
	if gatewayPaymentID == "" {
		gatewayPaymentID = p.GatewayPaymentID
	}
	_, err = u.applyGatewayOutcome(ctx, p, gw, gatewayPaymentID, "")
	return err
}

func (u *PaymentUseCase) resolveByGatewayIDs(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (entities.Payment, error) {
	if gatewayOrderID != "" {
		p, err := u.payments.GetByGatewayOrderID(ctx, gatewayOrderID)
		if err != nil {
			return entities.Payment{}, err
		}
		if p.PaymentID != "" {
			return p, nil
		}
	}
	if gatewayPaymentID != "" {
		p, err := u.payments.GetByGatewayPaymentID(ctx, gatewayPaymentID)
		if err != nil {
			return entities.Payment{}, err
		}
		if p.PaymentID != "" {
			return p, nil
		}
	}
	return entities.Payment{}, ErrWebhookUnresolvable
}

// applyGatewayOutcome is the one settlement path shared by client
// verification, webhooks and the reconciliation sweeper. The gateway fetch
// is authoritative: callback-supplied amount or status is never used.
//
// Ordering: PENDING->PROCESSING claims the settlement, then the top-up
// credit (idempotent by gateway payment id), then PROCESSING->PAID. A
// transient credit failure leaves PROCESSING for the sweeper; it is not a
// payment failure, the money was captured externally.
func (u *PaymentUseCase) applyGatewayOutcome(ctx context.Context, p entities.Payment, gw interfaces.IPaymentGateway, gatewayPaymentID, signature string) (entities.Payment, error) {
	if gatewayPaymentID == "" {
		return p, ErrWebhookUnresolvable
	}

	gp, err := gw.FetchPayment(ctx, gatewayPaymentID)
	if err != nil {
		// Leaves the record where it was; a retry or the sweeper re-attempts.
		log.Printf("[payment][usecase] gateway fetch failed payment_id=%s provider=%s err=%v", p.PaymentID, gw.Provider(), err)
		return p, err
	}

	if reason := settlementMismatch(p, gp); reason != "" {
		log.Printf("[payment][audit] settlement mismatch payment_id=%s provider=%s reason=%q gateway_status=%s gateway_amount=%s %s",
			p.PaymentID, gw.Provider(), reason, gp.Status, gp.Amount, gp.Currency)
		failed, ferr := u.payments.CompareAndTransition(ctx, p.PaymentID, p.Status, entities.PaymentStatusFailed, func(rec *entities.Payment) {
			rec.FailureReason = reason
			rec.FailedAt = time.Now().UTC()
		})
		if ferr != nil {
			if errors.Is(ferr, interfaces.ErrStaleState) {
				return u.reload(ctx, p.PaymentID)
			}
			return p, ferr
		}
		return failed, ErrAmountMismatch
	}

	if p.Status == entities.PaymentStatusPending {
		claimed, err := u.payments.CompareAndTransition(ctx, p.PaymentID, entities.PaymentStatusPending, entities.PaymentStatusProcessing, func(rec *entities.Payment) {
			if rec.GatewayPaymentID == "" {
				rec.GatewayPaymentID = gatewayPaymentID
			}
			if signature != "" {
				rec.GatewaySignature = signature
			}
		})
		if err != nil {
			if errors.Is(err, interfaces.ErrStaleState) {
				// The racing caller owns the settlement now.
				return u.reload(ctx, p.PaymentID)
			}
			return p, err
		}
		p = claimed
	}

	if p.Status != entities.PaymentStatusProcessing {
		return p, nil
	}

	if p.Type == entities.PaymentTypeFoodCardTopUp {
		creditRef := p.GatewayPaymentID
		if creditRef == "" {
			creditRef = gatewayPaymentID
		}
		if _, err := u.ledger.Credit(ctx, p.UserID, p.Amount, creditRef); err != nil {
			log.Printf("[payment][audit] reconciliation required: top-up credit failed payment_id=%s user_id=%s err=%v", p.PaymentID, p.UserID, err)
			return p, nil
		}
		log.Printf("[payment][usecase] food card credited payment_id=%s user_id=%s amount=%s", p.PaymentID, p.UserID, p.Amount)
	}

	paid, err := u.payments.CompareAndTransition(ctx, p.PaymentID, entities.PaymentStatusProcessing, entities.PaymentStatusPaid, func(rec *entities.Payment) {
		rec.ProcessedAt = time.Now().UTC()
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrStaleState) {
			return u.reload(ctx, p.PaymentID)
		}
		return p, err
	}
	log.Printf("[payment][usecase] payment settled payment_id=%s amount=%s", paid.PaymentID, paid.Amount)
	return paid, nil
}

// settlementMismatch returns a failure reason when the gateway's
// authoritative view disagrees with the record, empty otherwise.
func settlementMismatch(p entities.Payment, gp interfaces.GatewayPayment) string {
	if !gp.Settled {
		return fmt.Sprintf("gateway reports unsettled status %q", gp.Status)
	}
	if p.GatewayOrderID != "" && gp.OrderID != "" && gp.OrderID != p.GatewayOrderID {
		return fmt.Sprintf("gateway order %s does not match %s", gp.OrderID, p.GatewayOrderID)
	}
	if p.GatewayReceipt != "" && gp.Receipt != "" && gp.Receipt != p.GatewayReceipt {
		return fmt.Sprintf("gateway receipt %s does not match %s", gp.Receipt, p.GatewayReceipt)
	}
	if !gp.Amount.Equal(p.Amount) {
		return fmt.Sprintf("gateway amount %s does not match %s", gp.Amount, p.Amount)
	}
	if gp.Currency != "" && !strings.EqualFold(gp.Currency, p.Currency) {
		return fmt.Sprintf("gateway currency %s does not match %s", gp.Currency, p.Currency)
	}
	return ""
}

// RefundPayment reverses a settled payment, fully or partially. The ledger
// is touched only where the original payment touched it; gateway-funded
// money goes back through the gateway.
//
// Ordering mirrors settlement: the record is claimed first, money moves
// second. Two refunds racing on the same snapshot would otherwise both pass
// the refundable check and move money twice; with the claim up front only
// the compare-and-transition winner reaches the ledger or the gateway. A
// declined movement compensates the record back.
func (u *PaymentUseCase) RefundPayment(ctx context.Context, paymentID string, amount decimal.Decimal) (entities.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return entities.Payment{}, ErrInvalidPaymentID
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return entities.Payment{}, ErrInvalidRefundAmount
	}

	p, err := u.payments.GetByID(ctx, paymentID)
	if err != nil {
		return entities.Payment{}, err
	}
	if p.PaymentID == "" {
		return entities.Payment{}, ErrPaymentNotFound
	}
	if !p.Status.CanBeRefunded() {
		return p, ErrRefundNotAllowed
	}
	if amount.GreaterThan(p.RefundableAmount()) {
		return p, ErrRefundExceedsAmount
	}

	var gw interfaces.IPaymentGateway
	if p.Method.RequiresGateway() {
		if gw, err = u.gateways.ForMethod(p.Method); err != nil {
			return p, ErrUnknownProvider
		}
	}

	// The claim re-checks the remaining amount against the stored record,
	// not the loaded snapshot, so interleaved partial refunds cannot push
	// the total past the payment amount.
	exceeded := false
	claimed, err := u.payments.CompareAndTransition(ctx, p.PaymentID, p.Status, entities.PaymentStatusPartiallyRefunded, func(rec *entities.Payment) {
		if amount.GreaterThan(rec.RefundableAmount()) {
			exceeded = true
			return
		}
		rec.RefundAmount = rec.RefundAmount.Add(amount)
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrStaleState) {
			log.Printf("[payment][usecase] refund claim lost payment_id=%s amount=%s", p.PaymentID, amount)
			return p, ErrRefundConflict
		}
		return p, err
	}
	if exceeded {
		return claimed, ErrRefundExceedsAmount
	}

	revert := func(cause error) {
		if _, rerr := u.payments.CompareAndTransition(ctx, p.PaymentID, entities.PaymentStatusPartiallyRefunded, p.Status, func(rec *entities.Payment) {
			rec.RefundAmount = rec.RefundAmount.Sub(amount)
		}); rerr != nil {
			log.Printf("[payment][audit] reconciliation required: refund revert failed payment_id=%s cause=%v err=%v", p.PaymentID, cause, rerr)
		}
	}

	refundRef := fmt.Sprintf("%s:refund:%s", p.PaymentID, claimed.RefundAmount)
	refundID := ""
	switch {
	case p.Method == entities.PaymentMethodFoodCard:
		// Food-card order payment: put the money back on the card.
		if _, err := u.ledger.Credit(ctx, p.UserID, amount, refundRef); err != nil {
			revert(err)
			return p, err
		}
		refundID = refundRef
	case p.Type == entities.PaymentTypeFoodCardTopUp:
		// A settled top-up credited the card; take it back first, then
		// return the money through the gateway.
		if _, err := u.ledger.Debit(ctx, p.UserID, amount, refundRef); err != nil {
			revert(err)
			return p, err
		}
		refundID, err = gw.Refund(ctx, p.GatewayPaymentID, amount)
		if err != nil {
			// Put the debit back; the ledger must not hold money the
			// gateway refused to return.
			if _, cerr := u.ledger.Credit(ctx, p.UserID, amount, refundRef+":reversal"); cerr != nil {
				log.Printf("[payment][audit] reconciliation required: refund reversal credit failed payment_id=%s err=%v", p.PaymentID, cerr)
			}
			revert(err)
			return p, err
		}
	default:
		refundID, err = gw.Refund(ctx, p.GatewayPaymentID, amount)
		if err != nil {
			revert(err)
			return p, err
		}
	}

	next := entities.PaymentStatusPartiallyRefunded
	if claimed.RefundAmount.Equal(claimed.Amount) {
		next = entities.PaymentStatusRefunded
	}
	refunded, err := u.payments.CompareAndTransition(ctx, p.PaymentID, entities.PaymentStatusPartiallyRefunded, next, func(rec *entities.Payment) {
		rec.RefundID = refundID
		rec.RefundedAt = time.Now().UTC()
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrStaleState) {
			log.Printf("[payment][audit] refund id not recorded payment_id=%s refund_id=%s", p.PaymentID, refundID)
			return u.reload(ctx, p.PaymentID)
		}
		return p, err
	}
	log.Printf("[payment][usecase] refund applied payment_id=%s amount=%s status=%s refund_id=%s", p.PaymentID, amount, refunded.Status, refundID)
	return refunded, nil
}

// ReconcilePayment resolves one stuck record on behalf of the sweeper. With
// a gateway payment id it re-applies the normal settlement path. Without one
// it asks the provider for the payments behind the anchored order first: a
// captured charge whose webhook was lost must settle, never fail with the
// money kept externally. Only when the provider holds no settled payment
// does the record fail.
func (u *PaymentUseCase) ReconcilePayment(ctx context.Context, p entities.Payment) (entities.Payment, error) {
	if p.Status.IsFinal() || !p.Method.RequiresGateway() {
		return p, nil
	}

	gw, err := u.gateways.ForMethod(p.Method)
	if err != nil {
		return p, ErrUnknownProvider
	}

	if p.GatewayPaymentID != "" {
		return u.applyGatewayOutcome(ctx, p, gw, p.GatewayPaymentID, "")
	}

	if p.GatewayOrderID != "" {
		receipt := p.GatewayReceipt
		if receipt == "" {
			receipt = p.PaymentID
		}
		gp, ferr := gw.FetchOrderPayment(ctx, p.GatewayOrderID, receipt)
		switch {
		case ferr == nil:
			log.Printf("[payment][usecase] recovered gateway payment payment_id=%s gateway_payment_id=%s", p.PaymentID, gp.PaymentID)
			return u.applyGatewayOutcome(ctx, p, gw, gp.PaymentID, "")
		case !errors.Is(ferr, interfaces.ErrNoGatewayPayment) && !errors.Is(ferr, interfaces.ErrGatewayRejected):
			// Transient; the next sweep retries.
			return p, ferr
		}
		log.Printf("[payment][usecase] gateway holds no settled payment payment_id=%s gateway_order_id=%s", p.PaymentID, p.GatewayOrderID)
	}

	failed, ferr := u.payments.CompareAndTransition(ctx, p.PaymentID, p.Status, entities.PaymentStatusFailed, func(rec *entities.Payment) {
		rec.FailureReason = "settlement timed out"
		rec.FailedAt = time.Now().UTC()
	})
	if ferr != nil {
		if errors.Is(ferr, interfaces.ErrStaleState) {
			return u.reload(ctx, p.PaymentID)
		}
		return p, ferr
	}
	log.Printf("[payment][usecase] stale payment swept to failed payment_id=%s", p.PaymentID)
	return failed, nil
}

func (u *PaymentUseCase) GetPayment(ctx context.Context, paymentID string) (entities.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return entities.Payment{}, ErrInvalidPaymentID
	}
	p, err := u.payments.GetByID(ctx, paymentID)
	if err != nil {
		return entities.Payment{}, err
	}
	if p.PaymentID == "" {
		return entities.Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (u *PaymentUseCase) ListUserPayments(ctx context.Context, userID string) ([]entities.Payment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return u.payments.ListByUserID(ctx, userID)
}

func (u *PaymentUseCase) GetFoodCardBalance(ctx context.Context, userID string) (entities.FoodCard, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return entities.FoodCard{}, ErrInvalidUserID
	}
	return u.ledger.Get(ctx, userID)
}

func (u *PaymentUseCase) reload(ctx context.Context, paymentID string) (entities.Payment, error) {
	p, err := u.payments.GetByID(ctx, paymentID)
	if err != nil {
		return entities.Payment{}, err
	}
	if p.PaymentID == "" {
		return entities.Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func newPaymentID() string {
	return "PAY_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
