package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

const (
	defaultPaymentsTableName = "payments"
	gatewayOrderIDIndex      = "gateway_order_id-index"
	gatewayPaymentIDIndex    = "gateway_payment_id-index"
	paymentsUserIDIndex      = "user_id-index"
)

type paymentItem struct {
	PaymentID string `dynamodbav:"payment_id"`
	UserID    string `dynamodbav:"user_id"`
	OrderID   string `dynamodbav:"order_id,omitempty"`

	Amount   string `dynamodbav:"amount"`
	Currency string `dynamodbav:"currency"`

	Method string `dynamodbav:"payment_method"`
	Type   string `dynamodbav:"payment_type"`
	Status string `dynamodbav:"payment_status"`

	GatewayOrderID   string `dynamodbav:"gateway_order_id,omitempty"`
	GatewayPaymentID string `dynamodbav:"gateway_payment_id,omitempty"`
	GatewaySignature string `dynamodbav:"gateway_signature,omitempty"`
	GatewayReceipt   string `dynamodbav:"gateway_receipt,omitempty"`

	Description   string `dynamodbav:"description,omitempty"`
	FailureReason string `dynamodbav:"failure_reason,omitempty"`
	RefundID      string `dynamodbav:"refund_id,omitempty"`
	RefundAmount  string `dynamodbav:"refund_amount"`

	GatewayCreatedAt string `dynamodbav:"gateway_created_at,omitempty"`
	ProcessedAt      string `dynamodbav:"processed_at,omitempty"`
	FailedAt         string `dynamodbav:"failed_at,omitempty"`
	RefundedAt       string `dynamodbav:"refunded_at,omitempty"`
	CreatedAt        string `dynamodbav:"created_at"`
	UpdatedAt        string `dynamodbav:"updated_at"`
}

// PaymentDynamoRepository persists Payment records in DynamoDB.
//
// Table requirements:
//   - PK: payment_id (string)
//   - GSI: gateway_order_id-index, gateway_payment_id-index, user_id-index
//
// CompareAndTransition is a read + conditional full-item Put: the condition
// checks both payment_status and updated_at, so a concurrent writer (or a
// same-status mutator race) surfaces as ErrStaleState instead of a lost
// update. Amounts are stored as exact decimal strings.
type PaymentDynamoRepository struct {
	ddb       *dynamodb.Client
	tableName string
}

var _ interfaces.IPaymentRepository = (*PaymentDynamoRepository)(nil)

func NewPaymentDynamoRepository(ddb *dynamodb.Client) *PaymentDynamoRepository {
	return &PaymentDynamoRepository{
		ddb:       ddb,
		tableName: envOr("PAYMENTS_TABLE", defaultPaymentsTableName),
	}
}

func (r *PaymentDynamoRepository) Create(ctx context.Context, p entities.Payment) (entities.Payment, error) {
	av, err := attributevalue.MarshalMap(toPaymentItem(p))
	if err != nil {
		return entities.Payment{}, err
	}

	_, err = r.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(payment_id)"),
	})
	if err != nil {
		return entities.Payment{}, err
	}
	return p, nil
}

func (r *PaymentDynamoRepository) GetByID(ctx context.Context, paymentID string) (entities.Payment, error) {
	out, err := r.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"payment_id": &types.AttributeValueMemberS{Value: paymentID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return entities.Payment{}, err
	}
	if len(out.Item) == 0 {
		return entities.Payment{}, nil
	}

	var it paymentItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return entities.Payment{}, err
	}
	return fromPaymentItem(it)
}

func (r *PaymentDynamoRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (entities.Payment, error) {
	return r.queryOne(ctx, gatewayOrderIDIndex, "gateway_order_id", gatewayOrderID)
}

func (r *PaymentDynamoRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (entities.Payment, error) {
	return r.queryOne(ctx, gatewayPaymentIDIndex, "gateway_payment_id", gatewayPaymentID)
}

func (r *PaymentDynamoRepository) queryOne(ctx context.Context, index, attr, value string) (entities.Payment, error) {
	out, err := r.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String(fmt.Sprintf("%s = :v", attr)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return entities.Payment{}, err
	}
	if len(out.Items) == 0 {
		return entities.Payment{}, nil
	}

	var it paymentItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &it); err != nil {
		return entities.Payment{}, err
	}
	return fromPaymentItem(it)
}

func (r *PaymentDynamoRepository) ListByUserID(ctx context.Context, userID string) ([]entities.Payment, error) {
	out, err := r.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(paymentsUserIDIndex),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, err
	}
	return unmarshalPayments(out.Items)
}

// ListUnsettled scans for PENDING/PROCESSING records older than the cutoff.
// The created_at RFC3339 strings compare lexicographically in time order.
func (r *PaymentDynamoRepository) ListUnsettled(ctx context.Context, olderThan time.Time) ([]entities.Payment, error) {
	var payments []entities.Payment
	var startKey map[string]types.AttributeValue

	for {
		out, err := r.ddb.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.tableName),
			FilterExpression: aws.String("payment_status IN (:pending, :processing) AND created_at <= :cutoff"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pending":    &types.AttributeValueMemberS{Value: string(entities.PaymentStatusPending)},
				":processing": &types.AttributeValueMemberS{Value: string(entities.PaymentStatusProcessing)},
				":cutoff":     &types.AttributeValueMemberS{Value: olderThan.UTC().Format(time.RFC3339Nano)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		page, err := unmarshalPayments(out.Items)
		if err != nil {
			return nil, err
		}
		payments = append(payments, page...)
		if out.LastEvaluatedKey == nil {
			return payments, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (r *PaymentDynamoRepository) CompareAndTransition(ctx context.Context, paymentID string, expected, next entities.PaymentStatus, mutate func(*entities.Payment)) (entities.Payment, error) {
	if !expected.CanTransitionTo(next) {
		return entities.Payment{}, fmt.Errorf("illegal transition %s -> %s", expected, next)
	}

	current, err := r.GetByID(ctx, paymentID)
	if err != nil {
		return entities.Payment{}, err
	}
	if current.PaymentID == "" {
		return entities.Payment{}, fmt.Errorf("payment %s not found", paymentID)
	}
	if current.Status != expected {
		return entities.Payment{}, interfaces.ErrStaleState
	}

	updated := current
	if mutate != nil {
		mutate(&updated)
	}
	// Idempotency anchors stick: once set they survive any mutator.
	if current.GatewayOrderID != "" {
		updated.GatewayOrderID = current.GatewayOrderID
	}
	if current.GatewayPaymentID != "" {
		updated.GatewayPaymentID = current.GatewayPaymentID
	}
	updated.Status = next
	updated.UpdatedAt = time.Now().UTC()

	av, err := attributevalue.MarshalMap(toPaymentItem(updated))
	if err != nil {
		return entities.Payment{}, err
	}

	_, err = r.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("payment_status = :expected AND updated_at = :seen"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: string(expected)},
			":seen":     &types.AttributeValueMemberS{Value: current.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return entities.Payment{}, interfaces.ErrStaleState
		}
		return entities.Payment{}, err
	}
	return updated, nil
}

func unmarshalPayments(items []map[string]types.AttributeValue) ([]entities.Payment, error) {
	payments := make([]entities.Payment, 0, len(items))
	for _, raw := range items {
		var it paymentItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, err
		}
		p, err := fromPaymentItem(it)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func toPaymentItem(p entities.Payment) paymentItem {
	return paymentItem{
		PaymentID:        p.PaymentID,
		UserID:           p.UserID,
		OrderID:          p.OrderID,
		Amount:           p.Amount.String(),
		Currency:         p.Currency,
		Method:           string(p.Method),
		Type:             string(p.Type),
		Status:           string(p.Status),
		GatewayOrderID:   p.GatewayOrderID,
		GatewayPaymentID: p.GatewayPaymentID,
		GatewaySignature: p.GatewaySignature,
		GatewayReceipt:   p.GatewayReceipt,
		Description:      p.Description,
		FailureReason:    p.FailureReason,
		RefundID:         p.RefundID,
		RefundAmount:     p.RefundAmount.String(),
		GatewayCreatedAt: formatTime(p.GatewayCreatedAt),
		ProcessedAt:      formatTime(p.ProcessedAt),
		FailedAt:         formatTime(p.FailedAt),
		RefundedAt:       formatTime(p.RefundedAt),
		CreatedAt:        p.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromPaymentItem(it paymentItem) (entities.Payment, error) {
	amount, err := decimal.NewFromString(it.Amount)
	if err != nil {
		return entities.Payment{}, fmt.Errorf("payment %s has malformed amount %q", it.PaymentID, it.Amount)
	}
	refundAmount := decimal.Zero
	if it.RefundAmount != "" {
		refundAmount, err = decimal.NewFromString(it.RefundAmount)
		if err != nil {
			return entities.Payment{}, fmt.Errorf("payment %s has malformed refund_amount %q", it.PaymentID, it.RefundAmount)
		}
	}

	return entities.Payment{
		PaymentID:        it.PaymentID,
		UserID:           it.UserID,
		OrderID:          it.OrderID,
		Amount:           amount,
		Currency:         it.Currency,
		Method:           entities.PaymentMethod(it.Method),
		Type:             entities.PaymentType(it.Type),
		Status:           entities.PaymentStatus(it.Status),
		GatewayOrderID:   it.GatewayOrderID,
		GatewayPaymentID: it.GatewayPaymentID,
		GatewaySignature: it.GatewaySignature,
		GatewayReceipt:   it.GatewayReceipt,
		Description:      it.Description,
		FailureReason:    it.FailureReason,
		RefundID:         it.RefundID,
		RefundAmount:     refundAmount,
		GatewayCreatedAt: parseTime(it.GatewayCreatedAt),
		ProcessedAt:      parseTime(it.ProcessedAt),
		FailedAt:         parseTime(it.FailedAt),
		RefundedAt:       parseTime(it.RefundedAt),
		CreatedAt:        parseTime(it.CreatedAt),
		UpdatedAt:        parseTime(it.UpdatedAt),
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
