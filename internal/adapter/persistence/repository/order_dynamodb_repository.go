package repository

import (
	"context"
	"fmt"

	"cafeteria_payments/internal/domain/entities"
	"cafeteria_payments/internal/usecase/interfaces"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

const defaultOrdersTableName = "orders"

// OrderDynamoRepository reads the order service's table to check that an
// order payment targets a payable order. Read-only: the orders table is not
// ours to write.
type OrderDynamoRepository struct {
	ddb       *dynamodb.Client
	tableName string
}

var _ interfaces.IOrderDirectory = (*OrderDynamoRepository)(nil)

func NewOrderDynamoRepository(ddb *dynamodb.Client) *OrderDynamoRepository {
	return &OrderDynamoRepository{
		ddb:       ddb,
		tableName: envOr("ORDERS_TABLE", defaultOrdersTableName),
	}
}

func (r *OrderDynamoRepository) GetOrder(ctx context.Context, orderID string) (entities.Order, error) {
	out, err := r.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return entities.Order{}, err
	}
	if len(out.Item) == 0 {
		return entities.Order{}, interfaces.ErrOrderNotFound
	}

	var it struct {
		ID     string `dynamodbav:"id"`
		UserID string `dynamodbav:"user_id"`
		Total  string `dynamodbav:"total"`
		Status string `dynamodbav:"status"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return entities.Order{}, err
	}
	total := decimal.Zero
	if it.Total != "" {
		total, err = decimal.NewFromString(it.Total)
		if err != nil {
			return entities.Order{}, fmt.Errorf("order %s has malformed total %q", orderID, it.Total)
		}
	}
	return entities.Order{
		ID:     it.ID,
		UserID: it.UserID,
		Total:  total,
		Status: entities.OrderStatus(it.Status),
	}, nil
}
