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
	defaultFoodCardsTableName       = "food_cards"
	defaultFoodCardEntriesTableName = "food_card_entries"
)

type foodCardEntryItem struct {
	Reference string `dynamodbav:"reference"`
	UserID    string `dynamodbav:"user_id"`
	Type      string `dynamodbav:"entry_type"`
	Amount    string `dynamodbav:"amount"`
	CreatedAt string `dynamodbav:"created_at"`
}

// FoodCardDynamoRepository is the balance ledger on DynamoDB.
//
// Table requirements:
//   - food_cards: PK user_id (string), balance (number)
//   - food_card_entries: PK reference (string), GSI user_id-index
//
// Credit and Debit run as one TransactWriteItems: a conditional Put of the
// entry row (the dedupe record) plus the balance update. The transaction's
// cancellation reasons distinguish a replayed reference (benign no-op) from
// an insufficient balance, and DynamoDB serializes the balance update per
// user, so concurrent debits can never jointly overdraw.
type FoodCardDynamoRepository struct {
	ddb          *dynamodb.Client
	cardsTable   string
	entriesTable string
}

var _ interfaces.IFoodCardRepository = (*FoodCardDynamoRepository)(nil)

func NewFoodCardDynamoRepository(ddb *dynamodb.Client) *FoodCardDynamoRepository {
	return &FoodCardDynamoRepository{
		ddb:          ddb,
		cardsTable:   envOr("FOOD_CARDS_TABLE", defaultFoodCardsTableName),
		entriesTable: envOr("FOOD_CARD_ENTRIES_TABLE", defaultFoodCardEntriesTableName),
	}
}

func (r *FoodCardDynamoRepository) Get(ctx context.Context, userID string) (entities.FoodCard, error) {
	out, err := r.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.cardsTable),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return entities.FoodCard{}, err
	}
	if len(out.Item) == 0 {
		// A card that was never credited reads as zero.
		return entities.FoodCard{UserID: userID, Balance: decimal.Zero}, nil
	}
	return unmarshalFoodCard(userID, out.Item)
}

func (r *FoodCardDynamoRepository) Credit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (entities.FoodCard, error) {
	if err := validateMovement(userID, amount, reference); err != nil {
		return entities.FoodCard{}, err
	}

	entryPut, err := r.entryPut(userID, entities.FoodCardEntryCredit, amount, reference)
	if err != nil {
		return entities.FoodCard{}, err
	}

	_, err = r.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: entryPut},
			{Update: &types.Update{
				TableName: aws.String(r.cardsTable),
				Key: map[string]types.AttributeValue{
					"user_id": &types.AttributeValueMemberS{Value: userID},
				},
				UpdateExpression: aws.String("SET balance = if_not_exists(balance, :zero) + :amt, updated_at = :now"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":zero": &types.AttributeValueMemberN{Value: "0"},
					":amt":  &types.AttributeValueMemberN{Value: amount.String()},
					":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
				},
			}},
		},
	})
	if err != nil {
		if isDuplicateReference(err) {
			return r.Get(ctx, userID)
		}
		return entities.FoodCard{}, err
	}
	return r.Get(ctx, userID)
}

func (r *FoodCardDynamoRepository) Debit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (entities.FoodCard, error) {
	if err := validateMovement(userID, amount, reference); err != nil {
		return entities.FoodCard{}, err
	}

	entryPut, err := r.entryPut(userID, entities.FoodCardEntryDebit, amount, reference)
	if err != nil {
		return entities.FoodCard{}, err
	}

	_, err = r.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: entryPut},
			{Update: &types.Update{
				TableName: aws.String(r.cardsTable),
				Key: map[string]types.AttributeValue{
					"user_id": &types.AttributeValueMemberS{Value: userID},
				},
				UpdateExpression:    aws.String("SET balance = balance - :amt, updated_at = :now"),
				ConditionExpression: aws.String("balance >= :amt"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":amt": &types.AttributeValueMemberN{Value: amount.String()},
					":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
				},
			}},
		},
	})
	if err != nil {
		if isDuplicateReference(err) {
			return r.Get(ctx, userID)
		}
		if isBalanceConditionFailure(err) {
			return entities.FoodCard{}, interfaces.ErrInsufficientBalance
		}
		return entities.FoodCard{}, err
	}
	return r.Get(ctx, userID)
}

func (r *FoodCardDynamoRepository) entryPut(userID string, entryType entities.FoodCardEntryType, amount decimal.Decimal, reference string) (*types.Put, error) {
	av, err := attributevalue.MarshalMap(foodCardEntryItem{
		Reference: reference,
		UserID:    userID,
		Type:      string(entryType),
		Amount:    amount.String(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return &types.Put{
		TableName:           aws.String(r.entriesTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#ref)"),
		ExpressionAttributeNames: map[string]string{
			"#ref": "reference",
		},
	}, nil
}

func validateMovement(userID string, amount decimal.Decimal, reference string) error {
	if userID == "" {
		return fmt.Errorf("food card movement without user id")
	}
	if reference == "" {
		return fmt.Errorf("food card movement without reference")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("food card movement with non-positive amount %s", amount)
	}
	return nil
}

// The entry Put is the first transact item, the balance Update the second;
// the cancellation reason index tells them apart.
func isDuplicateReference(err error) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) || len(canceled.CancellationReasons) < 1 {
		return false
	}
	return aws.ToString(canceled.CancellationReasons[0].Code) == "ConditionalCheckFailed"
}

func isBalanceConditionFailure(err error) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) || len(canceled.CancellationReasons) < 2 {
		return false
	}
	return aws.ToString(canceled.CancellationReasons[1].Code) == "ConditionalCheckFailed"
}

func unmarshalFoodCard(userID string, item map[string]types.AttributeValue) (entities.FoodCard, error) {
	card := entities.FoodCard{UserID: userID, Balance: decimal.Zero}
	if n, ok := item["balance"].(*types.AttributeValueMemberN); ok {
		balance, err := decimal.NewFromString(n.Value)
		if err != nil {
			return entities.FoodCard{}, fmt.Errorf("food card %s has malformed balance %q", userID, n.Value)
		}
		card.Balance = balance
	}
	if s, ok := item["updated_at"].(*types.AttributeValueMemberS); ok {
		card.UpdatedAt = parseTime(s.Value)
	}
	return card, nil
}
