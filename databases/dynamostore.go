package databases

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoKey is the partition key of every table. Records reuse their bson
// field names as attribute names.
const dynamoKey = "_id"

// zeroTime is how attributevalue encodes an unset time.Time
const zeroTime = "0001-01-01T00:00:00Z"

// DynamoAPI is the subset of the DynamoDB client used by the record store
type DynamoAPI interface {
	dynamodb.ScanAPIClient
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type dynamoRecordStore struct {
	client      DynamoAPI
	tablePrefix string
}

// NewDynamoClient loads the default AWS configuration. A non empty endpoint
// points the client at a local DynamoDB.
func NewDynamoClient(ctx context.Context, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewDynamoRecordStore returns a RecordStore backed by DynamoDB tables named
// tablePrefix + table
func NewDynamoRecordStore(client DynamoAPI, tablePrefix string) RecordStore {
	return &dynamoRecordStore{client: client, tablePrefix: tablePrefix}
}

func (s *dynamoRecordStore) tableName(table string) *string {
	return aws.String(s.tablePrefix + table)
}

func bsonTags(o *attributevalue.EncoderOptions) { o.TagKey = "bson" }

func bsonTagsDecode(o *attributevalue.DecoderOptions) { o.TagKey = "bson" }

// dynamoCondition translates predicates to a filter condition
func dynamoCondition(preds []Predicate) (expression.ConditionBuilder, error) {
	var conds []expression.ConditionBuilder
	for _, p := range preds {
		name := expression.Name(p.Field)
		var c expression.ConditionBuilder
		switch p.Op {
		case OpEq:
			c = name.Equal(expression.Value(p.Value))
		case OpNe:
			// a missing attribute never satisfies <>, mongo semantics want it to
			c = expression.Or(expression.AttributeNotExists(name), name.NotEqual(expression.Value(p.Value)))
		case OpLt:
			c = name.LessThan(expression.Value(p.Value))
		case OpLte:
			c = name.LessThanEqual(expression.Value(p.Value))
		case OpGt:
			c = name.GreaterThan(expression.Value(p.Value))
		case OpGte:
			c = name.GreaterThanEqual(expression.Value(p.Value))
		case OpIn:
			values, ok := p.Value.([]interface{})
			if !ok || len(values) == 0 {
				return expression.ConditionBuilder{}, fmt.Errorf("in operator needs a non empty list")
			}
			operands := make([]expression.OperandBuilder, 0, len(values)-1)
			for _, v := range values[1:] {
				operands = append(operands, expression.Value(v))
			}
			c = name.In(expression.Value(values[0]), operands...)
		default:
			return expression.ConditionBuilder{}, fmt.Errorf("unsupported operator %q", p.Op)
		}
		conds = append(conds, c)
	}
	switch len(conds) {
	case 1:
		return conds[0], nil
	case 2:
		return expression.And(conds[0], conds[1]), nil
	}
	return expression.And(conds[0], conds[1], conds[2:]...), nil
}

func (s *dynamoRecordStore) List(ctx context.Context, table string, q Query, out interface{}) error {
	input := &dynamodb.ScanInput{TableName: s.tableName(table)}
	if len(q.Where) > 0 {
		cond, err := dynamoCondition(q.Where)
		if err != nil {
			return err
		}
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return fmt.Errorf("failed to build filter expression: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}
		items = append(items, page.Items...)
	}

	// Scan has no ordering, sort client side on the decoded values
	if q.SortBy != "" {
		sort.SliceStable(items, func(i, j int) bool {
			a, aok := items[i][q.SortBy]
			b, bok := items[j][q.SortBy]
			if !aok || !bok {
				return aok && !bok
			}
			c := compareAttributes(a, b)
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && int64(len(items)) > q.Limit {
		items = items[:q.Limit]
	}

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("out must be a pointer to a slice, got %T", out)
	}
	if len(items) == 0 {
		rv.Elem().Set(reflect.MakeSlice(rv.Elem().Type(), 0, 0))
		return nil
	}
	return attributevalue.UnmarshalListOfMapsWithOptions(items, out, bsonTagsDecode)
}

// compareAttributes orders string and number attributes. Times are stored
// as RFC3339 strings.
func compareAttributes(a, b types.AttributeValue) int {
	switch x := a.(type) {
	case *types.AttributeValueMemberS:
		if y, ok := b.(*types.AttributeValueMemberS); ok {
			switch {
			case x.Value < y.Value:
				return -1
			case x.Value > y.Value:
				return 1
			}
		}
	case *types.AttributeValueMemberN:
		var xf, yf float64
		if y, ok := b.(*types.AttributeValueMemberN); ok {
			fmt.Sscan(x.Value, &xf)
			fmt.Sscan(y.Value, &yf)
			switch {
			case xf < yf:
				return -1
			case xf > yf:
				return 1
			}
		}
	}
	return 0
}

func (s *dynamoRecordStore) Get(ctx context.Context, table, id string, out interface{}) error {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: s.tableName(table),
		Key:       map[string]types.AttributeValue{dynamoKey: &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return fmt.Errorf("failed to get %s from %s: %w", id, table, err)
	}
	if res.Item == nil {
		return ErrNotFound
	}
	return attributevalue.UnmarshalMapWithOptions(res.Item, out, bsonTagsDecode)
}

func (s *dynamoRecordStore) Create(ctx context.Context, table string, record interface{}) (string, error) {
	item, err := attributevalue.MarshalMapWithOptions(record, bsonTags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	id := ""
	if v, ok := item[dynamoKey].(*types.AttributeValueMemberS); ok {
		id = v.Value
	}
	if id == "" {
		id = NewID()
		item[dynamoKey] = &types.AttributeValueMemberS{Value: id}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, field := range []string{"created_at", "updated_at"} {
		if v, ok := item[field].(*types.AttributeValueMemberS); !ok || v.Value == zeroTime {
			item[field] = &types.AttributeValueMemberS{Value: now}
		}
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: s.tableName(table),
		Item:      item,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put item into %s: %w", table, err)
	}
	return id, nil
}

func (s *dynamoRecordStore) Update(ctx context.Context, table, id string, fields Fields) error {
	var update expression.UpdateBuilder
	for k, v := range withUpdatedAt(fields) {
		update = update.Set(expression.Name(k), expression.Value(v))
	}
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(dynamoKey))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build update expression: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 s.tableName(table),
		Key:                       map[string]types.AttributeValue{dynamoKey: &types.AttributeValueMemberS{Value: id}},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update %s in %s: %w", id, table, err)
	}
	return nil
}

func (s *dynamoRecordStore) Delete(ctx context.Context, table, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           s.tableName(table),
		Key:                 map[string]types.AttributeValue{dynamoKey: &types.AttributeValueMemberS{Value: id}},
		ConditionExpression: aws.String("attribute_exists(#k)"),
		ExpressionAttributeNames: map[string]string{
			"#k": dynamoKey,
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s from %s: %w", id, table, err)
	}
	return nil
}
