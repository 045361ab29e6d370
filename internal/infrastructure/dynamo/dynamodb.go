package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"poster-api/internal/config"
)

// DynamoStore implements Store on a real DynamoDB table.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
	log    zerolog.Logger
}

// NewDynamoStore builds the DynamoDB-backed store and verifies the table is
// reachable. A configured endpoint switches to static credentials for
// DynamoDB Local.
func NewDynamoStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*DynamoStore, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoEndpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoRegion),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AWSAccessKeyID,
				cfg.AWSSecretKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoRegion),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	})

	store := &DynamoStore{
		client: client,
		table:  cfg.DynamoTable,
		log:    log.With().Str("component", "dynamo-store").Logger(),
	}

	if err := store.HealthCheck(ctx); err != nil {
		return nil, err
	}

	store.log.Info().
		Str("table", cfg.DynamoTable).
		Str("region", cfg.DynamoRegion).
		Str("endpoint", cfg.DynamoEndpoint).
		Msg("dynamo store initialized")

	return store, nil
}

// Get returns the item at (pk, sk), or nil when absent.
func (s *DynamoStore) Get(ctx context.Context, pk, sk string) (Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
		Key:            keyOf(pk, sk),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// Put writes a full item, optionally guarded by a condition.
func (s *DynamoStore) Put(ctx context.Context, item Item, cond *Condition) error {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}
	if cond != nil {
		expr, names, values := compileCondition(cond)
		input.ConditionExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		if len(values) > 0 {
			input.ExpressionAttributeValues = values
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Update applies the mutation iff the condition holds, returning the item's
// new state.
func (s *DynamoStore) Update(ctx context.Context, pk, sk string, mut Mutation, cond *Condition) (Item, error) {
	update, names, values := compileMutation(mut)
	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyOf(pk, sk),
		UpdateExpression:          aws.String(update),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if cond != nil {
		expr, condNames, condValues := compileCondition(cond)
		input.ConditionExpression = aws.String(expr)
		for alias, name := range condNames {
			names[alias] = name
		}
		for alias, value := range condValues {
			values[alias] = value
		}
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrConditionFailed
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	return out.Attributes, nil
}

// Query ranges over one partition by sort-key prefix.
func (s *DynamoStore) Query(ctx context.Context, pk, skPrefix string, opts QueryOptions) (*Page, error) {
	names := map[string]string{
		"#pk": AttrPK,
		"#sk": AttrSK,
	}
	values := map[string]types.AttributeValue{
		":pk":  &types.AttributeValueMemberS{Value: pk},
		":skp": &types.AttributeValueMemberS{Value: skPrefix},
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String("#pk = :pk AND begins_with(#sk, :skp)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(!opts.Descending),
	}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(opts.Limit)
	}
	if len(opts.StartKey) > 0 {
		input.ExclusiveStartKey = opts.StartKey
	}
	if len(opts.BoolFilter) > 0 {
		input.FilterExpression = aws.String(compileBoolFilter(opts.BoolFilter, names, values))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	page := &Page{Items: out.Items}
	if len(out.LastEvaluatedKey) > 0 {
		page.LastKey = out.LastEvaluatedKey
	}
	return page, nil
}

// HealthCheck verifies the table is accessible.
func (s *DynamoStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return fmt.Errorf("dynamo health check: %w", err)
	}
	return nil
}

func keyOf(pk, sk string) Item {
	return Item{
		AttrPK: &types.AttributeValueMemberS{Value: pk},
		AttrSK: &types.AttributeValueMemberS{Value: sk},
	}
}

func compileCondition(cond *Condition) (string, map[string]string, map[string]types.AttributeValue) {
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	clauses := make([]string, 0, 4)
	next := 0

	alias := func(name string) string {
		a := fmt.Sprintf("#c%d", next)
		next++
		names[a] = name
		return a
	}

	if cond.ItemExists != nil {
		names["#cpk"] = AttrPK
		if *cond.ItemExists {
			clauses = append(clauses, "attribute_exists(#cpk)")
		} else {
			clauses = append(clauses, "attribute_not_exists(#cpk)")
		}
	}
	for _, name := range cond.AttrAbsent {
		clauses = append(clauses, fmt.Sprintf("attribute_not_exists(%s)", alias(name)))
	}
	for name, value := range cond.NumberEq {
		a := alias(name)
		v := fmt.Sprintf(":c%d", next)
		values[v] = &types.AttributeValueMemberN{Value: strconv.FormatInt(value, 10)}
		clauses = append(clauses, fmt.Sprintf("%s = %s", a, v))
	}
	for name, value := range cond.NumberGT {
		a := alias(name)
		v := fmt.Sprintf(":c%d", next)
		values[v] = &types.AttributeValueMemberN{Value: strconv.FormatInt(value, 10)}
		clauses = append(clauses, fmt.Sprintf("%s > %s", a, v))
	}

	return strings.Join(clauses, " AND "), names, values
}

func compileMutation(mut Mutation) (string, map[string]string, map[string]types.AttributeValue) {
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	parts := make([]string, 0, 2)
	next := 0

	if len(mut.Set) > 0 {
		assignments := make([]string, 0, len(mut.Set))
		for name, value := range mut.Set {
			a := fmt.Sprintf("#u%d", next)
			v := fmt.Sprintf(":u%d", next)
			next++
			names[a] = name
			values[v] = value
			assignments = append(assignments, fmt.Sprintf("%s = %s", a, v))
		}
		parts = append(parts, "SET "+strings.Join(assignments, ", "))
	}
	if len(mut.Add) > 0 {
		additions := make([]string, 0, len(mut.Add))
		for name, delta := range mut.Add {
			a := fmt.Sprintf("#u%d", next)
			v := fmt.Sprintf(":u%d", next)
			next++
			names[a] = name
			values[v] = &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)}
			additions = append(additions, fmt.Sprintf("%s %s", a, v))
		}
		parts = append(parts, "ADD "+strings.Join(additions, ", "))
	}

	return strings.Join(parts, " "), names, values
}

func compileBoolFilter(filter map[string]bool, names map[string]string, values map[string]types.AttributeValue) string {
	clauses := make([]string, 0, len(filter))
	next := 0
	for name, want := range filter {
		a := fmt.Sprintf("#f%d", next)
		v := fmt.Sprintf(":f%d", next)
		next++
		names[a] = name
		values[v] = &types.AttributeValueMemberBOOL{Value: want}
		if want {
			clauses = append(clauses, fmt.Sprintf("%s = %s", a, v))
		} else {
			clauses = append(clauses, fmt.Sprintf("(attribute_not_exists(%s) OR %s = %s)", a, a, v))
		}
	}
	return strings.Join(clauses, " AND ")
}
