package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"mortgage-copilot/internal/domain"
)

const (
	pkPrefixDay  = "DAY#"
	skPrefixTurn = "TURN#"
	dayLayout    = "2006-01-02"

	DefaultTTL = 30 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// *dynamodb.Client satisfies it.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client journals chat turns into a DynamoDB table keyed by UTC day.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
}

// New creates a journal Client. A non-positive ttl falls back to DefaultTTL.
func New(api dynamodbAPI, tableName string, ttl time.Duration) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{api: api, tableName: tableName, ttl: ttl}, nil
}

func dayPK(ts time.Time) string {
	return pkPrefixDay + ts.UTC().Format(dayLayout)
}

// turnSK orders turns chronologically within a day; the correlation id keeps
// keys unique when two turns share a timestamp.
func turnSK(ts time.Time, correlationID string) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano) + "#" + correlationID
}

// RecordTurn writes one turn record. Records are immutable, so an existing
// key is reported as an error rather than overwritten.
func (c *Client) RecordTurn(ctx context.Context, rec domain.TurnRecord) error {
	if strings.TrimSpace(rec.CorrelationID) == "" {
		return errors.New("repository: RecordTurn: correlation id is required")
	}
	if rec.CreatedAt.IsZero() {
		return errors.New("repository: RecordTurn: created at is required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                turnItem(rec, rec.CreatedAt.Add(c.ttl).Unix()),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: RecordTurn: %w", err)
	}
	return nil
}

// TurnsForDay returns up to limit turns journaled on the UTC day of day,
// oldest first.
func (c *Client) TurnsForDay(ctx context.Context, day time.Time, limit int) ([]domain.TurnRecord, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: dayPK(day)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: TurnsForDay query: %w", err)
	}

	recs := make([]domain.TurnRecord, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: TurnsForDay unmarshal: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func turnItem(rec domain.TurnRecord, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: dayPK(rec.CreatedAt)},
		"SK":            &types.AttributeValueMemberS{Value: turnSK(rec.CreatedAt, rec.CorrelationID)},
		"correlationId": &types.AttributeValueMemberS{Value: rec.CorrelationID},
		"fromStage":     &types.AttributeValueMemberS{Value: rec.FromStage},
		"toStage":       &types.AttributeValueMemberS{Value: rec.ToStage},
		"ruleId":        &types.AttributeValueMemberS{Value: rec.RuleID},
		"advanced":      &types.AttributeValueMemberBOOL{Value: rec.Advanced},
		"messageCount":  &types.AttributeValueMemberN{Value: strconv.Itoa(rec.MessageCount)},
		"createdAt":     &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":           &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
}

func itemToTurn(item map[string]types.AttributeValue) (domain.TurnRecord, error) {
	corr, err := strAttr(item, "correlationId")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	from, err := strAttr(item, "fromStage")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	to, err := strAttr(item, "toStage")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	created, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return domain.TurnRecord{}, fmt.Errorf("repository: parse attribute %q: %w", "createdAt", err)
	}
	count, err := intAttr(item, "messageCount")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	ruleID, _ := strAttr(item, "ruleId") // allow empty

	var advanced bool
	if b, ok := item["advanced"].(*types.AttributeValueMemberBOOL); ok {
		advanced = b.Value
	}

	return domain.TurnRecord{
		CorrelationID: corr,
		FromStage:     from,
		ToStage:       to,
		RuleID:        ruleID,
		Advanced:      advanced,
		MessageCount:  count,
		CreatedAt:     createdAt,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
