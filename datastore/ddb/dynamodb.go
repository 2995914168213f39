/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/datastore/connpool"
	"github.com/suparena/genericstore/datastore/retry"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/registry"
	"github.com/suparena/genericstore/storagemodels"
)

const ProviderName = "dynamodb"

// dynamoAPI is the subset of *sdk.Client the provider calls.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error)
	PutItem(ctx context.Context, in *sdk.PutItemInput, optFns ...func(*sdk.Options)) (*sdk.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *sdk.UpdateItemInput, optFns ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *sdk.DeleteItemInput, optFns ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, in *sdk.BatchGetItemInput, optFns ...func(*sdk.Options)) (*sdk.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, in *sdk.BatchWriteItemInput, optFns ...func(*sdk.Options)) (*sdk.BatchWriteItemOutput, error)
	Scan(ctx context.Context, in *sdk.ScanInput, optFns ...func(*sdk.Options)) (*sdk.ScanOutput, error)
	Query(ctx context.Context, in *sdk.QueryInput, optFns ...func(*sdk.Options)) (*sdk.QueryOutput, error)
}

var clients = connpool.New[*sdk.Client]()

func init() {
	registry.RegisterProvider(ProviderName, Connect)
}

// Options configures a DynamoDB provider.
type Options struct {
	Name     string
	PageSize int
	// NumericKeys names key attributes declared as N in the table schema.
	// All other key attributes are written as S.
	NumericKeys []string
	Retry       retry.Policy
	Logger      *zap.Logger
}

// Provider implements datastore.Provider over DynamoDB. Tables must
// exist with the key field as partition key and the subkey field, when
// used, as sort key.
type Provider struct {
	client      dynamoAPI
	name        string
	pageSize    int
	numericKeys map[string]bool
	retry       retry.Policy
	logger      *zap.Logger
	release     func() error
}

var _ datastore.Provider = (*Provider)(nil)

// NewDynamoDBClient initializes a DynamoDB client. Static credentials are
// used when accessKey is set, the default chain otherwise. The SDK's own
// retryer is disabled; the provider retries.
func NewDynamoDBClient(ctx context.Context, accessKey, secretKey, region, endpoint string) (*sdk.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Configuration("connect", err).WithProvider(ProviderName)
	}
	return sdk.NewFromConfig(cfg, func(o *sdk.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Connect builds a provider from configuration. Recognized keys: region,
// access_key, secret_key, endpoint, page_size, max_attempts, numeric_keys.
func Connect(ctx context.Context, cfg config.ProviderConfig) (datastore.Provider, error) {
	region, err := cfg.String("region")
	if err != nil {
		return nil, err
	}
	accessKey := cfg.StringDefault("access_key", "")
	secretKey := cfg.StringDefault("secret_key", "")
	endpoint := cfg.StringDefault("endpoint", "")
	if accessKey != "" && secretKey == "" {
		return nil, errors.Configurationf("connect", "dynamodb: secret_key is required with access_key")
	}
	pageSize, err := cfg.IntDefault("page_size", datastore.DefaultPageSize)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := cfg.IntDefault("max_attempts", retry.DefaultMaxAttempts)
	if err != nil {
		return nil, err
	}
	numericKeys, err := cfg.StringSlice("numeric_keys")
	if err != nil {
		return nil, err
	}

	key := connpool.Key(ProviderName, region, endpoint, accessKey, connpool.Secret(secretKey))
	client, err := clients.Acquire(key, func() (*sdk.Client, error) {
		zap.L().Info("DynamoDB client initialized", zap.String("region", region), zap.String("endpoint", endpoint))
		return NewDynamoDBClient(ctx, accessKey, secretKey, region, endpoint)
	})
	if err != nil {
		return nil, err
	}

	p := New(client, Options{
		Name:        cfg.Name(),
		PageSize:    pageSize,
		NumericKeys: numericKeys,
		Retry:       retry.Default(ProviderName).WithMaxAttempts(maxAttempts),
	})
	p.release = func() error { return clients.Release(key) }
	return p, nil
}

// New wraps an existing client.
func New(client dynamoAPI, opts Options) *Provider {
	if opts.Name == "" {
		opts.Name = ProviderName
	}
	if opts.PageSize <= 0 {
		opts.PageSize = datastore.DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Default(opts.Name)
	}
	if opts.Retry.Provider == "" {
		opts.Retry.Provider = opts.Name
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = opts.Logger
	}
	numeric := make(map[string]bool, len(opts.NumericKeys))
	for _, k := range opts.NumericKeys {
		numeric[strings.TrimSpace(k)] = true
	}
	return &Provider{
		client:      client,
		name:        opts.Name,
		pageSize:    opts.PageSize,
		numericKeys: numeric,
		retry:       opts.Retry,
		logger:      opts.Logger,
	}
}

func (d *Provider) Name() string { return d.name }

// call runs one remote request under the retry policy with errors
// classified for retrying.
func call[T any](ctx context.Context, d *Provider, op string, q storagemodels.QueryContext, payload any, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.Value(ctx, d.retry, op, payload, func(ctx context.Context) (T, error) {
		out, err := fn(ctx)
		if err != nil {
			var zero T
			return zero, classify(op, err).WithProvider(d.name).WithTarget(q.Table, q.KeyValue, q.SubkeyValue)
		}
		return out, nil
	})
}

// Get retrieves a single item with a consistent read. It returns nil, nil
// if no item is found.
func (d *Provider) Get(ctx context.Context, q storagemodels.QueryContext) (storagemodels.Record, error) {
	if err := q.ValidateKey("get"); err != nil {
		return nil, err
	}
	in := &sdk.GetItemInput{
		TableName:      aws.String(q.Table),
		Key:            d.keyOf(q),
		ConsistentRead: aws.Bool(true),
	}
	out, err := call(ctx, d, "get", q, q, func(ctx context.Context) (*sdk.GetItemOutput, error) {
		return d.client.GetItem(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	return d.decodeItem("get", q, out.Item)
}

// Put stores the record, replacing any existing item.
func (d *Provider) Put(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	rec, err := datastore.PrepareWrite("put", q, record)
	if err != nil {
		return err
	}
	item, err := d.itemOf(q, rec)
	if err != nil {
		return err
	}
	in := &sdk.PutItemInput{TableName: aws.String(q.Table), Item: item}
	_, err = call(ctx, d, "put", q, rec, func(ctx context.Context) (*sdk.PutItemOutput, error) {
		return d.client.PutItem(ctx, in)
	})
	return err
}

// Update sets the supplied non-key attributes. DynamoDB creates the item
// when it does not exist.
func (d *Provider) Update(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	rec, err := datastore.PrepareWrite("update", q, record)
	if err != nil {
		return err
	}
	updates := make(map[string]any, len(rec))
	for field, v := range rec {
		if field == q.KeyField || (q.HasSubkey() && field == q.SubkeyField) {
			continue
		}
		updates[field] = v
	}

	in := &sdk.UpdateItemInput{
		TableName: aws.String(q.Table),
		Key:       d.keyOf(q),
	}
	if len(updates) > 0 {
		updateExpr, names, values, err := buildUpdateExpression(updates)
		if err != nil {
			return errors.Operation("update", err).WithProvider(d.name).WithTarget(q.Table, q.KeyValue, q.SubkeyValue).AsPermanent()
		}
		in.UpdateExpression = aws.String(updateExpr)
		in.ExpressionAttributeNames = names
		in.ExpressionAttributeValues = values
	}

	_, err = call(ctx, d, "update", q, rec, func(ctx context.Context) (*sdk.UpdateItemOutput, error) {
		return d.client.UpdateItem(ctx, in)
	})
	return err
}

// Delete removes an item. Deleting an absent key succeeds.
func (d *Provider) Delete(ctx context.Context, q storagemodels.QueryContext) error {
	if err := q.ValidateKey("delete"); err != nil {
		return err
	}
	in := &sdk.DeleteItemInput{TableName: aws.String(q.Table), Key: d.keyOf(q)}
	_, err := call(ctx, d, "delete", q, q, func(ctx context.Context) (*sdk.DeleteItemOutput, error) {
		return d.client.DeleteItem(ctx, in)
	})
	return err
}

// keyOf builds the primary key of q.
func (d *Provider) keyOf(q storagemodels.QueryContext) map[string]types.AttributeValue {
	key := map[string]types.AttributeValue{
		q.KeyField: d.keyAttr(q.KeyField, q.KeyValue),
	}
	if q.HasSubkey() {
		key[q.SubkeyField] = d.keyAttr(q.SubkeyField, q.SubkeyValue)
	}
	return key
}

func (d *Provider) keyAttr(field, value string) types.AttributeValue {
	if d.numericKeys[field] {
		return &types.AttributeValueMemberN{Value: value}
	}
	return &types.AttributeValueMemberS{Value: value}
}

// itemOf encodes rec with the key attributes taken from q.
func (d *Provider) itemOf(q storagemodels.QueryContext, rec storagemodels.Record) (map[string]types.AttributeValue, error) {
	item, err := encodeRecord(rec)
	if err != nil {
		return nil, errors.Operation("encode", err).WithProvider(d.name).WithTarget(q.Table, q.KeyValue, q.SubkeyValue).AsPermanent()
	}
	for k, v := range d.keyOf(q) {
		item[k] = v
	}
	return item, nil
}

func (d *Provider) decodeItem(op string, q storagemodels.QueryContext, item map[string]types.AttributeValue) (storagemodels.Record, error) {
	rec, err := decodeItem(item)
	if err != nil {
		return nil, errors.Operation(op, err).WithProvider(d.name).WithTarget(q.Table, q.KeyValue, q.SubkeyValue)
	}
	return rec, nil
}

// Close releases the pooled client.
func (d *Provider) Close() error {
	if d.release != nil {
		return d.release()
	}
	return nil
}
