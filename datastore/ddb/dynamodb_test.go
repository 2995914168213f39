/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/datastore/retry"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

// fakeClient records requests and answers from per-method hooks.
type fakeClient struct {
	mu sync.Mutex

	gets    []*sdk.GetItemInput
	puts    []*sdk.PutItemInput
	updates []*sdk.UpdateItemInput
	deletes []*sdk.DeleteItemInput
	bgets   []*sdk.BatchGetItemInput
	bwrites []*sdk.BatchWriteItemInput
	scans   []*sdk.ScanInput
	queries []*sdk.QueryInput

	getFn    func(in *sdk.GetItemInput) (*sdk.GetItemOutput, error)
	putFn    func(in *sdk.PutItemInput) (*sdk.PutItemOutput, error)
	bgetFn   func(in *sdk.BatchGetItemInput) (*sdk.BatchGetItemOutput, error)
	bwriteFn func(in *sdk.BatchWriteItemInput) (*sdk.BatchWriteItemOutput, error)
	scanFn   func(in *sdk.ScanInput) (*sdk.ScanOutput, error)
	queryFn  func(in *sdk.QueryInput) (*sdk.QueryOutput, error)
}

func (f *fakeClient) GetItem(_ context.Context, in *sdk.GetItemInput, _ ...func(*sdk.Options)) (*sdk.GetItemOutput, error) {
	f.mu.Lock()
	f.gets = append(f.gets, in)
	f.mu.Unlock()
	if f.getFn != nil {
		return f.getFn(in)
	}
	return &sdk.GetItemOutput{}, nil
}

func (f *fakeClient) PutItem(_ context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	f.mu.Lock()
	f.puts = append(f.puts, in)
	f.mu.Unlock()
	if f.putFn != nil {
		return f.putFn(in)
	}
	return &sdk.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(_ context.Context, in *sdk.UpdateItemInput, _ ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)
	return &sdk.UpdateItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, in *sdk.DeleteItemInput, _ ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, in)
	return &sdk.DeleteItemOutput{}, nil
}

func (f *fakeClient) BatchGetItem(_ context.Context, in *sdk.BatchGetItemInput, _ ...func(*sdk.Options)) (*sdk.BatchGetItemOutput, error) {
	f.mu.Lock()
	f.bgets = append(f.bgets, in)
	f.mu.Unlock()
	if f.bgetFn != nil {
		return f.bgetFn(in)
	}
	return &sdk.BatchGetItemOutput{}, nil
}

func (f *fakeClient) BatchWriteItem(_ context.Context, in *sdk.BatchWriteItemInput, _ ...func(*sdk.Options)) (*sdk.BatchWriteItemOutput, error) {
	f.mu.Lock()
	f.bwrites = append(f.bwrites, in)
	f.mu.Unlock()
	if f.bwriteFn != nil {
		return f.bwriteFn(in)
	}
	return &sdk.BatchWriteItemOutput{}, nil
}

func (f *fakeClient) Scan(_ context.Context, in *sdk.ScanInput, _ ...func(*sdk.Options)) (*sdk.ScanOutput, error) {
	f.mu.Lock()
	f.scans = append(f.scans, in)
	f.mu.Unlock()
	return f.scanFn(in)
}

func (f *fakeClient) Query(_ context.Context, in *sdk.QueryInput, _ ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	f.mu.Lock()
	f.queries = append(f.queries, in)
	f.mu.Unlock()
	return f.queryFn(in)
}

type sleeps struct {
	mu sync.Mutex
	n  int
}

func (s *sleeps) sleep(context.Context, time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return nil
}

func newTestProvider(client dynamoAPI, sl *sleeps, numeric ...string) *Provider {
	return New(client, Options{
		Name:        "ddb-test",
		PageSize:    2,
		NumericKeys: numeric,
		Retry: retry.Policy{
			MaxAttempts: 3,
			MinDelay:    time.Millisecond,
			MaxDelay:    time.Millisecond,
			Sleep:       sl.sleep,
		},
	})
}

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

var avCompare = cmp.Exporter(func(reflect.Type) bool { return true })

func TestPutEncodesRecordWithKeys(t *testing.T) {
	fc := &fakeClient{}
	d := newTestProvider(fc, &sleeps{})
	q := storagemodels.NewQuery("users").WithKey("id", "u1")

	require.NoError(t, d.Put(context.Background(), q, storagemodels.Record{"name": "Ann", "age": 31, "score": 1.5, "active": true}))
	require.Len(t, fc.puts, 1)
	in := fc.puts[0]
	assert.Equal(t, "users", aws.ToString(in.TableName))

	want := map[string]types.AttributeValue{
		"id":     s("u1"),
		"name":   s("Ann"),
		"age":    n("31"),
		"score":  n("1.5"),
		"active": &types.AttributeValueMemberBOOL{Value: true},
	}
	if diff := cmp.Diff(want, in.Item, avCompare); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}
}

func TestNumericKeys(t *testing.T) {
	fc := &fakeClient{}
	d := newTestProvider(fc, &sleeps{}, "seq")
	q := storagemodels.NewQuery("events").WithKey("id", "e1").WithSubkey("seq", "7")

	require.NoError(t, d.Put(context.Background(), q, storagemodels.Record{"kind": "a"}))
	assert.Equal(t, n("7"), fc.puts[0].Item["seq"])
	assert.Equal(t, s("e1"), fc.puts[0].Item["id"])
}

func TestGetIsConsistentAndDecodes(t *testing.T) {
	fc := &fakeClient{getFn: func(in *sdk.GetItemInput) (*sdk.GetItemOutput, error) {
		return &sdk.GetItemOutput{Item: map[string]types.AttributeValue{
			"id":  s("u1"),
			"age": n("31"),
			"avg": n("2.5"),
			"bio": &types.AttributeValueMemberNULL{Value: true},
		}}, nil
	}}
	d := newTestProvider(fc, &sleeps{})

	rec, err := d.Get(context.Background(), storagemodels.NewQuery("users").WithKey("id", "u1"))
	require.NoError(t, err)
	assert.Equal(t, storagemodels.Record{"id": "u1", "age": int64(31), "avg": 2.5, "bio": nil}, rec)
	assert.True(t, aws.ToBool(fc.gets[0].ConsistentRead))
}

func TestGetMissingReturnsNil(t *testing.T) {
	d := newTestProvider(&fakeClient{}, &sleeps{})
	rec, err := d.Get(context.Background(), storagemodels.NewQuery("users").WithKey("id", "nope"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpdateBuildsSortedExpressionWithoutKeys(t *testing.T) {
	fc := &fakeClient{}
	d := newTestProvider(fc, &sleeps{})
	q := storagemodels.NewQuery("users").WithKey("id", "u1")

	require.NoError(t, d.Update(context.Background(), q, storagemodels.Record{"name": "B", "age": 2}))
	in := fc.updates[0]
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1", aws.ToString(in.UpdateExpression))
	assert.Equal(t, map[string]string{"#f0": "age", "#f1": "name"}, in.ExpressionAttributeNames)
	assert.Equal(t, n("2"), in.ExpressionAttributeValues[":v0"])
	assert.Equal(t, map[string]types.AttributeValue{"id": s("u1")}, in.Key)
}

func TestUpdateWithOnlyKeysSendsNoExpression(t *testing.T) {
	fc := &fakeClient{}
	d := newTestProvider(fc, &sleeps{})
	require.NoError(t, d.Update(context.Background(), storagemodels.NewQuery("users").WithKey("id", "u1"), storagemodels.Record{"id": "u1"}))
	assert.Nil(t, fc.updates[0].UpdateExpression)
}

func TestThrottlingIsRetried(t *testing.T) {
	calls := 0
	fc := &fakeClient{putFn: func(*sdk.PutItemInput) (*sdk.PutItemOutput, error) {
		calls++
		if calls < 3 {
			return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
		}
		return &sdk.PutItemOutput{}, nil
	}}
	sl := &sleeps{}
	d := newTestProvider(fc, sl)

	require.NoError(t, d.Put(context.Background(), storagemodels.NewQuery("users").WithKey("id", "u1"), storagemodels.Record{}))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, sl.n)
}

func TestRetryExhaustion(t *testing.T) {
	fc := &fakeClient{putFn: func(*sdk.PutItemInput) (*sdk.PutItemOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}
	}}
	d := newTestProvider(fc, &sleeps{})

	err := d.Put(context.Background(), storagemodels.NewQuery("users").WithKey("id", "u1"), storagemodels.Record{"name": "x"})
	require.Error(t, err)
	assert.True(t, errors.IsOperation(err))
	assert.Len(t, fc.puts, 3)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "ddb-test", e.Provider)
	assert.Contains(t, e.Payload, `"name":"x"`)
}

func TestValidationErrorsAreNotRetried(t *testing.T) {
	fc := &fakeClient{putFn: func(*sdk.PutItemInput) (*sdk.PutItemOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "bad"}
	}}
	d := newTestProvider(fc, &sleeps{})

	err := d.Put(context.Background(), storagemodels.NewQuery("users").WithKey("id", "u1"), storagemodels.Record{})
	require.Error(t, err)
	assert.True(t, errors.IsPermanent(err))
	assert.Len(t, fc.puts, 1)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind errors.Kind
		perm bool
	}{
		{&smithy.GenericAPIError{Code: "ThrottlingException"}, errors.KindConnection, false},
		{&smithy.GenericAPIError{Code: "ResourceNotFoundException"}, errors.KindConfiguration, true},
		{&smithy.GenericAPIError{Code: "ConditionalCheckFailedException"}, errors.KindOperation, true},
		{fmt.Errorf("dial tcp: connection refused"), errors.KindConnection, false},
		{context.Canceled, errors.KindOperation, true},
	}
	for _, tt := range tests {
		err := classify("put", tt.err)
		assert.Equal(t, tt.kind, errors.KindOf(err), tt.err.Error())
		assert.Equal(t, tt.perm, errors.IsPermanent(err), tt.err.Error())
	}
}

func TestBatchGetChunksAndDrainsUnprocessed(t *testing.T) {
	round := 0
	fc := &fakeClient{}
	fc.bgetFn = func(in *sdk.BatchGetItemInput) (*sdk.BatchGetItemOutput, error) {
		round++
		ka := in.RequestItems["users"]
		out := &sdk.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
		keys := ka.Keys
		// the first response leaves the last key unprocessed
		if round == 1 {
			out.UnprocessedKeys = map[string]types.KeysAndAttributes{"users": {Keys: keys[len(keys)-1:]}}
			keys = keys[:len(keys)-1]
		}
		for _, k := range keys {
			out.Responses["users"] = append(out.Responses["users"], map[string]types.AttributeValue{"id": k["id"]})
		}
		return out, nil
	}
	sl := &sleeps{}
	d := newTestProvider(fc, sl)

	var conds []storagemodels.BatchCondition
	for i := 0; i < 150; i++ {
		conds = append(conds, storagemodels.BatchCondition{Table: "users", KeyField: "id", Data: storagemodels.Record{"id": fmt.Sprintf("u%03d", i)}})
	}
	conds = append(conds, conds[0])

	out, err := d.BatchGet(context.Background(), conds)
	require.NoError(t, err)
	assert.Len(t, out["users"], 150)
	require.Len(t, fc.bgets, 3)
	assert.Len(t, fc.bgets[0].RequestItems["users"].Keys, 100)
	assert.Len(t, fc.bgets[1].RequestItems["users"].Keys, 1)
	assert.Len(t, fc.bgets[2].RequestItems["users"].Keys, 50)
	assert.Equal(t, 1, sl.n)
}

func TestBatchGetGivesUpOnPersistentUnprocessed(t *testing.T) {
	fc := &fakeClient{bgetFn: func(in *sdk.BatchGetItemInput) (*sdk.BatchGetItemOutput, error) {
		return &sdk.BatchGetItemOutput{UnprocessedKeys: in.RequestItems}, nil
	}}
	d := newTestProvider(fc, &sleeps{})

	_, err := d.BatchGet(context.Background(), []storagemodels.BatchCondition{
		{Table: "users", KeyField: "id", Data: storagemodels.Record{"id": "u1"}},
	})
	require.Error(t, err)
	assert.Len(t, fc.bgets, 3)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "ddb-test", e.Provider)
	assert.JSONEq(t, `{"users":[{"id":"u1"}]}`, e.Payload)
}

func TestBatchWriteGivesUpOnPersistentUnprocessed(t *testing.T) {
	fc := &fakeClient{bwriteFn: func(in *sdk.BatchWriteItemInput) (*sdk.BatchWriteItemOutput, error) {
		return &sdk.BatchWriteItemOutput{UnprocessedItems: in.RequestItems}, nil
	}}
	d := newTestProvider(fc, &sleeps{})

	err := d.BatchWrite(context.Background(), []storagemodels.WriteIntent{
		{Table: "users", KeyField: "id", Data: storagemodels.Record{"id": "u1", "name": "Ann"}},
		{Table: "users", KeyField: "id", Action: storagemodels.ActionDelete, Data: storagemodels.Record{"id": "u2"}},
	})
	require.Error(t, err)
	assert.Len(t, fc.bwrites, 3)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.JSONEq(t, `{"users":[
		{"action":"put","data":{"id":"u1","name":"Ann"}},
		{"action":"delete","data":{"id":"u2"}}
	]}`, e.Payload)
}

func TestConnectPoolsClientsPerCredentials(t *testing.T) {
	ctx := context.Background()
	cfg := func(secret string) config.ProviderConfig {
		return config.ProviderConfig{
			"provider":   "dynamodb",
			"region":     "us-east-1",
			"endpoint":   "http://127.0.0.1:1",
			"access_key": "AKIDTEST",
			"secret_key": secret,
		}
	}
	connect := func(secret string) *Provider {
		p, err := Connect(ctx, cfg(secret))
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Close() })
		return p.(*Provider)
	}

	a := connect("secret-a")
	b := connect("secret-b")
	again := connect("secret-a")
	assert.NotSame(t, a.client, b.client)
	assert.Same(t, a.client, again.client)
}

func TestBatchWriteChunking(t *testing.T) {
	fc := &fakeClient{}
	d := newTestProvider(fc, &sleeps{})

	var intents []storagemodels.WriteIntent
	for i := 0; i < 30; i++ {
		intents = append(intents, storagemodels.WriteIntent{Table: "users", KeyField: "id", Data: storagemodels.Record{"id": fmt.Sprintf("u%02d", i)}})
	}
	// repeats u29, so it must land in a later request
	intents = append(intents, storagemodels.WriteIntent{Action: storagemodels.ActionDelete, Table: "users", KeyField: "id", Data: storagemodels.Record{"id": "u29"}})

	require.NoError(t, d.BatchWrite(context.Background(), intents))
	require.Len(t, fc.bwrites, 3)
	assert.Len(t, fc.bwrites[0].RequestItems["users"], 25)
	assert.Len(t, fc.bwrites[1].RequestItems["users"], 5)
	last := fc.bwrites[2].RequestItems["users"]
	require.Len(t, last, 1)
	require.NotNil(t, last[0].DeleteRequest)
	assert.Equal(t, s("u29"), last[0].DeleteRequest.Key["id"])
}

func TestBatchWriteResubmitsUnprocessed(t *testing.T) {
	round := 0
	fc := &fakeClient{bwriteFn: func(in *sdk.BatchWriteItemInput) (*sdk.BatchWriteItemOutput, error) {
		round++
		if round == 1 {
			return &sdk.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{"users": in.RequestItems["users"][1:]}}, nil
		}
		return &sdk.BatchWriteItemOutput{}, nil
	}}
	sl := &sleeps{}
	d := newTestProvider(fc, sl)

	err := d.BatchWrite(context.Background(), []storagemodels.WriteIntent{
		{Table: "users", KeyField: "id", Data: storagemodels.Record{"id": "a"}},
		{Table: "users", KeyField: "id", Data: storagemodels.Record{"id": "b"}},
	})
	require.NoError(t, err)
	require.Len(t, fc.bwrites, 2)
	assert.Len(t, fc.bwrites[1].RequestItems["users"], 1)
	assert.Equal(t, 1, sl.n)
}

func TestScanPaginationWithEmptyPage(t *testing.T) {
	pages := []*sdk.ScanOutput{
		{Items: []map[string]types.AttributeValue{{"id": s("a")}}, LastEvaluatedKey: map[string]types.AttributeValue{"id": s("b")}},
		{LastEvaluatedKey: map[string]types.AttributeValue{"id": s("d")}},
		{Items: []map[string]types.AttributeValue{{"id": s("e")}}},
	}
	fc := &fakeClient{}
	fc.scanFn = func(in *sdk.ScanInput) (*sdk.ScanOutput, error) {
		return pages[len(fc.scans)-1], nil
	}
	d := newTestProvider(fc, &sleeps{})

	conds := storagemodels.Conditions{"age": {Operator: storagemodels.OpGe, Value: 20}}
	rs, err := d.Scan(context.Background(), storagemodels.NewQuery("users"), conds, []string{"id"})
	require.NoError(t, err)
	recs, err := datastore.Collect(context.Background(), rs)
	require.NoError(t, err)
	assert.Equal(t, []storagemodels.Record{{"id": "a"}, {"id": "e"}}, recs)

	require.Len(t, fc.scans, 3)
	first := fc.scans[0]
	assert.Nil(t, first.ExclusiveStartKey)
	assert.Equal(t, int32(2), aws.ToInt32(first.Limit))
	assert.Equal(t, "#n0 >= :c0", aws.ToString(first.FilterExpression))
	assert.Equal(t, "#n1", aws.ToString(first.ProjectionExpression))
	assert.Equal(t, map[string]string{"#n0": "age", "#n1": "id"}, first.ExpressionAttributeNames)
	assert.Equal(t, map[string]types.AttributeValue{"id": s("d")}, fc.scans[2].ExclusiveStartKey)
}

func TestScanWithoutConditionsSendsNoFilter(t *testing.T) {
	fc := &fakeClient{scanFn: func(*sdk.ScanInput) (*sdk.ScanOutput, error) { return &sdk.ScanOutput{}, nil }}
	d := newTestProvider(fc, &sleeps{})

	rs, err := d.Scan(context.Background(), storagemodels.NewQuery("users"), nil, nil)
	require.NoError(t, err)
	ok, err := rs.HasNext(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, fc.scans[0].FilterExpression)
	assert.Nil(t, fc.scans[0].ExpressionAttributeNames)
}

func TestQueryKeyCondition(t *testing.T) {
	fc := &fakeClient{queryFn: func(*sdk.QueryInput) (*sdk.QueryOutput, error) {
		return &sdk.QueryOutput{Items: []map[string]types.AttributeValue{{"id": s("e1"), "seq": n("2")}}}, nil
	}}
	d := newTestProvider(fc, &sleeps{}, "seq")

	q := storagemodels.NewQuery("events").WithKeyName("id").WithSubkeyName("seq")
	conds := storagemodels.Conditions{
		"id":  storagemodels.Eq("e1"),
		"seq": {Operator: storagemodels.OpGe, Value: 2},
	}
	rs, err := d.Query(context.Background(), q, conds, nil)
	require.NoError(t, err)
	recs, err := datastore.Collect(context.Background(), rs)
	require.NoError(t, err)
	assert.Equal(t, []storagemodels.Record{{"id": "e1", "seq": int64(2)}}, recs)

	in := fc.queries[0]
	assert.Equal(t, "#n0 = :c0 AND #n1 >= :c1", aws.ToString(in.KeyConditionExpression))
	assert.Equal(t, map[string]string{"#n0": "id", "#n1": "seq"}, in.ExpressionAttributeNames)
	assert.Equal(t, n("2"), in.ExpressionAttributeValues[":c1"])
}

func TestQueryRejectsNonKeyConditions(t *testing.T) {
	d := newTestProvider(&fakeClient{}, &sleeps{})
	_, err := d.Query(context.Background(), storagemodels.NewQuery("users").WithKeyName("id"), storagemodels.Conditions{
		"id":   storagemodels.Eq("u1"),
		"name": storagemodels.Eq("x"),
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsPermanent(err))
}

func TestChunkWrites(t *testing.T) {
	w := func(k string) pendingWrite { return pendingWrite{key: k} }
	chunks := chunkWrites([]pendingWrite{w("a"), w("b"), w("a"), w("c")})
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 2)
}
