/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/datastore/retry"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

const (
	// batchGetLimit is the BatchGetItem per-request key limit.
	batchGetLimit = 100
	// batchWriteLimit is the BatchWriteItem per-request item limit.
	batchWriteLimit = 25
)

func itemKey(q storagemodels.QueryContext) string {
	return q.Table + "\x00" + q.CompositeKey()
}

// BatchGet reads the addressed items in requests of up to 100 keys,
// resubmitting UnprocessedKeys until they drain. Duplicate conditions
// are read once.
func (d *Provider) BatchGet(ctx context.Context, conditions []storagemodels.BatchCondition) (map[string][]storagemodels.Record, error) {
	seen := make(map[string]bool, len(conditions))
	var queries []storagemodels.QueryContext
	for _, c := range conditions {
		q, err := c.Query()
		if err != nil {
			return nil, err
		}
		if seen[itemKey(q)] {
			continue
		}
		seen[itemKey(q)] = true
		queries = append(queries, q)
	}

	out := make(map[string][]storagemodels.Record)
	for start := 0; start < len(queries); start += batchGetLimit {
		chunk := queries[start:min(start+batchGetLimit, len(queries))]
		req := make(map[string]types.KeysAndAttributes)
		for _, q := range chunk {
			ka := req[q.Table]
			ka.Keys = append(ka.Keys, d.keyOf(q))
			ka.ConsistentRead = aws.Bool(true)
			req[q.Table] = ka
		}
		if err := d.batchGetChunk(ctx, req, chunk, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *Provider) batchGetChunk(ctx context.Context, pending map[string]types.KeysAndAttributes, payload []storagemodels.QueryContext, out map[string][]storagemodels.Record) error {
	for round := 1; len(pending) > 0; round++ {
		if round > d.retry.Attempts() {
			return errors.Operationf("batchGet", "unprocessed keys remain after %d rounds", d.retry.Attempts()).
				WithProvider(d.name).
				WithPayload(retry.Payload(pendingKeys(pending)))
		}
		in := &sdk.BatchGetItemInput{RequestItems: pending}
		resp, err := call(ctx, d, "batchGet", storagemodels.QueryContext{}, payload, func(ctx context.Context) (*sdk.BatchGetItemOutput, error) {
			return d.client.BatchGetItem(ctx, in)
		})
		if err != nil {
			return err
		}
		for table, items := range resp.Responses {
			for _, item := range items {
				rec, err := d.decodeItem("batchGet", storagemodels.NewQuery(table), item)
				if err != nil {
					return err
				}
				out[table] = append(out[table], rec)
			}
		}

		pending = resp.UnprocessedKeys
		if len(pending) > 0 {
			d.logger.Debug("resubmitting unprocessed keys", zap.String("provider", d.name), zap.Int("round", round))
			if err := d.retry.Wait(ctx, round); err != nil {
				return errors.Operation("batchGet", err).WithProvider(d.name)
			}
		}
	}
	return nil
}

type pendingWrite struct {
	key   string
	table string
	req   types.WriteRequest
}

// BatchWrite sends intents in requests of up to 25 items. A request never
// holds the same item twice, so a repeated key starts a new request and
// caller order is kept across them. UnprocessedItems are resubmitted.
func (d *Provider) BatchWrite(ctx context.Context, intents []storagemodels.WriteIntent) error {
	writes := make([]pendingWrite, 0, len(intents))
	for _, w := range intents {
		q, err := w.Query()
		if err != nil {
			return err
		}
		pw := pendingWrite{key: itemKey(q), table: q.Table}
		if w.Action == storagemodels.ActionDelete {
			pw.req = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: d.keyOf(q)}}
		} else {
			rec, err := datastore.PrepareWrite("batchWrite", q, w.Data)
			if err != nil {
				return err
			}
			item, err := d.itemOf(q, rec)
			if err != nil {
				return err
			}
			pw.req = types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
		}
		writes = append(writes, pw)
	}

	for _, chunk := range chunkWrites(writes) {
		req := make(map[string][]types.WriteRequest)
		for _, pw := range chunk {
			req[pw.table] = append(req[pw.table], pw.req)
		}
		if err := d.batchWriteChunk(ctx, req, len(chunk)); err != nil {
			return err
		}
	}
	return nil
}

// chunkWrites splits writes into requests of at most batchWriteLimit
// items with distinct keys.
func chunkWrites(writes []pendingWrite) [][]pendingWrite {
	var chunks [][]pendingWrite
	var cur []pendingWrite
	keys := make(map[string]bool)
	for _, pw := range writes {
		if len(cur) == batchWriteLimit || keys[pw.key] {
			chunks = append(chunks, cur)
			cur = nil
			keys = make(map[string]bool)
		}
		cur = append(cur, pw)
		keys[pw.key] = true
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func (d *Provider) batchWriteChunk(ctx context.Context, pending map[string][]types.WriteRequest, size int) error {
	for round := 1; len(pending) > 0; round++ {
		if round > d.retry.Attempts() {
			return errors.Operationf("batchWrite", "unprocessed items remain after %d rounds", d.retry.Attempts()).
				WithProvider(d.name).
				WithPayload(retry.Payload(pendingWrites(pending)))
		}
		in := &sdk.BatchWriteItemInput{RequestItems: pending}
		resp, err := call(ctx, d, "batchWrite", storagemodels.QueryContext{}, map[string]int{"items": size}, func(ctx context.Context) (*sdk.BatchWriteItemOutput, error) {
			return d.client.BatchWriteItem(ctx, in)
		})
		if err != nil {
			return err
		}
		pending = resp.UnprocessedItems
		if len(pending) > 0 {
			d.logger.Debug("resubmitting unprocessed items", zap.String("provider", d.name), zap.Int("round", round))
			if err := d.retry.Wait(ctx, round); err != nil {
				return errors.Operation("batchWrite", err).WithProvider(d.name)
			}
		}
	}
	return nil
}

// pendingKeys renders unprocessed keys per table for error payloads.
func pendingKeys(pending map[string]types.KeysAndAttributes) map[string][]storagemodels.Record {
	out := make(map[string][]storagemodels.Record, len(pending))
	for table, ka := range pending {
		for _, key := range ka.Keys {
			if rec, err := decodeItem(key); err == nil {
				out[table] = append(out[table], rec)
			}
		}
	}
	return out
}

type pendingIntent struct {
	Action storagemodels.Action `json:"action"`
	Data   storagemodels.Record `json:"data"`
}

// pendingWrites renders unprocessed write requests per table for error
// payloads. Deletes carry only the key.
func pendingWrites(pending map[string][]types.WriteRequest) map[string][]pendingIntent {
	out := make(map[string][]pendingIntent, len(pending))
	for table, reqs := range pending {
		for _, req := range reqs {
			w := pendingIntent{Action: storagemodels.ActionPut}
			var item map[string]types.AttributeValue
			switch {
			case req.PutRequest != nil:
				item = req.PutRequest.Item
			case req.DeleteRequest != nil:
				w.Action = storagemodels.ActionDelete
				item = req.DeleteRequest.Key
			}
			if rec, err := decodeItem(item); err == nil {
				w.Data = rec
			}
			out[table] = append(out[table], w)
		}
	}
	return out
}
