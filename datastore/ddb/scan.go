/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

// condValue encodes a condition value, honouring numeric key attributes.
func (d *Provider) condValue(field string, v any) (types.AttributeValue, error) {
	if d.numericKeys[field] {
		return &types.AttributeValueMemberN{Value: storagemodels.ValueString(v)}, nil
	}
	return encodeValue(v)
}

// Scan reads the whole table page by page. Each request examines at most
// pageSize items before the filter applies, so a page can come back empty
// while LastEvaluatedKey is still set.
func (d *Provider) Scan(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	conds, err := datastore.PrepareScan(q, conditions)
	if err != nil {
		return nil, err
	}

	e := newExpression()
	filter, err := e.filter(conds, d.condValue)
	if err != nil {
		return nil, errors.Operation("scan", err).WithProvider(d.name).WithTarget(q.Table, "", "").AsPermanent()
	}
	in := &sdk.ScanInput{
		TableName: aws.String(q.Table),
		Limit:     aws.Int32(int32(d.pageSize)),
	}
	if filter != "" {
		in.FilterExpression = aws.String(filter)
	}
	if proj := e.projection(fields); proj != "" {
		in.ProjectionExpression = aws.String(proj)
	}
	e.attach(&in.ExpressionAttributeNames, &in.ExpressionAttributeValues)

	return datastore.NewPagedResultSet(ctx, func(ctx context.Context, cursor datastore.Cursor) (datastore.Page, error) {
		req := *in
		req.ExclusiveStartKey = startKey(cursor)
		out, err := call(ctx, d, "scan", q, conds, func(ctx context.Context) (*sdk.ScanOutput, error) {
			return d.client.Scan(ctx, &req)
		})
		if err != nil {
			return datastore.Page{}, err
		}
		return d.page("scan", q, out.Items, out.LastEvaluatedKey)
	})
}

// Query reads the partition of the key value. A subkey condition becomes
// part of the key condition expression.
func (d *Provider) Query(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	conds, err := datastore.PrepareQuery(q, conditions)
	if err != nil {
		return nil, err
	}

	e := newExpression()
	keyCond, err := e.filter(conds, d.condValue)
	if err != nil {
		return nil, errors.Operation("query", err).WithProvider(d.name).WithTarget(q.Table, "", "").AsPermanent()
	}
	in := &sdk.QueryInput{
		TableName:              aws.String(q.Table),
		KeyConditionExpression: aws.String(keyCond),
		Limit:                  aws.Int32(int32(d.pageSize)),
		ConsistentRead:         aws.Bool(true),
	}
	if proj := e.projection(fields); proj != "" {
		in.ProjectionExpression = aws.String(proj)
	}
	e.attach(&in.ExpressionAttributeNames, &in.ExpressionAttributeValues)

	return datastore.NewPagedResultSet(ctx, func(ctx context.Context, cursor datastore.Cursor) (datastore.Page, error) {
		req := *in
		req.ExclusiveStartKey = startKey(cursor)
		out, err := call(ctx, d, "query", q, conds, func(ctx context.Context) (*sdk.QueryOutput, error) {
			return d.client.Query(ctx, &req)
		})
		if err != nil {
			return datastore.Page{}, err
		}
		return d.page("query", q, out.Items, out.LastEvaluatedKey)
	})
}

func startKey(cursor datastore.Cursor) map[string]types.AttributeValue {
	key, _ := cursor.(map[string]types.AttributeValue)
	return key
}

func (d *Provider) page(op string, q storagemodels.QueryContext, items []map[string]types.AttributeValue, last map[string]types.AttributeValue) (datastore.Page, error) {
	page := datastore.Page{Records: make([]storagemodels.Record, 0, len(items))}
	for _, item := range items {
		rec, err := d.decodeItem(op, q, item)
		if err != nil {
			return datastore.Page{}, err
		}
		page.Records = append(page.Records, rec)
	}
	if len(last) > 0 {
		page.Next = last
	}
	return page, nil
}
