/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package redis

import (
	"context"
	"strings"

	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/storagemodels"
)

// Scan walks the table's keys with SCAN MATCH table::* COUNT page_size.
// COUNT is a hint, so page sizes vary and pages may be empty.
func (p *Provider) Scan(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	conds, err := datastore.PrepareScan(q, conditions)
	if err != nil {
		return nil, err
	}
	return datastore.NewPagedResultSet(ctx, p.fetcher("scan", q, conds, fields, ""))
}

// Query narrows the SCAN pattern to the key value.
func (p *Provider) Query(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	conds, err := datastore.PrepareQuery(q, conditions)
	if err != nil {
		return nil, err
	}
	keyValue := storagemodels.ValueString(conds[q.KeyField].Value)
	return datastore.NewPagedResultSet(ctx, p.fetcher("query", q, conds, fields, keyValue))
}

type scanPage struct {
	keys   []string
	values []any
	next   uint64
}

// fetcher reads one SCAN step and the values of its keys. The cursor is
// the server's SCAN cursor; 0 ends the iteration. SCAN may return a key
// more than once, so keys already delivered are skipped.
func (p *Provider) fetcher(op string, q storagemodels.QueryContext, conds storagemodels.Conditions, fields []string, keyValue string) datastore.PageFetcher {
	tablePrefix := q.Table + storagemodels.KeyDelimiter
	pattern := escapeGlob(tablePrefix+keyValue) + "*"
	seen := make(map[string]bool)

	return func(ctx context.Context, cursor datastore.Cursor) (datastore.Page, error) {
		var from uint64
		if c, ok := cursor.(uint64); ok {
			from = c
		}
		res, err := call(ctx, p, op, q, map[string]any{"match": pattern, "cursor": from}, func(ctx context.Context) (scanPage, error) {
			keys, next, err := p.client.Scan(ctx, from, pattern, int64(p.pageSize)).Result()
			if err != nil || len(keys) == 0 {
				return scanPage{next: next}, err
			}
			values, err := p.client.MGet(ctx, keys...).Result()
			return scanPage{keys: keys, values: values, next: next}, err
		})
		if err != nil {
			return datastore.Page{}, err
		}

		var page datastore.Page
		if res.next != 0 {
			page.Next = res.next
		}
		for i, key := range res.keys {
			if seen[key] {
				continue
			}
			seen[key] = true
			if keyValue != "" && !inKeyRange(strings.TrimPrefix(key, tablePrefix), keyValue) {
				continue
			}
			s, ok := res.values[i].(string)
			if !ok {
				// deleted between SCAN and MGET
				continue
			}
			rec, err := p.decode(op, q, []byte(s))
			if err != nil {
				return datastore.Page{}, err
			}
			if conds.Match(rec) {
				page.Records = append(page.Records, datastore.Project(rec, fields))
			}
		}
		return page, nil
	}
}

func inKeyRange(composite, k string) bool {
	return composite == k || strings.HasPrefix(composite, k+storagemodels.KeyDelimiter)
}
