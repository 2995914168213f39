/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/genericstore/storagemodels"
)

// encodeRecord marshals a normalized record: string to S, int64 and
// float64 to N, bool to BOOL and nil to NULL.
func encodeRecord(rec storagemodels.Record) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(map[string]any(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return item, nil
}

func encodeValue(v any) (types.AttributeValue, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value %v: %w", v, err)
	}
	return av, nil
}

// decodeItem converts an item into a normalized record. Numbers become
// int64 when integral and float64 otherwise. Lists, maps and sets are
// rendered as JSON strings.
func decodeItem(item map[string]types.AttributeValue) (storagemodels.Record, error) {
	rec := make(storagemodels.Record, len(item))
	for name, av := range item {
		v, err := decodeValue(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		rec[name] = v
	}
	return rec, nil
}

func decodeValue(av types.AttributeValue) (any, error) {
	switch tv := av.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value, nil
	case *types.AttributeValueMemberN:
		return parseNumber(tv.Value)
	case *types.AttributeValueMemberBOOL:
		return tv.Value, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberB:
		return string(tv.Value), nil
	default:
		var v any
		if err := attributevalue.Unmarshal(av, &v); err != nil {
			return nil, err
		}
		nv, err := storagemodels.NormalizeValue(v)
		if err != nil {
			// sets decode to typed slices
			b, jerr := json.Marshal(v)
			if jerr != nil {
				return nil, err
			}
			return string(b), nil
		}
		return nv, nil
	}
}

func parseNumber(s string) (any, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return f, nil
}
