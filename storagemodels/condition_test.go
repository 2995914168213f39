/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/genericstore/errors"
)

func TestParseOperator(t *testing.T) {
	for in, want := range map[string]Operator{
		"=": OpEq, ">": OpGt, ">=": OpGe, "<": OpLt, "<=": OpLe,
		"beginsWith": OpBeginsWith, "beginWith": OpBeginsWith, "BEGINSWITH": OpBeginsWith,
	} {
		got, err := ParseOperator(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOperator("between")
	assert.True(t, errors.IsConfiguration(err))
}

func TestConditionsMatchEveryOperator(t *testing.T) {
	records := []Record{
		{"id": "a1", "score": int64(5), "name": "alice"},
		{"id": "a2", "score": int64(10), "name": "albert"},
		{"id": "b1", "score": 15.5, "name": "bob"},
		{"id": "b2", "name": "bella"},
	}

	tests := []struct {
		name  string
		conds Conditions
		want  []string
	}{
		{"eq", Conditions{"score": Eq(int64(10))}, []string{"a2"}},
		{"gt", Conditions{"score": {Operator: OpGt, Value: int64(5)}}, []string{"a2", "b1"}},
		{"ge", Conditions{"score": {Operator: OpGe, Value: int64(10)}}, []string{"a2", "b1"}},
		{"lt", Conditions{"score": {Operator: OpLt, Value: 10.0}}, []string{"a1"}},
		{"le", Conditions{"score": {Operator: OpLe, Value: int64(10)}}, []string{"a1", "a2"}},
		{"beginsWith", Conditions{"name": BeginsWith("al")}, []string{"a1", "a2"}},
		{"conjunction", Conditions{"id": BeginsWith("b"), "name": Eq("bella")}, []string{"b2"}},
		{"empty matches all", Conditions{}, []string{"a1", "a2", "b1", "b2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds, err := tt.conds.Normalize()
			require.NoError(t, err)

			var got []string
			for _, rec := range records {
				if conds.Match(rec) {
					got = append(got, rec["id"].(string))
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionsNormalizeUnwrapsSingleEntryMapping(t *testing.T) {
	conds, err := Conditions{"id": {Operator: OpEq, Value: map[string]any{"S": "k1"}}}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "k1", conds["id"].Value)

	_, err = Conditions{"id": {Operator: OpEq, Value: map[string]any{"a": 1, "b": 2}}}.Normalize()
	assert.True(t, errors.IsConfiguration(err))
}

func TestConditionUnmarshalJSON(t *testing.T) {
	var conds Conditions
	err := json.Unmarshal([]byte(`{"score":{"operator":">=","value":10},"name":{"operator":"beginWith","value":"al"}}`), &conds)
	require.NoError(t, err)

	conds, err = conds.Normalize()
	require.NoError(t, err)
	assert.Equal(t, Condition{Operator: OpGe, Value: int64(10)}, conds["score"])
	assert.Equal(t, OpBeginsWith, conds["name"].Operator)
}

func TestValidateKeyConditions(t *testing.T) {
	q := NewQuery("events").WithKeyName("user").WithSubkeyName("ts")

	assert.NoError(t, ValidateKeyConditions(q, Conditions{"user": Eq("u1")}))
	assert.NoError(t, ValidateKeyConditions(q, Conditions{"user": Eq("u1"), "ts": {Operator: OpGt, Value: int64(3)}}))

	err := ValidateKeyConditions(q, Conditions{"ts": Eq(int64(3))})
	assert.True(t, errors.IsOperation(err), "missing key condition")

	err = ValidateKeyConditions(q, Conditions{"user": BeginsWith("u")})
	assert.True(t, errors.IsOperation(err), "non-equality on key")

	err = ValidateKeyConditions(q, Conditions{"user": Eq("u1"), "payload": Eq("x")})
	assert.True(t, errors.IsOperation(err), "non-key field")

	err = ValidateKeyConditions(NewQuery("events"), Conditions{"user": Eq("u1")})
	assert.True(t, errors.IsConfiguration(err), "key field unset")
}
