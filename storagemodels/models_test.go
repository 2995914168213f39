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

func TestQueryContextIsAValue(t *testing.T) {
	base := NewQuery("users").WithKeyName("id")
	withKey := base.WithKey("id", "k1")

	assert.Equal(t, "", base.KeyValue, "builder must not mutate the receiver")
	assert.Equal(t, "k1", withKey.KeyValue)
}

func TestQueryContextValidateKey(t *testing.T) {
	assert.True(t, errors.IsConfiguration(QueryContext{}.ValidateKey("get")))
	assert.True(t, errors.IsConfiguration(NewQuery("t").ValidateKey("get")))
	assert.True(t, errors.IsConfiguration(NewQuery("t").WithKeyName("id").ValidateKey("get")))
	assert.True(t, errors.IsConfiguration(NewQuery("t").WithKey("id", "1").WithSubkeyName("v").ValidateKey("get")))
	assert.NoError(t, NewQuery("t").WithKey("id", "1").WithSubkey("v", "2").ValidateKey("get"))
}

func TestQueryContextForRecordAndStamp(t *testing.T) {
	q := NewQuery("t").WithKey("id", "configured").WithSubkeyName("version")

	resolved := q.ForRecord(Record{"id": "k1", "version": int64(3)})
	assert.Equal(t, "k1", resolved.KeyValue)
	assert.Equal(t, "3", resolved.SubkeyValue)
	assert.Equal(t, "k1::3", resolved.CompositeKey())

	stamped := NewQuery("t").WithKey("id", "k9").Stamp(Record{"contents": "v"})
	assert.Equal(t, Record{"id": "k9", "contents": "v"}, stamped)
}

func TestRecordHelpers(t *testing.T) {
	rec := Record{"a": 1, "b": "x", "c": 2.5}

	norm, err := rec.Normalize()
	require.NoError(t, err)
	assert.Equal(t, int64(1), norm["a"])

	assert.Equal(t, []string{"a", "b", "c"}, rec.Fields())
	assert.Equal(t, Record{"b": "x"}, rec.Project([]string{"b", "missing"}))
	assert.Equal(t, Record{"a": 1, "b": "y", "c": 2.5, "d": true}, rec.Merge(Record{"b": "y", "d": true}))
	assert.Equal(t, Record{"a": 1, "b": "x", "c": 2.5}, rec, "Merge must not mutate")

	_, err = Record{"bad": struct{}{}}.Normalize()
	assert.Error(t, err)
}

func TestWriteIntentJSON(t *testing.T) {
	var intents []WriteIntent
	err := json.Unmarshal([]byte(`[
		{"table":"users","key":"id","data":{"id":"k1","age":30}},
		{"table":"users","key":"id","subkey":"v","action":"DELETE","data":{"id":"k2","v":"1"}}
	]`), &intents)
	require.NoError(t, err)

	require.Len(t, intents, 2)
	assert.Equal(t, ActionPut, intents[0].Action)
	assert.Equal(t, int64(30), intents[0].Data["age"])
	assert.Equal(t, ActionDelete, intents[1].Action)

	q, err := intents[1].Query()
	require.NoError(t, err)
	assert.Equal(t, "k2::1", q.CompositeKey())

	err = json.Unmarshal([]byte(`[{"table":"users","key":"id","action":"upsert","data":{"id":"k1"}}]`), &intents)
	assert.Error(t, err)
}

func TestBatchConditionQuery(t *testing.T) {
	_, err := BatchCondition{Table: "users", KeyField: "id", Data: Record{}}.Query()
	assert.True(t, errors.IsConfiguration(err))

	q, err := BatchCondition{Table: "users", KeyField: "id", SubkeyField: "v", Data: Record{"id": "k1"}}.Query()
	require.NoError(t, err)
	assert.False(t, q.HasSubkey(), "absent subkey value addresses the key alone")
}
