/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/suparena/genericstore/errors"
)

// KeyDelimiter joins key and subkey values into a composite storage key.
const KeyDelimiter = "::"

// QueryContext addresses the next operation. It is a value: every With*
// call returns a modified copy and leaves the receiver untouched.
type QueryContext struct {
	Table       string `json:"table"`
	KeyField    string `json:"key,omitempty"`
	KeyValue    string `json:"keyValue,omitempty"`
	SubkeyField string `json:"subkey,omitempty"`
	SubkeyValue string `json:"subkeyValue,omitempty"`
}

// NewQuery starts a QueryContext for table.
func NewQuery(table string) QueryContext {
	return QueryContext{Table: table}
}

func (q QueryContext) WithTable(table string) QueryContext {
	q.Table = table
	return q
}

func (q QueryContext) WithKey(field, value string) QueryContext {
	q.KeyField = field
	q.KeyValue = value
	return q
}

func (q QueryContext) WithKeyName(field string) QueryContext {
	q.KeyField = field
	return q
}

func (q QueryContext) WithSubkey(field, value string) QueryContext {
	q.SubkeyField = field
	q.SubkeyValue = value
	return q
}

func (q QueryContext) WithSubkeyName(field string) QueryContext {
	q.SubkeyField = field
	return q
}

// HasSubkey reports whether the subkey participates in addressing.
func (q QueryContext) HasSubkey() bool {
	return q.SubkeyField != "" && q.SubkeyValue != ""
}

// CompositeKey renders key[::subkey].
func (q QueryContext) CompositeKey() string {
	if q.HasSubkey() {
		return q.KeyValue + KeyDelimiter + q.SubkeyValue
	}
	return q.KeyValue
}

// ValidateTable fails when no table is configured.
func (q QueryContext) ValidateTable(op string) error {
	if q.Table == "" {
		return errors.Configurationf(op, "table name is not set")
	}
	return nil
}

// ValidateKey fails unless table, key field and key value are all set.
func (q QueryContext) ValidateKey(op string) error {
	if err := q.ValidateTable(op); err != nil {
		return err
	}
	if q.KeyField == "" {
		return errors.Configurationf(op, "primary key field name is not set").WithTarget(q.Table, "", "")
	}
	if q.KeyValue == "" {
		return errors.Configurationf(op, "primary key value is not set").WithTarget(q.Table, "", "")
	}
	if q.SubkeyField != "" && q.SubkeyValue == "" {
		return errors.Configurationf(op, "subkey %q has no value", q.SubkeyField).WithTarget(q.Table, q.KeyValue, "")
	}
	return nil
}

// ForRecord resolves key and subkey values from rec when it carries them;
// a value in the record overrides the configured one.
func (q QueryContext) ForRecord(rec Record) QueryContext {
	if q.KeyField != "" {
		if v, ok := rec[q.KeyField]; ok && v != nil {
			q.KeyValue = ValueString(v)
		}
	}
	if q.SubkeyField != "" {
		if v, ok := rec[q.SubkeyField]; ok && v != nil {
			q.SubkeyValue = ValueString(v)
		}
	}
	return q
}

// Stamp returns a copy of rec carrying the key and subkey fields of q.
func (q QueryContext) Stamp(rec Record) Record {
	out := rec.Clone()
	if out == nil {
		out = Record{}
	}
	if q.KeyField != "" {
		if _, ok := out[q.KeyField]; !ok {
			out[q.KeyField] = q.KeyValue
		}
	}
	if q.SubkeyField != "" && q.SubkeyValue != "" {
		if _, ok := out[q.SubkeyField]; !ok {
			out[q.SubkeyField] = q.SubkeyValue
		}
	}
	return out
}

// Action is the mutation a WriteIntent applies.
type Action string

const (
	ActionPut    Action = "put"
	ActionDelete Action = "delete"
)

// ParseAction accepts put/delete case-insensitively; empty means put.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ActionPut):
		return ActionPut, nil
	case string(ActionDelete):
		return ActionDelete, nil
	default:
		return "", errors.Configurationf("batchWrite", "unknown action %q", s)
	}
}

// BatchCondition addresses one record of a batchGet.
type BatchCondition struct {
	Table       string `json:"table"`
	KeyField    string `json:"key"`
	SubkeyField string `json:"subkey,omitempty"`
	Data        Record `json:"data"`
}

// Query derives the QueryContext the condition addresses.
func (c BatchCondition) Query() (QueryContext, error) {
	return addressFromData("batchGet", c.Table, c.KeyField, c.SubkeyField, c.Data)
}

// WriteIntent is one put/delete of a batchWrite.
type WriteIntent struct {
	Action      Action `json:"action,omitempty"`
	Table       string `json:"table"`
	KeyField    string `json:"key"`
	SubkeyField string `json:"subkey,omitempty"`
	Data        Record `json:"data"`
}

// Query derives the QueryContext the intent addresses.
func (w WriteIntent) Query() (QueryContext, error) {
	return addressFromData("batchWrite", w.Table, w.KeyField, w.SubkeyField, w.Data)
}

// UnmarshalJSON validates the action while decoding.
func (w *WriteIntent) UnmarshalJSON(b []byte) error {
	type plain WriteIntent
	var p plain
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	action, err := ParseAction(string(p.Action))
	if err != nil {
		return err
	}
	p.Action = action
	data, err := p.Data.Normalize()
	if err != nil {
		return err
	}
	p.Data = data
	*w = WriteIntent(p)
	return nil
}

// UnmarshalJSON keeps numbers exact while decoding.
func (c *BatchCondition) UnmarshalJSON(b []byte) error {
	type plain BatchCondition
	var p plain
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	data, err := p.Data.Normalize()
	if err != nil {
		return err
	}
	p.Data = data
	*c = BatchCondition(p)
	return nil
}

func addressFromData(op, table, keyField, subkeyField string, data Record) (QueryContext, error) {
	q := QueryContext{Table: table, KeyField: keyField}
	if keyField == "" {
		return q, errors.Configurationf(op, "key field is not set").WithTarget(table, "", "")
	}
	v, ok := data[keyField]
	if !ok || v == nil {
		return q, errors.Configurationf(op, "data has no value for key field %q", keyField).WithTarget(table, "", "")
	}
	q.KeyValue = ValueString(v)
	if subkeyField != "" {
		if sv, ok := data[subkeyField]; ok && sv != nil {
			q.SubkeyField = subkeyField
			q.SubkeyValue = ValueString(sv)
		}
	}
	return q, q.ValidateKey(op)
}
