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

// Operator is a scan/query predicate operator.
type Operator string

const (
	OpEq         Operator = "="
	OpGt         Operator = ">"
	OpGe         Operator = ">="
	OpLt         Operator = "<"
	OpLe         Operator = "<="
	OpBeginsWith Operator = "beginsWith"
)

// ParseOperator accepts the operator spellings of the condition language.
// "beginWith" is accepted as an alias of beginsWith.
func ParseOperator(s string) (Operator, error) {
	switch strings.TrimSpace(s) {
	case "=", "==":
		return OpEq, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGe, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLe, nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginswith", "beginwith", "begins_with":
		return OpBeginsWith, nil
	}
	return "", errors.Configurationf("condition", "unsupported operator %q", s)
}

// Condition is one field predicate: {operator, value}.
type Condition struct {
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// UnmarshalJSON parses the operator and keeps numbers exact.
func (c *Condition) UnmarshalJSON(b []byte) error {
	var raw struct {
		Operator string `json:"operator"`
		Value    any    `json:"value"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	op, err := ParseOperator(raw.Operator)
	if err != nil {
		return err
	}
	c.Operator = op
	c.Value = raw.Value
	return nil
}

// Conditions maps a field name to its predicate. All predicates must hold.
type Conditions map[string]Condition

// Eq is shorthand for an equality condition.
func Eq(v any) Condition { return Condition{Operator: OpEq, Value: v} }

// BeginsWith is shorthand for a prefix condition.
func BeginsWith(prefix string) Condition { return Condition{Operator: OpBeginsWith, Value: prefix} }

// Normalize validates operators and reduces every value to a scalar. A
// mapping value with exactly one entry is unwrapped to that entry.
func (c Conditions) Normalize() (Conditions, error) {
	out := make(Conditions, len(c))
	for field, cond := range c {
		op, err := ParseOperator(string(cond.Operator))
		if err != nil {
			return nil, err
		}
		v := cond.Value
		if m, ok := v.(map[string]any); ok {
			if len(m) != 1 {
				return nil, errors.Configurationf("condition", "field %q: composite value must hold exactly one entry, got %d", field, len(m))
			}
			for _, inner := range m {
				v = inner
			}
		}
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, errors.Configuration("condition", err)
		}
		if nv == nil {
			return nil, errors.Configurationf("condition", "field %q: value is required", field)
		}
		out[field] = Condition{Operator: op, Value: nv}
	}
	return out, nil
}

// Match reports whether rec satisfies every condition. Conditions must be
// normalized. A field missing from rec never matches.
func (c Conditions) Match(rec Record) bool {
	for field, cond := range c {
		v, ok := rec[field]
		if !ok || v == nil {
			return false
		}
		if !cond.Eval(v) {
			return false
		}
	}
	return true
}

// Eval applies the predicate to a single value.
func (cond Condition) Eval(v any) bool {
	if cond.Operator == OpBeginsWith {
		return strings.HasPrefix(ValueString(v), ValueString(cond.Value))
	}
	cmp := Compare(v, cond.Value)
	switch cond.Operator {
	case OpEq:
		return cmp == 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	}
	return false
}

// Compare orders two normalized values: numerically when both are numbers,
// lexically on their string form otherwise.
func Compare(a, b any) int {
	fa, aNum := asFloat(a)
	fb, bNum := asFloat(b)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(ValueString(a), ValueString(b))
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

// ValidateKeyConditions checks that query conditions only address key
// structure: an equality on the key field, and optionally any operator on
// the subkey field.
func ValidateKeyConditions(q QueryContext, conds Conditions) error {
	if err := q.ValidateTable("query"); err != nil {
		return err
	}
	if q.KeyField == "" {
		return errors.Configurationf("query", "primary key field name is not set").WithTarget(q.Table, "", "")
	}
	keyCond, ok := conds[q.KeyField]
	if !ok {
		return errors.Operationf("query", "a condition on key field %q is required", q.KeyField).WithTarget(q.Table, "", "").AsPermanent()
	}
	if keyCond.Operator != OpEq {
		return errors.Operationf("query", "key field %q only supports %q, got %q", q.KeyField, OpEq, keyCond.Operator).WithTarget(q.Table, "", "").AsPermanent()
	}
	for field := range conds {
		if field != q.KeyField && (q.SubkeyField == "" || field != q.SubkeyField) {
			return errors.Operationf("query", "field %q is not part of the key structure", field).WithTarget(q.Table, "", "").AsPermanent()
		}
	}
	return nil
}
