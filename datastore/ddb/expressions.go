/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/genericstore/storagemodels"
)

// buildUpdateExpression transforms a map of field->value into:
//   - an "update expression" (e.g., "SET #f0 = :v0, #f1 = :v1")
//   - a corresponding map of expression attribute names
//   - a corresponding map of expression attribute values
//
// Fields are visited in sorted order so the expression is deterministic.
func buildUpdateExpression(updates map[string]any) (string,
	map[string]string,
	map[string]types.AttributeValue,
	error) {

	if len(updates) == 0 {
		return "", nil, nil, errors.New("no updates provided")
	}

	fields := make([]string, 0, len(updates))
	for field := range updates {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	setClauses := make([]string, 0, len(updates))
	exprAttrNames := make(map[string]string, len(updates))
	exprAttrValues := make(map[string]types.AttributeValue, len(updates))

	for i, field := range fields {
		placeholderName := fmt.Sprintf("#f%d", i)
		placeholderValue := fmt.Sprintf(":v%d", i)

		av, err := encodeValue(updates[field])
		if err != nil {
			return "", nil, nil, fmt.Errorf("unhandled update value for field '%s': %w", field, err)
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", placeholderName, placeholderValue))
		exprAttrNames[placeholderName] = field
		exprAttrValues[placeholderValue] = av
	}

	return "SET " + strings.Join(setClauses, ", "), exprAttrNames, exprAttrValues, nil
}

// expression accumulates placeholders for one request.
type expression struct {
	names  map[string]string
	values map[string]types.AttributeValue
	nextN  int
	nextV  int
}

func newExpression() *expression {
	return &expression{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

func (e *expression) name(field string) string {
	for ph, f := range e.names {
		if f == field {
			return ph
		}
	}
	ph := fmt.Sprintf("#n%d", e.nextN)
	e.nextN++
	e.names[ph] = field
	return ph
}

func (e *expression) value(av types.AttributeValue) string {
	ph := fmt.Sprintf(":c%d", e.nextV)
	e.nextV++
	e.values[ph] = av
	return ph
}

// predicate renders one condition against field.
func (e *expression) predicate(field string, cond storagemodels.Condition, av types.AttributeValue) string {
	n := e.name(field)
	v := e.value(av)
	if cond.Operator == storagemodels.OpBeginsWith {
		return fmt.Sprintf("begins_with(%s, %s)", n, v)
	}
	return fmt.Sprintf("%s %s %s", n, cond.Operator, v)
}

// valueEncoder turns a condition value on field into an attribute value.
type valueEncoder func(field string, v any) (types.AttributeValue, error)

// filter renders conditions joined by AND in sorted field order. skip
// names fields that are already part of a key condition.
func (e *expression) filter(conds storagemodels.Conditions, encode valueEncoder, skip ...string) (string, error) {
	fields := make([]string, 0, len(conds))
	for field := range conds {
		if slices.Contains(skip, field) {
			continue
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	for _, field := range fields {
		cond := conds[field]
		value := cond.Value
		if cond.Operator == storagemodels.OpBeginsWith {
			value = storagemodels.ValueString(value)
		}
		av, err := encode(field, value)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, e.predicate(field, cond, av))
	}
	return strings.Join(clauses, " AND "), nil
}

// projection renders a ProjectionExpression for fields.
func (e *expression) projection(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, e.name(f))
	}
	return strings.Join(parts, ", ")
}

// attach sets the placeholder maps on a request when any were used.
func (e *expression) attach(names *map[string]string, values *map[string]types.AttributeValue) {
	if len(e.names) > 0 {
		*names = e.names
	}
	if len(e.values) > 0 {
		*values = e.values
	}
}
