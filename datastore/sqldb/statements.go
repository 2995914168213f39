/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqldb

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// likeEscape is the LIKE escape character. A backslash would need
// different quoting in MySQL and SQLite.
const likeEscape = "!"

// ident validates and backtick-quotes a table or column name.
func ident(op, name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", errors.Configurationf(op, "invalid identifier %q", name)
	}
	return "`" + name + "`", nil
}

func idents(op string, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		q, err := ident(op, n)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// keyWhere renders the primary key predicate of q.
func keyWhere(op string, q storagemodels.QueryContext) (string, []any, error) {
	key, err := ident(op, q.KeyField)
	if err != nil {
		return "", nil, err
	}
	clause := key + " = ?"
	args := []any{q.KeyValue}
	if q.HasSubkey() {
		sub, err := ident(op, q.SubkeyField)
		if err != nil {
			return "", nil, err
		}
		clause += " AND " + sub + " = ?"
		args = append(args, q.SubkeyValue)
	}
	return clause, args, nil
}

func selectOne(q storagemodels.QueryContext) (string, []any, error) {
	table, err := ident("get", q.Table)
	if err != nil {
		return "", nil, err
	}
	where, args, err := keyWhere("get", q)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT 1", table, where), args, nil
}

func deleteOne(op string, q storagemodels.QueryContext) (string, []any, error) {
	table, err := ident(op, q.Table)
	if err != nil {
		return "", nil, err
	}
	where, args, err := keyWhere(op, q)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args, nil
}

func insert(op string, q storagemodels.QueryContext, rec storagemodels.Record) (string, []any, error) {
	table, err := ident(op, q.Table)
	if err != nil {
		return "", nil, err
	}
	fields := rec.Fields()
	cols, err := idents(op, fields)
	if err != nil {
		return "", nil, err
	}
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, rec[f])
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks), args, nil
}

// update renders an UPDATE of every non-key field of rec. It returns an
// empty statement when rec carries only key fields.
func update(q storagemodels.QueryContext, rec storagemodels.Record) (string, []any, error) {
	table, err := ident("update", q.Table)
	if err != nil {
		return "", nil, err
	}
	var sets []string
	var args []any
	for _, f := range rec.Fields() {
		if f == q.KeyField || (q.HasSubkey() && f == q.SubkeyField) {
			continue
		}
		col, err := ident("update", f)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, col+" = ?")
		args = append(args, rec[f])
	}
	if len(sets) == 0 {
		return "", nil, nil
	}
	where, keyArgs, err := keyWhere("update", q)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where), append(args, keyArgs...), nil
}

// selectPage renders a paged SELECT. Rows are ordered by the key and
// subkey columns when the query names them, so LIMIT/OFFSET pages are
// stable; otherwise by the first column.
func selectPage(op string, q storagemodels.QueryContext, conds storagemodels.Conditions, fields []string) (string, []any, error) {
	table, err := ident(op, q.Table)
	if err != nil {
		return "", nil, err
	}
	cols := "*"
	if len(fields) > 0 {
		quoted, err := idents(op, fields)
		if err != nil {
			return "", nil, err
		}
		cols = strings.Join(quoted, ", ")
	}

	names := make([]string, 0, len(conds))
	for f := range conds {
		names = append(names, f)
	}
	sort.Strings(names)
	var where []string
	var args []any
	for _, f := range names {
		col, err := ident(op, f)
		if err != nil {
			return "", nil, err
		}
		cond := conds[f]
		if cond.Operator == storagemodels.OpBeginsWith {
			where = append(where, fmt.Sprintf("%s LIKE ? ESCAPE '%s'", col, likeEscape))
			args = append(args, escapeLike(storagemodels.ValueString(cond.Value))+"%")
			continue
		}
		where = append(where, fmt.Sprintf("%s %s ?", col, cond.Operator))
		args = append(args, cond.Value)
	}

	order := "1"
	if q.KeyField != "" {
		order, err = ident(op, q.KeyField)
		if err != nil {
			return "", nil, err
		}
		if q.SubkeyField != "" {
			sub, err := ident(op, q.SubkeyField)
			if err != nil {
				return "", nil, err
			}
			order += ", " + sub
		}
	}

	stmt := "SELECT " + cols + " FROM " + table
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY " + order + " LIMIT ? OFFSET ?"
	return stmt, args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return r.Replace(s)
}
