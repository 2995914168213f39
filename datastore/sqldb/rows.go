/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqldb

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/suparena/genericstore/storagemodels"
)

// scanRecords reads every row into a record. NULL columns are left out.
func scanRecords(rows *sql.Rows) ([]storagemodels.Record, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	var out []storagemodels.Record
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(storagemodels.Record, len(types))
		for i, ct := range types {
			if v := columnValue(ct.DatabaseTypeName(), values[i]); v != nil {
				rec[ct.Name()] = v
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// columnValue normalizes a scanned value. Drivers using the text protocol
// hand back numbers as bytes, so the declared column type decides.
func columnValue(typeName string, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return fromText(typeName, string(x))
	case string:
		return fromText(typeName, x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		nv, err := storagemodels.NormalizeValue(x)
		if err != nil {
			return storagemodels.ValueString(x)
		}
		return nv
	}
}

func fromText(typeName, s string) any {
	t := strings.ToUpper(typeName)
	switch {
	case strings.Contains(t, "INT"):
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"),
		strings.Contains(t, "DEC"), strings.Contains(t, "NUMERIC"):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
