package storage

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"PropertyScanner/internal/domain"
)

const tableName = "properties"

var timeType = reflect.TypeOf(time.Time{})

// columns lists every record column in struct order.
func columns() []string {
	fields := domain.Fields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

// columnType maps a record field onto its Postgres type.
func columnType(f domain.Field) string {
	switch f {
	case domain.FieldID:
		return "TEXT PRIMARY KEY"
	case domain.FieldExternalID:
		return "TEXT NOT NULL UNIQUE"
	}

	t, ok := fieldType(f)
	if !ok {
		return "TEXT"
	}
	if t.Kind() == reflect.Bool {
		return "BOOLEAN NOT NULL DEFAULT FALSE"
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return "TIMESTAMPTZ"
	case t.Kind() == reflect.Slice:
		return "TEXT[]"
	case t.Kind() == reflect.Float64:
		return "DOUBLE PRECISION"
	case t.Kind() == reflect.Int:
		return "INTEGER"
	case t.Kind() == reflect.Bool:
		return "BOOLEAN"
	}
	return "TEXT"
}

func fieldType(f domain.Field) (reflect.Type, bool) {
	rt := reflect.TypeOf(domain.PropertyRecord{})
	for i := 0; i < rt.NumField(); i++ {
		if rt.Field(i).Tag.Get("db") == string(f) {
			return rt.Field(i).Type, true
		}
	}
	return nil, false
}

// migrations returns the statements that bring the properties table up to
// date. Columns added after the first deploy are created with ADD COLUMN IF
// NOT EXISTS so the list can grow.
func migrations() []string {
	var defs []string
	for _, f := range domain.Fields() {
		defs = append(defs, fmt.Sprintf("%s %s", f, columnType(f)))
	}
	defs = append(defs,
		"created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		"updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
	)

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", tableName, strings.Join(defs, ",\n    ")),
	}
	for _, f := range domain.Fields() {
		if f == domain.FieldID || f == domain.FieldExternalID {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", tableName, f, columnType(f)))
	}
	stmts = append(stmts,
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_postcode_idx ON %s (UPPER(REPLACE(postcode, ' ', '')))", tableName, tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)", tableName, tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_ingested_idx ON %s (last_ingested_at) WHERE NOT is_stale", tableName, tableName),
	)
	return stmts
}
