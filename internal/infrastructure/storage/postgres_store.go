package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
)

// PostgresStore persists property records into Postgres.
type PostgresStore struct {
	db *sql.DB
}

var _ ports.RecordStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates or extends the properties table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database is not configured")
	}
	for _, stmt := range migrations() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Upsert inserts the record or merges it into the row with the same
// external_id. Listing economics are replaced when the row carries a price;
// every other column keeps its stored value when the incoming one is empty.
func (s *PostgresStore) Upsert(ctx context.Context, rec domain.PropertyRecord) (domain.UpsertOutcome, error) {
	if s.db == nil {
		return domain.OutcomeUnchanged, errors.New("database is not configured")
	}
	if strings.TrimSpace(rec.ExternalID) == "" {
		return domain.OutcomeUnchanged, domain.ErrNoIdentity
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	query, args, err := buildUpsert(rec)
	if err != nil {
		return domain.OutcomeUnchanged, fmt.Errorf("build upsert: %w", err)
	}

	var (
		id       string
		inserted bool
		prevHash sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id, &inserted, &prevHash); err != nil {
		return domain.OutcomeUnchanged, fmt.Errorf("upsert %s: %w", rec.ExternalID, err)
	}

	return classifyUpsert(inserted, prevHash.String, rec.SourceHash), nil
}

func classifyUpsert(inserted bool, previous, next string) domain.UpsertOutcome {
	switch {
	case inserted:
		return domain.OutcomeCreated
	case next != "" && previous == next:
		return domain.OutcomeUnchanged
	default:
		return domain.OutcomeUpdated
	}
}

// Update writes a patch onto the row with the given id.
func (s *PostgresStore) Update(ctx context.Context, id string, patch domain.Patch) error {
	if s.db == nil {
		return errors.New("database is not configured")
	}
	if patch.IsEmpty() {
		return nil
	}

	query, args, err := buildUpdate(id, patch)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Select returns the records matching filter.
func (s *PostgresStore) Select(ctx context.Context, filter ports.Filter) ([]domain.PropertyRecord, error) {
	if s.db == nil {
		return nil, errors.New("database is not configured")
	}

	query, args, err := buildSelect(filter)
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	var out []domain.PropertyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return out, nil
}

func buildUpsert(rec domain.PropertyRecord) (string, []any, error) {
	cols := columns()
	replace := domain.ReplacesEconomics(rec)
	values := make([]any, len(cols))
	sets := make([]string, 0, len(cols))
	for i, c := range cols {
		f := domain.Field(c)
		values[i] = dbValue(rec, f)

		if f == domain.FieldID || f == domain.FieldExternalID {
			continue
		}
		own := domain.FieldOwners[f]
		if (own.Replace && replace) || f == domain.FieldIsStale {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", c, c, tableName, c))
	}
	sets = append(sets, "updated_at = NOW()")

	insertSQL, args, err := sq.Insert(tableName).
		Columns(cols...).
		Values(values...).
		Suffix("ON CONFLICT (external_id) DO UPDATE SET " + strings.Join(sets, ", ") +
			" RETURNING id, (xmax = 0) AS inserted").
		ToSql()
	if err != nil {
		return "", nil, err
	}

	// The CTE reads the pre-statement snapshot, so prev holds the old hash.
	full := "WITH prev AS (SELECT source_hash FROM " + tableName + " WHERE external_id = ?), " +
		"up AS (" + insertSQL + ") " +
		"SELECT up.id, up.inserted, prev.source_hash FROM up LEFT JOIN prev ON TRUE"
	full, err = sq.Dollar.ReplacePlaceholders(full)
	if err != nil {
		return "", nil, err
	}
	return full, append([]any{rec.ExternalID}, args...), nil
}

func buildUpdate(id string, patch domain.Patch) (string, []any, error) {
	set := make(map[string]any, len(patch)+1)
	for _, f := range patch.Fields() {
		if f == domain.FieldID || f == domain.FieldExternalID {
			return "", nil, fmt.Errorf("field %s is immutable", f)
		}
		var scratch domain.PropertyRecord
		if err := scratch.Apply(domain.Patch{f: patch[f]}); err != nil {
			return "", nil, err
		}
		set[string(f)] = dbValue(scratch, f)
	}
	set["updated_at"] = sq.Expr("NOW()")

	return sq.Update(tableName).
		SetMap(set).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func buildSelect(filter ports.Filter) (string, []any, error) {
	b := sq.Select(columns()...).From(tableName).PlaceholderFormat(sq.Dollar)

	if !filter.IncludeStale {
		b = b.Where(sq.Eq{"is_stale": false})
	}
	if filter.Source != "" {
		b = b.Where(sq.Eq{"source": filter.Source})
	}
	if filter.Postcode != "" {
		b = b.Where(sq.Expr("UPPER(REPLACE(postcode, ' ', '')) = ?", domain.NormalizePostcode(filter.Postcode)))
	}
	for _, f := range filter.Missing {
		if !domain.KnownField(f) {
			return "", nil, fmt.Errorf("unknown field %q", f)
		}
		b = b.Where(sq.Eq{string(f): nil})
	}
	for _, f := range filter.Present {
		if !domain.KnownField(f) {
			return "", nil, fmt.Errorf("unknown field %q", f)
		}
		b = b.Where(sq.NotEq{string(f): nil})
	}
	if filter.IngestedBefore != nil {
		b = b.Where(sq.Or{
			sq.Eq{"last_ingested_at": nil},
			sq.Lt{"last_ingested_at": *filter.IngestedBefore},
		})
	}

	order := []string{"external_id"}
	if filter.CursorField != "" {
		if !domain.KnownField(filter.CursorField) {
			return "", nil, fmt.Errorf("unknown cursor field %q", filter.CursorField)
		}
		c := string(filter.CursorField)
		if filter.CursorBefore.IsZero() {
			b = b.Where(sq.Eq{c: nil})
		} else {
			b = b.Where(sq.Or{sq.Eq{c: nil}, sq.Lt{c: filter.CursorBefore}})
		}
		order = []string{c + " ASC NULLS FIRST", "external_id"}
	}
	b = b.OrderBy(order...)

	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}
	return b.ToSql()
}

// dbValue renders one column as a driver value. Empty strings and slices are
// stored as NULL so that COALESCE keeps the previous value on upsert.
func dbValue(rec domain.PropertyRecord, f domain.Field) any {
	if f == domain.FieldIsStale {
		return rec.IsStale
	}
	v, populated := rec.Get(f)
	if !populated {
		return nil
	}
	switch x := v.(type) {
	case []string:
		return pq.StringArray(x)
	case domain.ListingType:
		return string(x)
	}
	return v
}

type rowScanner interface {
	Scan(dest ...any) error
}

var recordSlots = func() []int {
	rt := reflect.TypeOf(domain.PropertyRecord{})
	var out []int
	for i := 0; i < rt.NumField(); i++ {
		if tag := rt.Field(i).Tag.Get("db"); tag != "" && tag != "-" {
			out = append(out, i)
		}
	}
	return out
}()

// scanRecord reads a row selected with columns() into a record.
func scanRecord(row rowScanner) (domain.PropertyRecord, error) {
	var rec domain.PropertyRecord
	rv := reflect.ValueOf(&rec).Elem()

	dests := make([]any, len(recordSlots))
	var finish []func()
	for i, slot := range recordSlots {
		fv := rv.Field(slot)
		switch fv.Kind() {
		case reflect.String:
			ns := &sql.NullString{}
			dests[i] = ns
			finish = append(finish, func() { fv.SetString(ns.String) })
		case reflect.Slice:
			arr := &pq.StringArray{}
			dests[i] = arr
			finish = append(finish, func() {
				if len(*arr) > 0 {
					fv.Set(reflect.ValueOf([]string(*arr)))
				}
			})
		default:
			dests[i] = fv.Addr().Interface()
		}
	}

	if err := row.Scan(dests...); err != nil {
		return domain.PropertyRecord{}, err
	}
	for _, fn := range finish {
		fn()
	}
	return rec, nil
}
