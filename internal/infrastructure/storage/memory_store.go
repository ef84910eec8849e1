package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
)

// MemoryStore keeps records in process. It follows the same merge rules as
// PostgresStore and backs tests and dry runs.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*domain.PropertyRecord
	byExternal map[string]string
	newID      func() string
}

var _ ports.RecordStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       map[string]*domain.PropertyRecord{},
		byExternal: map[string]string{},
		newID:      uuid.NewString,
	}
}

// Upsert inserts or merges rec keyed by external_id.
func (s *MemoryStore) Upsert(_ context.Context, rec domain.PropertyRecord) (domain.UpsertOutcome, error) {
	if strings.TrimSpace(rec.ExternalID) == "" {
		return domain.OutcomeUnchanged, domain.ErrNoIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byExternal[rec.ExternalID]
	if !ok {
		if rec.ID == "" {
			rec.ID = s.newID()
		}
		stored := cloneRecord(rec)
		s.byID[rec.ID] = &stored
		s.byExternal[rec.ExternalID] = rec.ID
		return domain.OutcomeCreated, nil
	}

	stored := s.byID[id]
	previous := stored.SourceHash

	replace := domain.ReplacesEconomics(rec)
	patch := domain.Patch{}
	for _, f := range domain.Fields() {
		if f == domain.FieldID || f == domain.FieldExternalID {
			continue
		}
		v, populated := rec.Get(f)
		own := domain.FieldOwners[f]
		switch {
		case (own.Replace && replace) || f == domain.FieldIsStale:
			patch[f] = v
		case populated:
			patch[f] = v
		}
	}
	if err := stored.Apply(patch); err != nil {
		return domain.OutcomeUnchanged, fmt.Errorf("merge %s: %w", rec.ExternalID, err)
	}

	return classifyUpsert(false, previous, rec.SourceHash), nil
}

// Update applies patch onto the record with the given id.
func (s *MemoryStore) Update(_ context.Context, id string, patch domain.Patch) error {
	if patch.IsEmpty() {
		return nil
	}
	for f := range patch {
		if f == domain.FieldID || f == domain.FieldExternalID {
			return fmt.Errorf("field %s is immutable", f)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, domain.ErrNotFound)
	}
	next := cloneRecord(*stored)
	if err := next.Apply(patch); err != nil {
		return err
	}
	*stored = next
	return nil
}

// Select returns copies of the matching records, ordered like PostgresStore.
func (s *MemoryStore) Select(_ context.Context, filter ports.Filter) ([]domain.PropertyRecord, error) {
	for _, f := range append(append([]domain.Field{}, filter.Missing...), filter.Present...) {
		if !domain.KnownField(f) {
			return nil, fmt.Errorf("unknown field %q", f)
		}
	}
	if filter.CursorField != "" && !domain.KnownField(filter.CursorField) {
		return nil, fmt.Errorf("unknown cursor field %q", filter.CursorField)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PropertyRecord
	for _, rec := range s.byID {
		if matches(*rec, filter) {
			out = append(out, cloneRecord(*rec))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if filter.CursorField != "" {
			ci, okI := cursorValue(out[i], filter.CursorField)
			cj, okJ := cursorValue(out[j], filter.CursorField)
			switch {
			case !okI && okJ:
				return true
			case okI && !okJ:
				return false
			case okI && okJ && !ci.Equal(cj):
				return ci.Before(cj)
			}
		}
		return out[i].ExternalID < out[j].ExternalID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Get returns a copy of the record with id.
func (s *MemoryStore) Get(id string) (domain.PropertyRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return domain.PropertyRecord{}, false
	}
	return cloneRecord(*rec), true
}

// GetByExternalID returns a copy of the record with the external id.
func (s *MemoryStore) GetByExternalID(externalID string) (domain.PropertyRecord, bool) {
	s.mu.RLock()
	id, ok := s.byExternal[externalID]
	s.mu.RUnlock()
	if !ok {
		return domain.PropertyRecord{}, false
	}
	return s.Get(id)
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func matches(rec domain.PropertyRecord, filter ports.Filter) bool {
	if !filter.IncludeStale && rec.IsStale {
		return false
	}
	if filter.Source != "" && rec.Source != filter.Source {
		return false
	}
	if filter.Postcode != "" && domain.NormalizePostcode(rec.Postcode) != domain.NormalizePostcode(filter.Postcode) {
		return false
	}
	for _, f := range filter.Missing {
		if _, populated := rec.Get(f); populated {
			return false
		}
	}
	for _, f := range filter.Present {
		if _, populated := rec.Get(f); !populated {
			return false
		}
	}
	if filter.IngestedBefore != nil && rec.LastIngestedAt != nil && !rec.LastIngestedAt.Before(*filter.IngestedBefore) {
		return false
	}
	if filter.CursorField != "" {
		at, ok := cursorValue(rec, filter.CursorField)
		if ok && (filter.CursorBefore.IsZero() || !at.Before(filter.CursorBefore)) {
			return false
		}
	}
	return true
}

func cursorValue(rec domain.PropertyRecord, f domain.Field) (time.Time, bool) {
	v, populated := rec.Get(f)
	if !populated {
		return time.Time{}, false
	}
	at, ok := v.(time.Time)
	return at, ok
}

// cloneRecord deep-copies rec; Apply re-allocates pointers and slices.
func cloneRecord(rec domain.PropertyRecord) domain.PropertyRecord {
	patch := domain.Patch{}
	for _, f := range domain.Fields() {
		if v, populated := rec.Get(f); populated {
			patch[f] = v
		}
	}
	var out domain.PropertyRecord
	_ = out.Apply(patch)
	return out
}
