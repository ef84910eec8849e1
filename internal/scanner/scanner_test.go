package scanner

import (
	"context"
	"testing"

	"PropertyScanner/internal/domain"
)

type namedScanner string

func (n namedScanner) Name() string { return string(n) }

func (n namedScanner) Scan(context.Context, Request) ([]domain.LicenceEntry, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(namedScanner("table"))
	reg.Register(namedScanner("list"))

	if _, err := reg.Resolve("table"); err != nil {
		t.Fatalf("resolve table: %v", err)
	}
	if _, err := reg.Resolve("list"); err != nil {
		t.Fatalf("resolve list: %v", err)
	}
	if _, err := reg.Resolve("pdf"); err == nil {
		t.Fatalf("expected error for unknown scanner")
	}
}

func TestRegisterOptions(t *testing.T) {
	t.Parallel()

	r := Register{Options: map[string]string{"pageParam": "page", "maxPages": "x", "pageSize": "25"}}
	if got := r.Option("pageParam", ""); got != "page" {
		t.Fatalf("unexpected pageParam: %s", got)
	}
	if got := r.Option("selector", "table"); got != "table" {
		t.Fatalf("unexpected default: %s", got)
	}
	if got := r.IntOption("maxPages", 20); got != 20 {
		t.Fatalf("invalid ints fall back, got %d", got)
	}
	if got := r.IntOption("pageSize", 10); got != 25 {
		t.Fatalf("unexpected pageSize: %d", got)
	}
}
