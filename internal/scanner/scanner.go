package scanner

import (
	"context"
	"fmt"
	"strconv"

	"PropertyScanner/internal/domain"
)

// Register describes one council's published HMO register.
type Register struct {
	Name    string
	Council string
	URL     string
	Options map[string]string
}

// Option returns a register option or def when it is unset.
func (r Register) Option(key, def string) string {
	if v, ok := r.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// IntOption parses a numeric option, returning def when unset or invalid.
func (r Register) IntOption(key string, def int) int {
	if v, err := strconv.Atoi(r.Option(key, "")); err == nil && v > 0 {
		return v
	}
	return def
}

// Request carries all parameters required to execute a scan.
type Request struct {
	Register Register
}

// Scanner captures a single page-layout strategy (tables, definition lists, etc.).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.LicenceEntry, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds a registry holding the given scanners.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: map[string]Scanner{}}
	for _, s := range scanners {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}
