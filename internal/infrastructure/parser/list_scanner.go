package parser

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/scanner"
)

// ListScanner reads registers that publish each licence as a definition list
// of label/value pairs.
//
// Options: selector (default "dl"), pageParam, maxPages.
type ListScanner struct {
	client *http.Client
}

var _ scanner.Scanner = (*ListScanner)(nil)

// NewListScanner wires an HTTP client.
func NewListScanner(client *http.Client) *ListScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ListScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (s *ListScanner) Name() string {
	return "list"
}

// Scan walks the register pages and returns every licence block.
func (s *ListScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.LicenceEntry, error) {
	reg := req.Register
	if reg.URL == "" {
		return nil, fmt.Errorf("register %s has no url", reg.Name)
	}
	return scanPages(ctx, s.client, reg, func(doc *goquery.Document) []domain.LicenceEntry {
		return extractListEntries(doc, reg)
	})
}

func extractListEntries(doc *goquery.Document, reg scanner.Register) []domain.LicenceEntry {
	var collected []domain.LicenceEntry

	doc.Find(reg.Option("selector", "dl")).Each(func(_ int, block *goquery.Selection) {
		entry, ok := parseBlock(block, reg)
		if ok {
			collected = append(collected, entry)
		}
	})

	return collected
}

func parseBlock(block *goquery.Selection, reg scanner.Register) (domain.LicenceEntry, bool) {
	values := map[string]string{}
	block.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		key := classifyLabel(cleanText(dt))
		if key == "" {
			return
		}
		if _, exists := values[key]; exists {
			return
		}
		dd := dt.NextFiltered("dd")
		values[key] = cleanText(dd)
	})
	return buildEntry(values, reg.Name, reg.Council)
}
