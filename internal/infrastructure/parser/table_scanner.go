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

// TableScanner reads registers published as HTML tables with a header row.
// Columns are recognised by their heading text.
//
// Options: selector (default "table"), pageParam (query parameter for
// pagination, unset means a single page), maxPages (default 50).
type TableScanner struct {
	client *http.Client
}

var _ scanner.Scanner = (*TableScanner)(nil)

// NewTableScanner wires an HTTP client.
func NewTableScanner(client *http.Client) *TableScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &TableScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (s *TableScanner) Name() string {
	return "table"
}

// Scan walks the register pages and returns every licence row.
func (s *TableScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.LicenceEntry, error) {
	reg := req.Register
	if reg.URL == "" {
		return nil, fmt.Errorf("register %s has no url", reg.Name)
	}
	return scanPages(ctx, s.client, reg, func(doc *goquery.Document) []domain.LicenceEntry {
		return extractTableEntries(doc, reg)
	})
}

// scanPages follows pageParam pagination until a page adds no new licence.
func scanPages(ctx context.Context, client *http.Client, reg scanner.Register, extract func(*goquery.Document) []domain.LicenceEntry) ([]domain.LicenceEntry, error) {
	pageParam := reg.Option("pageParam", "")
	maxPages := reg.IntOption("maxPages", 50)

	results := make([]domain.LicenceEntry, 0)
	seen := map[string]struct{}{}

	for page := 1; page <= maxPages; page++ {
		pageURL := reg.URL
		if pageParam != "" {
			var err error
			pageURL, err = buildPageURL(reg.URL, pageParam, page)
			if err != nil {
				return nil, fmt.Errorf("register %s: %w", reg.Name, err)
			}
		}

		doc, err := fetchDocument(ctx, client, pageURL)
		if err != nil {
			return nil, fmt.Errorf("register %s page %d: %w", reg.Name, page, err)
		}

		added := 0
		for _, entry := range extract(doc) {
			key := entry.ExternalID()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			results = append(results, entry)
			added++
		}

		if pageParam == "" || added == 0 {
			break
		}
	}

	return results, nil
}

func extractTableEntries(doc *goquery.Document, reg scanner.Register) []domain.LicenceEntry {
	var collected []domain.LicenceEntry

	doc.Find(reg.Option("selector", "table")).Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return
		}

		header := table.Find("thead tr").First()
		if header.Length() == 0 {
			header = rows.First()
		}

		columns := map[int]string{}
		taken := map[string]bool{}
		header.Find("th, td").Each(func(i int, cell *goquery.Selection) {
			key := classifyLabel(cleanText(cell))
			if key == "" || taken[key] {
				return
			}
			columns[i] = key
			taken[key] = true
		})
		if !taken[colLicence] || !taken[colAddress] {
			return
		}

		rows.Each(func(_ int, row *goquery.Selection) {
			if row.IsSelection(header) || row.Find("td").Length() == 0 {
				return
			}
			values := map[string]string{}
			row.Find("td").Each(func(i int, cell *goquery.Selection) {
				if key, ok := columns[i]; ok {
					values[key] = cleanText(cell)
				}
			})
			if entry, ok := buildEntry(values, reg.Name, reg.Council); ok {
				collected = append(collected, entry)
			}
		})
	})

	return collected
}
