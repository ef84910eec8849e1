package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PropertyScanner/internal/domain"
)

const userAgent = "PropertyScanner/1.0"

var (
	spaceExpr  = regexp.MustCompile(`\s+`)
	digitsExpr = regexp.MustCompile(`\d+`)
)

var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"2006-01-02",
	"02-01-2006",
	"2 Jan 2006",
	"2 January 2006",
	"02 Jan 2006",
	"02 January 2006",
	"January 2, 2006",
}

func fetchDocument(ctx context.Context, client *http.Client, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("register returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func buildPageURL(base, param string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid register url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set(param, strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func cleanText(s *goquery.Selection) string {
	return strings.TrimSpace(spaceExpr.ReplaceAllString(s.Text(), " "))
}

// column keys a register label can map onto
const (
	colLicence    = "licence"
	colAddress    = "address"
	colPostcode   = "postcode"
	colExpiry     = "expiry"
	colOccupants  = "occupants"
	colHouseholds = "households"
	colHolder     = "holder"
	colStatus     = "status"
)

// classifyLabel maps a free-text column heading onto a column key. Order
// matters: "Licence holder" and "Licence expiry" must not be read as the
// licence number.
func classifyLabel(label string) string {
	l := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":")))
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(l, w) {
				return true
			}
		}
		return false
	}

	switch {
	case l == "":
		return ""
	case has("holder", "licensee", "applicant", "manager"):
		return colHolder
	case has("expir", "end date", "valid to", "valid until"):
		return colExpiry
	case has("status"):
		return colStatus
	case has("household"):
		return colHouseholds
	case has("occupant", "persons", "people", "max"):
		return colOccupants
	case has("postcode", "post code"):
		return colPostcode
	case has("address"):
		return colAddress
	case has("type", "date"):
		return ""
	case has("licence", "license", "reference", "ref", "number"):
		return colLicence
	case has("property", "location"):
		return colAddress
	}
	return ""
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func parseCount(raw string) *int {
	m := digitsExpr.FindString(raw)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// buildEntry assembles a register row from labelled values. Rows without a
// licence number or an address are dropped.
func buildEntry(values map[string]string, reg string, council string) (domain.LicenceEntry, bool) {
	entry := domain.LicenceEntry{
		Register:      reg,
		Council:       council,
		LicenceNumber: strings.TrimSpace(values[colLicence]),
		Address:       strings.TrimSpace(values[colAddress]),
		Holder:        strings.TrimSpace(values[colHolder]),
		Status:        strings.TrimSpace(values[colStatus]),
		Expiry:        parseDate(values[colExpiry]),
		MaxOccupants:  parseCount(values[colOccupants]),
		Households:    parseCount(values[colHouseholds]),
	}
	if entry.LicenceNumber == "" || entry.Address == "" {
		return domain.LicenceEntry{}, false
	}

	if pc := strings.TrimSpace(values[colPostcode]); pc != "" {
		entry.Postcode = domain.FormatPostcode(pc)
	} else {
		entry.Postcode = domain.ExtractPostcode(entry.Address)
	}
	return entry, true
}
