package extraction

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Lllllllleong/documentextraction/internal/models"
)

// requiredFields is the number of fields confidence is measured against:
// invoice number, amount and counterparty.
const requiredFields = 3

const (
	monthName  = `(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?`
	dateValue  = `(\d{4}-\d{2}-\d{2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|` + monthName + `\s+\d{1,2},?\s+\d{4}|\d{1,2}\s+` + monthName + `,?\s+\d{4})`
	currencies = `USD|EUR|GBP|CAD|AUD|NZD|CHF|JPY|INR|SGD`
	labelSep   = `\s*[:\-]?\s*`
	inlineSep  = `[ \t]*[:\-]?[ \t]*`
)

var (
	reInvoiceNumber = regexp.MustCompile(`(?i)\binvoice[ \t]*(?:no\.?|number|num\.?|#|id)?[ \t]*[:#]?[ \t]*([A-Z0-9][A-Z0-9\-/]*)`)

	// Ordered by preference; the first label that matches wins.
	reTotals = []*regexp.Regexp{
		totalPattern(`amount\s+due|balance\s+due|total\s+due`),
		totalPattern(`grand\s+total|total\s+amount|invoice\s+total`),
		totalPattern(`total`),
	}

	reCounterparty = regexp.MustCompile(`(?i)^\s*(?:bill(?:ed)?\s+to|sold\s+to|customer(?:\s+name)?|client(?:\s+name)?)\b` + labelSep + `(.*)$`)

	// Customer and client identifiers are not names.
	reCounterpartyID = regexp.MustCompile(`(?i)^\s*(?:customer|client)[ \t]+(?:(?:id|no|nr|number|num|code|ref|account)\b|#)`)

	reIssueDates = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:invoice\s+date|issue\s+date|date\s+of\s+issue|issued\s+on|dated)` + labelSep + dateValue),
		regexp.MustCompile(`(?im)^\s*date` + labelSep + dateValue),
	}
	reDueDate = regexp.MustCompile(`(?i)\b(?:due\s+date|payment\s+due|due\s+on|due)` + labelSep + dateValue)

	reCurrencyCode   = regexp.MustCompile(`\b(` + currencies + `)\b`)
	reCurrencySymbol = regexp.MustCompile(`[$€£¥]`)
	reDigit          = regexp.MustCompile(`\d`)
)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

func totalPattern(labels string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + labels + `)\b[ \t]*(?:\((?-i:` + currencies + `)\))?` + inlineSep +
		`([$€£¥])?[ \t]*((?-i:` + currencies + `))?[ \t]*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
}

// Parse extracts structured fields from recognized text. It performs no I/O and
// never fails: fields that cannot be found are left nil.
func Parse(rawText string) models.ExtractionRecord {
	rec := models.ExtractionRecord{RawText: rawText}

	rec.InvoiceNumber = findInvoiceNumber(rawText)
	rec.Amount, rec.Currency = findTotal(rawText)
	if rec.Currency == nil {
		rec.Currency = findCurrency(rawText)
	}
	rec.Counterparty = findCounterparty(rawText)
	for _, re := range reIssueDates {
		if rec.IssueDate = firstGroup(re, rawText); rec.IssueDate != nil {
			break
		}
	}
	rec.DueDate = firstGroup(reDueDate, rawText)

	present := 0
	if rec.InvoiceNumber != nil {
		present++
	}
	if rec.Amount != nil {
		present++
	}
	if rec.Counterparty != nil {
		present++
	}
	rec.Confidence = math.Round(float64(present)/requiredFields*100*100) / 100
	return rec
}

func findInvoiceNumber(text string) *string {
	for _, line := range strings.Split(text, "\n") {
		for _, m := range reInvoiceNumber.FindAllStringSubmatch(line, -1) {
			// Skip label words such as "Invoice Date".
			if reDigit.MatchString(m[1]) {
				return ptr(m[1])
			}
		}
	}
	return nil
}

func findTotal(text string) (*float64, *string) {
	for _, re := range reTotals {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, err := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", ""), 64)
		if err != nil {
			continue
		}
		var currency *string
		switch {
		case m[2] != "":
			currency = ptr(m[2])
		case m[1] != "":
			currency = ptr(currencySymbols[m[1]])
		}
		return &amount, currency
	}
	return nil, nil
}

func findCurrency(text string) *string {
	if m := reCurrencyCode.FindString(text); m != "" {
		return ptr(m)
	}
	if m := reCurrencySymbol.FindString(text); m != "" {
		return ptr(currencySymbols[m])
	}
	return nil
}

func findCounterparty(text string) *string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		m := reCounterparty.FindStringSubmatch(line)
		if m == nil || reCounterpartyID.MatchString(line) {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return ptr(v)
		}
		// Label on its own line; the name follows.
		for _, next := range lines[i+1:] {
			if v := strings.TrimSpace(next); v != "" {
				return ptr(v)
			}
		}
	}
	return nil
}

func firstGroup(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return ptr(strings.TrimSpace(m[1]))
}

func ptr[T any](v T) *T { return &v }
