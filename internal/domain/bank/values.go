package bank

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
)

// Day-first layouts seen across Indian bank statements, most specific
// first. Textual month forms cover Union ("20 Nov, 2025") and Kotak
// ("14 Dec 2025") narration dates.
var dateLayouts = []string{
	"02-01-2006", "02/01/2006",
	"02-01-06", "02/01/06",
	"2-1-2006", "2/1/2006",
	"2-1-06", "2/1/06",
	"2 Jan, 2006", "02 Jan, 2006",
	"2 Jan 2006", "02 Jan 2006",
	"2006-01-02",
}

// ParseDate parses a day-first statement date into ISO YYYY-MM-DD.
func ParseDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty date", common.ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrInvalidDate, raw)
}

var nonAmountChars = regexp.MustCompile(`[^\d.]`)

// ParseAmount parses amount strings like "+20,000.00" or "-500.00" into a
// non-negative decimal. Nothing left after stripping means no amount.
func ParseAmount(raw string) *decimal.Decimal {
	cleaned := nonAmountChars.ReplaceAllString(raw, "")
	if cleaned == "" {
		return nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &d
}

// paymentMethods maps method tags to narration patterns, in match order.
// First match wins against the upper-cased narration.
var paymentMethods = []struct {
	method  string
	pattern *regexp.Regexp
}{
	{"UPI", regexp.MustCompile(`^UPI`)},
	{"NEFT", regexp.MustCompile(`^NEFT`)},
	{"IMPS", regexp.MustCompile(`^IMPS`)},
	{"RTGS", regexp.MustCompile(`^RTGS`)},
	{"NACH", regexp.MustCompile(`^NACH`)},
	{"RTNCHG", regexp.MustCompile(`^RTNCHG`)},
	{"ACH", regexp.MustCompile(`^ACH`)},
	{"CHEQUE", regexp.MustCompile(`^(CHQ|CHEQUE|CLG)`)},
	{"ATM", regexp.MustCompile(`\b(ATW|ATL)\b`)},
	{"CARD", regexp.MustCompile(`(VISA|MASTERCARD|RUPAY|DEBIT CARD|CREDIT CARD|POS)`)},
	{"NETBANKING", regexp.MustCompile(`(INB|NETBANKING|NET BANKING)`)},
	{"MOBILE_BANKING", regexp.MustCompile(`\bMB\b`)},
}

// ExtractPaymentMethod tags the narration with a payment method, or nil
// when no pattern matches.
func ExtractPaymentMethod(details string) *string {
	details = strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(details, "\n", " ")))
	for _, entry := range paymentMethods {
		if entry.pattern.MatchString(details) {
			method := entry.method
			return &method
		}
	}
	return nil
}

var transferEntity = regexp.MustCompile(`(?i)^(NEFT|IMPS|RTGS)-[^-]+-([^-]+)`)

// ExtractEntityName pulls the counterparty name out of the narration,
// dispatching on the transfer-rail prefix.
func ExtractEntityName(details string) *string {
	details = strings.TrimSpace(strings.ReplaceAll(details, "\n", " "))
	upper := strings.ToUpper(details)

	switch {
	case strings.HasPrefix(upper, "UPI"):
		// UPI/DR/<ref>/<name>/... puts the name at segment 3; short
		// variants carry it at segment 1.
		parts := strings.Split(details, "/")
		if len(parts) >= 4 {
			return nonEmpty(parts[3])
		}
		if len(parts) >= 2 {
			return nonEmpty(parts[1])
		}
	case strings.HasPrefix(upper, "NEFT"), strings.HasPrefix(upper, "IMPS"), strings.HasPrefix(upper, "RTGS"):
		if m := transferEntity.FindStringSubmatch(details); m != nil {
			return nonEmpty(m[2])
		}
	case strings.HasPrefix(upper, "RTNCHG"):
		parts := strings.Split(details, "/")
		if len(parts) >= 4 {
			return nonEmpty(parts[len(parts)-2])
		}
	case strings.HasPrefix(upper, "NACH"), strings.HasPrefix(upper, "ACH"):
		parts := strings.Split(details, "/")
		if len(parts) >= 2 {
			return nonEmpty(parts[len(parts)-1])
		}
	}
	return nil
}

var crDrWord = regexp.MustCompile(`(?i)\b(Cr|Dr)\b`)

// DetermineDirection reads a whole-word Cr/Dr marker out of a cell.
// Returns "" when the cell carries no marker.
func DetermineDirection(raw string) string {
	m := crDrWord.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	if strings.EqualFold(m[1], "cr") {
		return common.DirectionCredit
	}
	return common.DirectionDebit
}

// Account types the schema recognizes.
var accountTypes = []string{"SAVINGS", "CURRENT", "SALARY", "NRE", "NRO", "FD", "RD"}

// NormalizeAccountType folds free-text account types into the canonical
// set; anything unrecognized defaults to SAVINGS.
func NormalizeAccountType(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if strings.HasPrefix(upper, "SAVING") {
		return "SAVINGS"
	}
	if strings.Contains(upper, "RECURRING") {
		return "RD"
	}
	if strings.Contains(upper, "FIXED") {
		return "FD"
	}
	for _, t := range accountTypes {
		if strings.Contains(upper, t) {
			return t
		}
	}
	return "SAVINGS"
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
