// Package bank detects the issuing bank of a statement and extracts
// account details and transactions from its reconstructed table rows.
package bank

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/pkg/pdfio"
)

// AccountDetails is what a statement header yields about the account.
type AccountDetails struct {
	Number   string
	IFSCCode *string
	Type     string
}

// Extractor is the per-bank capability set. ParseRows receives the merged
// logical rows plus the open document; KOTAK is the one extractor that
// re-walks the document tables because its credit and debit live in
// separate columns the merged rows cannot express.
type Extractor interface {
	Name() string
	Detect(headerText string) bool
	ParseAccountDetails(headerText string) AccountDetails
	ParseRows(rows [][]string, doc pdfio.Document) []*common.Transaction
}

// emailPatterns maps sender-email fragments to bank names, in match order.
// Names without a registered extractor fall through to content detection.
var emailPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"UNION", regexp.MustCompile(`unionbank`)},
	{"KOTAK", regexp.MustCompile(`kotak`)},
	{"SBI", regexp.MustCompile(`sbi\.co\.in|@sbi\.`)},
	{"HDFC", regexp.MustCompile(`hdfc`)},
	{"ICICI", regexp.MustCompile(`icici`)},
	{"AXIS", regexp.MustCompile(`axis`)},
	{"PNB", regexp.MustCompile(`pnb|punjabnational`)},
	{"BOB", regexp.MustCompile(`bankofbaroda|bob`)},
	{"CANARA", regexp.MustCompile(`canara`)},
	{"IDBI", regexp.MustCompile(`idbi`)},
	{"YES", regexp.MustCompile(`yesbank`)},
	{"INDUSIND", regexp.MustCompile(`indusind`)},
	{"FEDERAL", regexp.MustCompile(`federal`)},
}

// BankFromEmail derives a bank-name hint from the sender address.
func BankFromEmail(email string) string {
	email = strings.ToLower(email)
	for _, entry := range emailPatterns {
		if entry.pattern.MatchString(email) {
			return entry.name
		}
	}
	return ""
}

// Registry holds the registered extractors in insertion order. Detection
// order matters: some banks' marker strings occur inside unrelated text,
// so the sender-email hint is always consulted first.
type Registry struct {
	extractors []Extractor
	byName     map[string]Extractor
}

// NewRegistry registers the default extractor set.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Extractor)}
	r.Register(NewUnionExtractor())
	r.Register(NewSBIExtractor())
	r.Register(NewKotakExtractor())
	r.Register(NewHDFCExtractor())
	return r
}

// Register appends an extractor to the detection order.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
	r.byName[e.Name()] = e
}

// Resolve picks the extractor for a statement: the sender-email hint wins
// when it names a registered bank, otherwise each extractor's content
// detection runs in registration order.
func (r *Registry) Resolve(senderEmail, headerText string) (Extractor, error) {
	if hint := BankFromEmail(senderEmail); hint != "" {
		if e, ok := r.byName[hint]; ok {
			return e, nil
		}
	}
	for _, e := range r.extractors {
		if e.Detect(headerText) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: no extractor matched", common.ErrUnsupportedBank)
}

// Shared account-header patterns. Individual extractors override where a
// bank formats its header differently.
var (
	accountNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`ACCOUNT\s*(?:NUMBER|NO\.?|#)\s*[:\-]?\s*(\d{9,18})`),
		regexp.MustCompile(`A/C\s*(?:NO\.?|NUMBER)\s*[:\-]?\s*(\d{9,18})`),
		regexp.MustCompile(`ACCT\s*(?:NO\.?|NUMBER)\s*[:\-]?\s*(\d{9,18})`),
	}
	ifscLabeled   = regexp.MustCompile(`IFSC\s*(?:CODE)?\s*[:\-]?\s*([A-Z]{4}0[A-Z0-9]{6})`)
	ifscUnlabeled = regexp.MustCompile(`\b([A-Z]{4}0[A-Z0-9]{6})\b`)
	accountTypePatterns = []*regexp.Regexp{
		regexp.MustCompile(`ACCOUNT\s*TYPE\s*[:\-]?\s*(SAVINGS?|CURRENT|SALARY|NRE|NRO|FIXED DEPOSIT|FD|RD|RECURRING)`),
		regexp.MustCompile(`A/C\s*TYPE\s*[:\-]?\s*(SAVINGS?|CURRENT|SALARY|NRE|NRO)`),
		regexp.MustCompile(`(SAVINGS?|CURRENT|SALARY)\s*ACCOUNT`),
	}
)

// parseAccountHeader applies the shared header patterns to upper-cased
// header text.
func parseAccountHeader(text string) AccountDetails {
	var details AccountDetails
	upper := strings.ToUpper(text)

	for _, p := range accountNumberPatterns {
		if m := p.FindStringSubmatch(upper); m != nil {
			details.Number = m[1]
			break
		}
	}

	if m := ifscLabeled.FindStringSubmatch(upper); m != nil {
		code := m[1]
		details.IFSCCode = &code
	} else if m := ifscUnlabeled.FindStringSubmatch(upper); m != nil {
		code := m[1]
		details.IFSCCode = &code
	}

	for _, p := range accountTypePatterns {
		if m := p.FindStringSubmatch(upper); m != nil {
			details.Type = NormalizeAccountType(m[1])
			break
		}
	}
	return details
}
