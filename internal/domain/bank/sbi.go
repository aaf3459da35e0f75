package bank

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/pkg/pdfio"
)

// SBIExtractor handles State Bank of India statements. SBI narrations
// encode direction and reference inside UPI/<DR|CR>/<ref>/... markers and
// frequently wrap across rows, so extraction leans on the joined row text
// rather than fixed columns.
type SBIExtractor struct{}

// NewSBIExtractor returns the SBI extractor.
func NewSBIExtractor() *SBIExtractor { return &SBIExtractor{} }

func (e *SBIExtractor) Name() string { return "SBI" }

func (e *SBIExtractor) Detect(headerText string) bool {
	lower := strings.ToLower(headerText)
	return strings.Contains(lower, "state bank of india") || strings.Contains(lower, "sbi")
}

var (
	sbiAccountLabeled = regexp.MustCompile(`(?:ACCOUNT\s+NUMBER|ACCOUNT\s+NO\.?|A/C\s+NO\.?)\s*[:\-]?\s*([X\d][X\d\s\-]{5,20})`)
	sbiAccountMasked  = regexp.MustCompile(`\bX{4,}\d{3,6}\b`)
	sbiIFSC           = regexp.MustCompile(`\bSBIN0\d{6}\b`)
)

func (e *SBIExtractor) ParseAccountDetails(headerText string) AccountDetails {
	var details AccountDetails
	upper := strings.ToUpper(headerText)

	if m := sbiAccountLabeled.FindStringSubmatch(upper); m != nil {
		number := strings.NewReplacer(" ", "", "-", "").Replace(m[1])
		details.Number = number
	}
	// Masked numbers (XXXXXX1234) printed later in the header win; the
	// labeled field is often the CIF, not the account.
	if masked := sbiAccountMasked.FindAllString(headerText, -1); len(masked) > 0 {
		details.Number = masked[len(masked)-1]
	}

	if m := sbiIFSC.FindString(upper); m != "" {
		details.IFSCCode = &m
	}

	for _, p := range accountTypePatterns {
		if m := p.FindStringSubmatch(upper); m != nil {
			details.Type = NormalizeAccountType(m[1])
			break
		}
	}
	return details
}

var (
	sbiRowDate   = regexp.MustCompile(`\d{2}-\d{2}-\d{2}`)
	sbiReference = regexp.MustCompile(`UPI/(CR|DR)/(\d+)`)
	sbiAmount    = regexp.MustCompile(`\d+\.\d{2}`)
)

func (e *SBIExtractor) ParseRows(logicalRows [][]string, _ pdfio.Document) []*common.Transaction {
	seen := make(map[string]bool)
	var txns []*common.Transaction

	var lastAmount *decimal.Decimal
	var lastDirection string

	for index, row := range logicalRows {
		raw := joinCells(row)
		dateMatch := sbiRowDate.FindString(raw)
		if dateMatch == "" {
			continue
		}

		tx := common.NewTransaction()
		date, err := ParseDate(dateMatch)
		if err != nil {
			continue
		}
		tx.TransactionDate = date

		description := raw
		if len(row) > 1 {
			description = row[1]
		}
		tx.Description = description

		// The UPI marker is authoritative for direction.
		switch {
		case strings.Contains(description, "/CR/"):
			tx.Direction = common.DirectionCredit
		case strings.Contains(description, "/DR/"):
			tx.Direction = common.DirectionDebit
		}

		tx.EntityName = sbiEntityFromDescription(description)
		tx.PaymentMethod = ExtractPaymentMethod(description)

		if m := sbiReference.FindStringSubmatch(description); m != nil {
			tx.ReferenceID = nonEmpty(m[2])
		}

		tx.Amount = sbiAmountFromRow(row)
		if tx.Amount != nil {
			lastAmount = tx.Amount
			lastDirection = tx.Direction
		} else {
			// Wrapped-row recovery: the amount landed on a prior row.
			tx.Amount = lastAmount
			if tx.Direction == "" {
				tx.Direction = lastDirection
			}
		}

		sbiPostProcess(tx)

		// System rows (charges, interest, deposits) have no amount cell;
		// force-include them at zero rather than dropping them.
		if tx.Amount == nil {
			switch {
			case tx.PaymentMethod != nil && (*tx.PaymentMethod == "SERVICE_CHARGE" || *tx.PaymentMethod == "CASH"):
				tx.Amount = zeroAmount()
			case strings.HasPrefix(description, "UPI/REF/"):
				tx.Amount = zeroAmount()
				tx.Direction = common.DirectionCredit
			default:
				continue
			}
		}

		if tx.Direction == "" {
			tx.Direction = common.DirectionDebit
		}

		// Dedup on the reference when the bank supplied one; rows without
		// a reference key on their position so real same-day duplicates
		// survive.
		key := fmt.Sprintf("ROW-%d", index+1)
		if tx.ReferenceID != nil {
			key = *tx.ReferenceID
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		txns = append(txns, tx)
	}
	return txns
}

// sbiEntityFromDescription reads the counterparty from slash segment 3,
// skipping pure-numeric segments (those are references).
func sbiEntityFromDescription(description string) *string {
	if description == "" {
		return nil
	}
	parts := strings.Split(description, "/")
	if len(parts) < 4 {
		return nil
	}
	name := strings.TrimSpace(parts[3])
	if name == "" || isDigits(name) {
		return nil
	}
	return &name
}

// sbiAmountFromRow picks the transaction amount out of the row's decimal
// values. SBI rows end with the running balance, so the second-to-last
// number is the amount.
func sbiAmountFromRow(row []string) *decimal.Decimal {
	raw := joinCells(row)
	numbers := sbiAmount.FindAllString(raw, -1)
	if len(numbers) == 0 {
		return nil
	}
	amount := numbers[0]
	if len(numbers) >= 2 {
		amount = numbers[len(numbers)-2]
	}
	return ParseAmount(amount)
}

// sbiPostProcess overrides fields for SBI's system rows.
func sbiPostProcess(tx *common.Transaction) {
	desc := strings.ToUpper(tx.Description)

	if strings.HasPrefix(desc, "UPI/REF/") {
		tx.EntityName = nil
		method := "UPI"
		tx.PaymentMethod = &method
	}
	if strings.HasPrefix(desc, "SBIYA") || strings.Contains(desc, "RENEWAL") {
		entity := "SBI"
		method := "SERVICE_CHARGE"
		tx.EntityName = &entity
		tx.PaymentMethod = &method
	}
	if strings.Contains(desc, "CASH DEPOSIT") {
		method := "CASH"
		tx.PaymentMethod = &method
	}
}

func joinCells(row []string) string {
	var parts []string
	for _, cell := range row {
		if cell != "" {
			parts = append(parts, cell)
		}
	}
	return strings.Join(parts, " ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func zeroAmount() *decimal.Decimal {
	zero := decimal.Zero
	return &zero
}
