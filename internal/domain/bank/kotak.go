package bank

import (
	"regexp"
	"strings"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/pkg/pdfio"
)

// KotakExtractor handles Kotak Mahindra Bank statements. Kotak prints
// credit and debit in distinct columns rather than marking direction in
// the narration, so it walks the document's cell grids itself instead of
// consuming the merged logical rows.
type KotakExtractor struct{}

// NewKotakExtractor returns the KOTAK extractor.
func NewKotakExtractor() *KotakExtractor { return &KotakExtractor{} }

func (e *KotakExtractor) Name() string { return "KOTAK" }

func (e *KotakExtractor) Detect(headerText string) bool {
	lower := strings.ToLower(headerText)
	return strings.Contains(lower, "kotak mahindra bank") || strings.Contains(lower, "kkbk")
}

var (
	kotakAccount = regexp.MustCompile(`ACCOUNT\s+NO\.?\s*(\d{9,18})`)
	kotakIFSC    = regexp.MustCompile(`\bKKBK0[A-Z0-9]{6}\b`)
	kotakType    = regexp.MustCompile(`ACCOUNT\s+TYPE\s+(SAVINGS|CURRENT)`)
	kotakDate    = regexp.MustCompile(`^\d{1,2}\s+[A-Za-z]{3}\s+\d{4}`)
)

func (e *KotakExtractor) ParseAccountDetails(headerText string) AccountDetails {
	var details AccountDetails
	upper := strings.ToUpper(headerText)

	if m := kotakAccount.FindStringSubmatch(upper); m != nil {
		details.Number = m[1]
	}
	if m := kotakIFSC.FindString(upper); m != "" {
		details.IFSCCode = &m
	}
	if m := kotakType.FindStringSubmatch(upper); m != nil {
		details.Type = NormalizeAccountType(m[1])
	}
	return details
}

// ParseRows ignores the merged rows and re-reads the page tables: the
// Kotak layout is # | Date | Narration | Ref | Debit | Credit | Balance.
func (e *KotakExtractor) ParseRows(_ [][]string, doc pdfio.Document) []*common.Transaction {
	if doc == nil {
		return nil
	}

	var txns []*common.Transaction
	for page := 1; page <= doc.PageCount(); page++ {
		tables, err := doc.PageTables(page)
		if err != nil {
			continue
		}
		for _, table := range tables {
			for _, row := range table {
				if tx := e.parseTableRow(row); tx != nil {
					txns = append(txns, tx)
				}
			}
		}
	}
	return txns
}

func (e *KotakExtractor) parseTableRow(row []string) *common.Transaction {
	if len(row) < 7 {
		return nil
	}

	cleaned := make([]string, len(row))
	for i, cell := range row {
		cleaned[i] = strings.TrimSpace(strings.ReplaceAll(cell, "\n", " "))
	}

	if strings.Contains(strings.ToUpper(cleaned[2]), "OPENING BALANCE") {
		return nil
	}
	if !kotakDate.MatchString(cleaned[1]) {
		return nil
	}
	date, err := ParseDate(cleaned[1])
	if err != nil {
		return nil
	}

	tx := common.NewTransaction()
	tx.TransactionDate = date
	tx.Description = cleaned[2]
	tx.ReferenceID = nonEmpty(cleaned[3])

	debit := cleaned[4]
	credit := cleaned[5]
	if credit != "" {
		tx.Amount = ParseAmount(credit)
		tx.Direction = common.DirectionCredit
	} else {
		tx.Amount = ParseAmount(debit)
		tx.Direction = common.DirectionDebit
	}
	if tx.Amount == nil {
		return nil
	}

	tx.EntityName = ExtractEntityName(tx.Description)
	if strings.HasPrefix(strings.ToUpper(tx.Description), "INT.PD") {
		method := "INTEREST"
		tx.PaymentMethod = &method
	} else {
		tx.PaymentMethod = ExtractPaymentMethod(tx.Description)
	}
	return tx
}
