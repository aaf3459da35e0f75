package bank

import (
	"regexp"
	"strings"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/pkg/pdfio"
)

// UnionExtractor handles Union Bank of India statements. Two table shapes
// occur in the wild: a wide one with a dedicated transaction-id column
// (Date, Txn Id, Remarks, ..., Amount, Balance) and a narrow one where
// the narration follows the date and debit/credit are separate columns.
type UnionExtractor struct{}

// NewUnionExtractor returns the UNION extractor.
func NewUnionExtractor() *UnionExtractor { return &UnionExtractor{} }

func (e *UnionExtractor) Name() string { return "UNION" }

// Detect matches on the bank's IFSC prefix.
func (e *UnionExtractor) Detect(headerText string) bool {
	return strings.Contains(strings.ToLower(headerText), "ubin")
}

func (e *UnionExtractor) ParseAccountDetails(headerText string) AccountDetails {
	return parseAccountHeader(headerText)
}

var unionReference = regexp.MustCompile(`\b(\d{12})\b`)

func (e *UnionExtractor) ParseRows(logicalRows [][]string, _ pdfio.Document) []*common.Transaction {
	var txns []*common.Transaction

	var lastAmount *common.Transaction
	for _, row := range logicalRows {
		if len(row) < 4 {
			continue
		}
		date, err := ParseDate(row[0])
		if err != nil {
			continue
		}

		tx := common.NewTransaction()
		tx.TransactionDate = date

		if len(row) >= 6 {
			tx.ReferenceID = nonEmpty(row[1])
			tx.Description = row[2]
			amountCell := row[len(row)-2]
			tx.Amount = ParseAmount(amountCell)
			tx.Direction = DetermineDirection(amountCell)
		} else {
			tx.Description = row[1]
			if len(row) >= 5 {
				debit := row[len(row)-3]
				credit := row[len(row)-2]
				if credit != "" {
					tx.Amount = ParseAmount(credit)
					tx.Direction = common.DirectionCredit
				} else {
					tx.Amount = ParseAmount(debit)
					tx.Direction = common.DirectionDebit
				}
			} else {
				// Date | Narration | Amount | Balance. The single amount
				// cell is empty on wrapped continuations; never read the
				// narration as an amount.
				tx.Amount = ParseAmount(row[2])
				tx.Direction = DetermineDirection(row[2])
			}
			if m := unionReference.FindStringSubmatch(tx.Description); m != nil {
				tx.ReferenceID = nonEmpty(m[1])
			}
		}

		// Narration markers are authoritative over column placement.
		switch {
		case strings.Contains(tx.Description, "/CR/"):
			tx.Direction = common.DirectionCredit
		case strings.Contains(tx.Description, "/DR/"):
			tx.Direction = common.DirectionDebit
		}

		tx.EntityName = ExtractEntityName(tx.Description)
		tx.PaymentMethod = ExtractPaymentMethod(tx.Description)

		// Wrapped rows can leave the amount on a continuation; inherit
		// the previous row's amount and direction rather than drop it.
		if tx.Amount == nil && lastAmount != nil {
			tx.Amount = lastAmount.Amount
			if tx.Direction == "" {
				tx.Direction = lastAmount.Direction
			}
		}
		if tx.Amount == nil {
			continue
		}
		if tx.Direction == "" {
			tx.Direction = common.DirectionDebit
		}
		lastAmount = tx

		txns = append(txns, tx)
	}
	return txns
}
