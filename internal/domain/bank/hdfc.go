package bank

import (
	"strings"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
	"github.com/FACorreiaa/statement-parser/pkg/pdfio"
)

// HDFCExtractor handles HDFC Bank statements: Date | Narration | Chq/Ref
// No | Value Dt | Withdrawal | Deposit | Balance. Narrower exports drop
// the value-date column; the amount then sits second-to-last before the
// balance.
type HDFCExtractor struct{}

// NewHDFCExtractor returns the HDFC extractor.
func NewHDFCExtractor() *HDFCExtractor { return &HDFCExtractor{} }

func (e *HDFCExtractor) Name() string { return "HDFC" }

func (e *HDFCExtractor) Detect(headerText string) bool {
	return strings.Contains(strings.ToLower(headerText), "hdfc")
}

func (e *HDFCExtractor) ParseAccountDetails(headerText string) AccountDetails {
	return parseAccountHeader(headerText)
}

func (e *HDFCExtractor) ParseRows(logicalRows [][]string, _ pdfio.Document) []*common.Transaction {
	var txns []*common.Transaction

	var lastAmount *common.Transaction
	for _, row := range logicalRows {
		if len(row) < 5 {
			continue
		}
		date, err := ParseDate(row[0])
		if err != nil {
			continue
		}

		tx := common.NewTransaction()
		tx.TransactionDate = date
		tx.Description = row[1]
		tx.ReferenceID = nonEmpty(row[2])

		if len(row) >= 7 {
			withdrawal := row[4]
			deposit := row[5]
			if deposit != "" {
				tx.Amount = ParseAmount(deposit)
				tx.Direction = common.DirectionCredit
			} else {
				tx.Amount = ParseAmount(withdrawal)
				tx.Direction = common.DirectionDebit
			}
		} else {
			amountCell := row[len(row)-2]
			tx.Amount = ParseAmount(amountCell)
			tx.Direction = DetermineDirection(amountCell)
		}

		switch {
		case strings.Contains(tx.Description, "/CR/"):
			tx.Direction = common.DirectionCredit
		case strings.Contains(tx.Description, "/DR/"):
			tx.Direction = common.DirectionDebit
		}

		tx.EntityName = ExtractEntityName(tx.Description)
		tx.PaymentMethod = ExtractPaymentMethod(tx.Description)

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
