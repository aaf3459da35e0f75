package common

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction direction values. Every extracted transaction carries one;
// the optional TypeID is a rule assignment and independent of this.
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Transaction is the central record the pipeline produces. Fixed fields
// mirror the transactions table; Extra carries dynamic fields assigned by
// categorization rules that have no column of their own.
type Transaction struct {
	ID            uuid.UUID
	UserID        *uuid.UUID
	BankAccountID *uuid.UUID

	TransactionDate string // ISO YYYY-MM-DD
	Description     string
	EntityName      *string
	Amount          *decimal.Decimal
	Direction       string // exposed under the record key "type"
	PaymentMethod   *string
	ReferenceID     *string
	Currency        string

	CategoryID      *int64
	TagID           *int64
	TypeID          *int64
	PaymentMethodID *int64
	GoalID          *int64

	Extra map[string]any
}

// fixedColumns is the record key order, mirroring the order the fields are
// populated during extraction. "type" and "payment_method" are synthetic
// and stripped before persistence.
var fixedColumns = []string{
	"entity_name", "transaction_date", "user_id", "bank_account_id",
	"type", "type_id", "category_id", "tag_id",
	"payment_method_id", "payment_method",
	"amount", "currency", "goal_id", "description", "reference_id",
}

// NewTransaction returns a record with the defaults extraction assumes.
func NewTransaction() *Transaction {
	return &Transaction{Currency: "INR"}
}

// Field exposes the record to the rule evaluator as a string-keyed map of
// heterogeneous values. ok is false only for names the record has never
// seen; a known field holding nothing reports (nil, true).
func (t *Transaction) Field(name string) (any, bool) {
	switch name {
	case "id":
		if t.ID == uuid.Nil {
			return nil, true
		}
		return t.ID, true
	case "user_id":
		return derefUUID(t.UserID), true
	case "bank_account_id":
		return derefUUID(t.BankAccountID), true
	case "transaction_date":
		return emptyAsNil(t.TransactionDate), true
	case "description":
		return emptyAsNil(t.Description), true
	case "entity_name":
		return derefString(t.EntityName), true
	case "amount":
		if t.Amount == nil {
			return nil, true
		}
		return *t.Amount, true
	case "type":
		return emptyAsNil(t.Direction), true
	case "payment_method":
		return derefString(t.PaymentMethod), true
	case "reference_id":
		return derefString(t.ReferenceID), true
	case "currency":
		return emptyAsNil(t.Currency), true
	case "category_id":
		return derefInt(t.CategoryID), true
	case "tag_id":
		return derefInt(t.TagID), true
	case "type_id":
		return derefInt(t.TypeID), true
	case "payment_method_id":
		return derefInt(t.PaymentMethodID), true
	case "goal_id":
		return derefInt(t.GoalID), true
	}
	v, ok := t.Extra[name]
	return v, ok
}

// SetField writes a value under a record key. Unknown names land in Extra
// untouched, which is how rule assignments to arbitrary fields survive to
// the output.
func (t *Transaction) SetField(name string, value any) {
	switch name {
	case "user_id":
		if id, ok := toUUID(value); ok {
			t.UserID = &id
		}
	case "bank_account_id":
		if id, ok := toUUID(value); ok {
			t.BankAccountID = &id
		}
	case "transaction_date":
		t.TransactionDate = toString(value)
	case "description":
		t.Description = toString(value)
	case "entity_name":
		t.EntityName = toStringPtr(value)
	case "amount":
		if d, ok := toDecimal(value); ok {
			t.Amount = &d
		}
	case "type":
		t.Direction = toString(value)
	case "payment_method":
		t.PaymentMethod = toStringPtr(value)
	case "reference_id":
		t.ReferenceID = toStringPtr(value)
	case "currency":
		t.Currency = toString(value)
	case "category_id":
		t.CategoryID = toIntPtr(value)
	case "tag_id":
		t.TagID = toIntPtr(value)
	case "type_id":
		t.TypeID = toIntPtr(value)
	case "payment_method_id":
		t.PaymentMethodID = toIntPtr(value)
	case "goal_id":
		t.GoalID = toIntPtr(value)
	default:
		if t.Extra == nil {
			t.Extra = make(map[string]any)
		}
		t.Extra[name] = value
	}
}

// AssignedFields reports the keys currently holding a non-null value.
// The categorizer seeds its first-writer-wins set from this.
func (t *Transaction) AssignedFields() map[string]bool {
	set := make(map[string]bool)
	for _, name := range fixedColumns {
		if v, _ := t.Field(name); v != nil {
			set[name] = true
		}
	}
	if v, _ := t.Field("id"); v != nil {
		set["id"] = true
	}
	for name, v := range t.Extra {
		if v != nil {
			set[name] = true
		}
	}
	return set
}

// Clone deep-copies the record.
func (t *Transaction) Clone() *Transaction {
	out := *t
	out.UserID = cloneUUIDPtr(t.UserID)
	out.BankAccountID = cloneUUIDPtr(t.BankAccountID)
	out.EntityName = cloneStringPtr(t.EntityName)
	out.PaymentMethod = cloneStringPtr(t.PaymentMethod)
	out.ReferenceID = cloneStringPtr(t.ReferenceID)
	out.CategoryID = cloneIntPtr(t.CategoryID)
	out.TagID = cloneIntPtr(t.TagID)
	out.TypeID = cloneIntPtr(t.TypeID)
	out.PaymentMethodID = cloneIntPtr(t.PaymentMethodID)
	out.GoalID = cloneIntPtr(t.GoalID)
	if t.Amount != nil {
		amount := *t.Amount
		out.Amount = &amount
	}
	if t.Extra != nil {
		out.Extra = make(map[string]any, len(t.Extra))
		for k, v := range t.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// Columns lists the record's keys in construction order: fixed keys always,
// "id" only when set, extra fields sorted by name. The upsert writer
// derives its column list from the first record's Columns.
func (t *Transaction) Columns() []string {
	cols := make([]string, 0, len(fixedColumns)+1+len(t.Extra))
	if t.ID != uuid.Nil {
		cols = append(cols, "id")
	}
	cols = append(cols, fixedColumns...)
	extras := make([]string, 0, len(t.Extra))
	for name := range t.Extra {
		extras = append(extras, name)
	}
	sort.Strings(extras)
	return append(cols, extras...)
}

// ColumnValue returns the value to bind for a column, nil for SQL NULL.
func (t *Transaction) ColumnValue(col string) any {
	v, ok := t.Field(col)
	if !ok {
		return nil
	}
	return v
}

// Normalize enforces the record invariants before persistence: an empty
// reference id collapses to the null sentinel and the currency defaults.
func (t *Transaction) Normalize() {
	if t.ReferenceID != nil && *t.ReferenceID == "" {
		t.ReferenceID = nil
	}
	if t.Currency == "" {
		t.Currency = "INR"
	}
}

func derefUUID(p *uuid.UUID) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefString(p *string) any {
	if p == nil {
		return nil
	}
	if *p == "" {
		return nil
	}
	return *p
}

func derefInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func emptyAsNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toUUID(v any) (uuid.UUID, bool) {
	switch x := v.(type) {
	case uuid.UUID:
		return x, true
	case *uuid.UUID:
		if x != nil {
			return *x, true
		}
	case string:
		if id, err := uuid.Parse(x); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toStringPtr(v any) *string {
	switch x := v.(type) {
	case string:
		return &x
	case *string:
		return x
	}
	return nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x != nil {
			return *x, true
		}
	case int64:
		return decimal.NewFromInt(x), true
	case string:
		if d, err := decimal.NewFromString(x); err == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

func toIntPtr(v any) *int64 {
	switch x := v.(type) {
	case int64:
		return &x
	case int:
		n := int64(x)
		return &n
	case *int64:
		return x
	case decimal.Decimal:
		n := x.IntPart()
		return &n
	}
	return nil
}

func cloneUUIDPtr(p *uuid.UUID) *uuid.UUID {
	if p == nil {
		return nil
	}
	id := *p
	return &id
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}

func cloneIntPtr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	n := *p
	return &n
}
