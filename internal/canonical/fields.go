// Package canonical defines the fixed regulatory schema every import is
// reconciled into: a closed enumeration of field names and a tagged value
// union, so mapping mistakes surface as unknown-field errors instead of
// silently flowing through as misspelled map keys.
package canonical

import "strings"

// Field is a canonical column name in the regulatory schema.
type Field string

const (
	FieldPayerEntityName   Field = "payerEntityName"
	FieldPayerEntityID     Field = "payerEntityId"
	FieldPayeeEntityName   Field = "payeeEntityName"
	FieldPayeeEntityID     Field = "payeeEntityId"
	FieldInvoiceNumber     Field = "invoiceNumber"
	FieldInvoiceIssueDate  Field = "invoiceIssueDate"
	FieldInvoiceReceiptDate Field = "invoiceReceiptDate"
	FieldNoticeDate        Field = "noticeDate"
	FieldSupplyDate        Field = "supplyDate"
	FieldPaymentDate       Field = "paymentDate"
	FieldPaymentAmount     Field = "paymentAmount"
	FieldPaymentTermDays   Field = "paymentTermDays"
	FieldTradeCreditFlag   Field = "tradeCreditFlag"
	FieldContractRef       Field = "contractRef"
	FieldDescription       Field = "description"
)

// Kind is the expected data type of a canonical field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindDate
	KindBool
)

// fieldKinds declares the type of every canonical field. Fields listed here
// are the complete schema; anything else is an ad hoc field carried through
// untyped.
var fieldKinds = map[Field]Kind{
	FieldPayerEntityName:    KindString,
	FieldPayerEntityID:      KindString,
	FieldPayeeEntityName:    KindString,
	FieldPayeeEntityID:      KindString,
	FieldInvoiceNumber:      KindString,
	FieldInvoiceIssueDate:   KindDate,
	FieldInvoiceReceiptDate: KindDate,
	FieldNoticeDate:         KindDate,
	FieldSupplyDate:         KindDate,
	FieldPaymentDate:        KindDate,
	FieldPaymentAmount:      KindNumber,
	FieldPaymentTermDays:    KindNumber,
	FieldTradeCreditFlag:    KindBool,
	FieldContractRef:        KindString,
	FieldDescription:        KindString,
}

// fieldOrder fixes the display/report ordering of canonical fields.
var fieldOrder = []Field{
	FieldPayerEntityName,
	FieldPayerEntityID,
	FieldPayeeEntityName,
	FieldPayeeEntityID,
	FieldInvoiceNumber,
	FieldInvoiceIssueDate,
	FieldInvoiceReceiptDate,
	FieldNoticeDate,
	FieldSupplyDate,
	FieldPaymentDate,
	FieldPaymentAmount,
	FieldPaymentTermDays,
	FieldTradeCreditFlag,
	FieldContractRef,
	FieldDescription,
}

// AllFields returns every canonical field in schema order.
func AllFields() []Field {
	out := make([]Field, len(fieldOrder))
	copy(out, fieldOrder)
	return out
}

// KindOf returns the declared kind of a field. Unknown fields are strings.
func KindOf(f Field) Kind {
	if k, ok := fieldKinds[f]; ok {
		return k
	}
	return KindString
}

// Known reports whether f is part of the canonical schema.
func Known(f Field) bool {
	_, ok := fieldKinds[f]
	return ok
}

// normalizedFields maps the normalized spelling of each field name to the
// field, for canonical-identity header matching.
var normalizedFields = func() map[string]Field {
	m := make(map[string]Field, len(fieldOrder))
	for _, f := range fieldOrder {
		m[NormalizeName(string(f))] = f
	}
	return m
}()

// ByName resolves a field from any case/format variant of its name
// ("Payment Date", "payment_date", "paymentDate" all resolve).
func ByName(name string) (Field, bool) {
	f, ok := normalizedFields[NormalizeName(name)]
	return f, ok
}

// NormalizeName lowercases a header or field name and strips whitespace,
// underscores, and hyphens so spelling variants compare equal.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '_', '-', '.':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
