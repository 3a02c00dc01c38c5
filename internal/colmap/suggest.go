package colmap

// suggest.go proposes mappings for a freshly sampled header set so tenants
// start from a mostly-filled form instead of a blank one. Suggestions never
// bind anything; they are hints for the mapping UI only.

import (
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
)

// synonyms maps normalized header spellings to canonical fields, covering
// the vocabulary seen across tenant exports. Exact canonical-identity
// matches are handled before this table is consulted.
var synonyms = map[string]canonical.Field{
	"payer":         canonical.FieldPayerEntityName,
	"payername":     canonical.FieldPayerEntityName,
	"buyer":         canonical.FieldPayerEntityName,
	"payerabn":      canonical.FieldPayerEntityID,
	"payerid":       canonical.FieldPayerEntityID,
	"payee":         canonical.FieldPayeeEntityName,
	"payeename":     canonical.FieldPayeeEntityName,
	"supplier":      canonical.FieldPayeeEntityName,
	"suppliername":  canonical.FieldPayeeEntityName,
	"vendor":        canonical.FieldPayeeEntityName,
	"vendorname":    canonical.FieldPayeeEntityName,
	"payeeabn":      canonical.FieldPayeeEntityID,
	"supplierabn":   canonical.FieldPayeeEntityID,
	"vendorid":      canonical.FieldPayeeEntityID,
	"invoice":       canonical.FieldInvoiceNumber,
	"invoiceno":     canonical.FieldInvoiceNumber,
	"invoicenum":    canonical.FieldInvoiceNumber,
	"invoicedate":   canonical.FieldInvoiceIssueDate,
	"issuedate":     canonical.FieldInvoiceIssueDate,
	"dateissued":    canonical.FieldInvoiceIssueDate,
	"receiptdate":   canonical.FieldInvoiceReceiptDate,
	"datereceived":  canonical.FieldInvoiceReceiptDate,
	"received":      canonical.FieldInvoiceReceiptDate,
	"amount":        canonical.FieldPaymentAmount,
	"amountpaid":    canonical.FieldPaymentAmount,
	"paymentvalue":  canonical.FieldPaymentAmount,
	"value":         canonical.FieldPaymentAmount,
	"date":          canonical.FieldPaymentDate,
	"paiddate":      canonical.FieldPaymentDate,
	"datepaid":      canonical.FieldPaymentDate,
	"paymentterms":  canonical.FieldPaymentTermDays,
	"terms":         canonical.FieldPaymentTermDays,
	"termdays":      canonical.FieldPaymentTermDays,
	"tradecredit":   canonical.FieldTradeCreditFlag,
	"contract":      canonical.FieldContractRef,
	"contractno":    canonical.FieldContractRef,
	"po":            canonical.FieldContractRef,
	"ponumber":      canonical.FieldContractRef,
	"description":   canonical.FieldDescription,
	"memo":          canonical.FieldDescription,
	"notes":         canonical.FieldDescription,
	"supplydate":    canonical.FieldSupplyDate,
	"deliverydate":  canonical.FieldSupplyDate,
	"noticedate":    canonical.FieldNoticeDate,
}

// SuggestMappings proposes a canonical field for each header it recognizes.
// Identity matches win over synonyms; each canonical field is suggested at
// most once, first header wins.
func SuggestMappings(headers []string) map[string]canonical.Field {
	out := make(map[string]canonical.Field)
	taken := make(map[canonical.Field]bool)

	// Identity pass first so an exact "paymentDate" is not stolen by a
	// synonym earlier in the header list.
	for _, h := range headers {
		if f, ok := canonical.ByName(h); ok && !taken[f] {
			out[h] = f
			taken[f] = true
		}
	}

	for _, h := range headers {
		if _, done := out[h]; done {
			continue
		}
		if f, ok := synonyms[canonical.NormalizeName(h)]; ok && !taken[f] {
			out[h] = f
			taken[f] = true
		}
	}

	return out
}
