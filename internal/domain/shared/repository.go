package shared

// Filter carries the pagination, ordering, and search options common to
// the billing list operations. The repository filters (InvoiceFilter,
// PaymentFilter, CreditFilter, AuditFilter) embed it and add their own
// domain criteria. Search matches differ per repository: invoice number
// or client name for invoices, reference for payments.
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Search   string
}
