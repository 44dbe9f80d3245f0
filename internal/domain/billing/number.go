package billing

import (
	"fmt"
	"strings"
)

const (
	// DefaultInvoiceNumberPrefix is the standard issued-invoice prefix
	DefaultInvoiceNumberPrefix = "INV"
	// DefaultInvoiceNumberWidth is the zero-padded sequence width
	DefaultInvoiceNumberWidth = 6
)

// FormatInvoiceNumber formats a human-readable invoice number from a
// sequence value, e.g. FormatInvoiceNumber(42, "INV", 6) -> "INV-000042".
// Sequences wider than the requested width are not truncated.
func FormatInvoiceNumber(seq int64, prefix string, width int) string {
	if width <= 0 {
		width = DefaultInvoiceNumberWidth
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultInvoiceNumberPrefix
	}
	return fmt.Sprintf("%s-%0*d", prefix, width, seq)
}
