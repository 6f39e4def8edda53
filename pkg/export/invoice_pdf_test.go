package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderInvoice(t *testing.T) {
	exporter := NewPDFExporter()
	data, err := exporter.RenderInvoice(InvoiceDocument{
		Number:   "INV-2026-0042",
		Status:   "issued",
		IssuedAt: "2026-08-01",
		DueDate:  "2026-08-31",
		BillTo:   []string{"Acme Plumbing", "12 Canal St"},
		Lines: []InvoiceLine{
			{Label: "Amount", Value: "120.00"},
			{Label: "Tax", Value: "25.20"},
			{Label: "Total", Value: "145.20"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestRenderInvoiceRequiresNumber(t *testing.T) {
	exporter := NewPDFExporter()
	_, err := exporter.RenderInvoice(InvoiceDocument{})
	require.Error(t, err)
}
