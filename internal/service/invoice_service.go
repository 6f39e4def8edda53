package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/pkg/export"
)

// InvoiceService renders invoice documents. It reads the invoice through the
// entity service so authorization and row scoping apply exactly as they do on
// the JSON endpoints.
type InvoiceService struct {
	entities *EntityService
	exporter *export.PDFExporter
}

// NewInvoiceService constructs an InvoiceService.
func NewInvoiceService(entities *EntityService, exporter *export.PDFExporter) *InvoiceService {
	if exporter == nil {
		exporter = export.NewPDFExporter()
	}
	return &InvoiceService{entities: entities, exporter: exporter}
}

// RenderPDF produces the printable PDF for one invoice.
func (s *InvoiceService) RenderPDF(ctx context.Context, actor Actor, invoiceID string) ([]byte, string, error) {
	invoice, err := s.entities.Get(ctx, actor, "invoice", invoiceID)
	if err != nil {
		return nil, "", err
	}

	doc := export.InvoiceDocument{
		Number:   stringField(invoice, "invoice_number"),
		Status:   stringField(invoice, "status"),
		IssuedAt: stringField(invoice, "issued_at"),
		DueDate:  stringField(invoice, "due_date"),
	}

	// The customer block is best effort: an invoice outside the caller's
	// customer view still renders, just without the address lines.
	if customerID := stringField(invoice, "customer_id"); customerID != "" {
		if customer, err := s.entities.Get(ctx, actor, "customer", customerID); err == nil {
			doc.BillTo = billingLines(customer)
		}
	}

	for _, line := range []string{"amount", "tax", "total"} {
		if value := stringField(invoice, line); value != "" {
			doc.Lines = append(doc.Lines, export.InvoiceLine{
				Label: titleCase(line),
				Value: value,
			})
		}
	}

	data, err := s.exporter.RenderInvoice(doc)
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("invoice-%s.pdf", doc.Number)
	return data, filename, nil
}

func billingLines(customer models.Record) []string {
	var lines []string
	for _, field := range []string{"full_name", "address", "city", "email"} {
		if value := stringField(customer, field); value != "" {
			lines = append(lines, value)
		}
	}
	return lines
}

func stringField(record models.Record, field string) string {
	value, ok := record[field]
	if !ok || value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
