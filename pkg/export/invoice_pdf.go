package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// InvoiceLine is one labelled row of the invoice amounts table.
type InvoiceLine struct {
	Label string
	Value string
}

// InvoiceDocument is the printable view of an invoice. All values arrive
// pre-formatted; the renderer does layout only.
type InvoiceDocument struct {
	Number   string
	Status   string
	IssuedAt string
	DueDate  string
	BillTo   []string
	Lines    []InvoiceLine
}

// PDFExporter renders invoice documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderInvoice produces the PDF bytes for one invoice.
func (e *PDFExporter) RenderInvoice(doc InvoiceDocument) ([]byte, error) {
	if doc.Number == "" {
		return nil, fmt.Errorf("invoice number is required")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, fmt.Sprintf("INVOICE %s", doc.Number), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	if doc.Status != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Status: %s", doc.Status), "", 1, "L", false, 0, "")
	}
	if doc.IssuedAt != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Issued: %s", doc.IssuedAt), "", 1, "L", false, 0, "")
	}
	if doc.DueDate != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Due: %s", doc.DueDate), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(doc.BillTo) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, "Bill to", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, line := range doc.BillTo {
			pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(120, 8, "Description", "1", 0, "L", false, 0, "")
	pdf.CellFormat(60, 8, "Amount", "1", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, line := range doc.Lines {
		pdf.CellFormat(120, 7, line.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 7, line.Value, "1", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
