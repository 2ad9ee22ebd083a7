package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter converts document content into a paginated PDF artifact.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Extension returns the artifact file extension.
func (e *PDFExporter) Extension() string {
	return "pdf"
}

// Convert renders the content title, body lines, table, and footer into PDF bytes.
func (e *PDFExporter) Convert(content Content) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if content.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(content.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	pdf.SetFont("Arial", "", 10)
	for _, line := range content.Body {
		if line == "" {
			pdf.Ln(4)
			continue
		}
		pdf.MultiCell(0, 5, line, "", "L", false)
	}

	if len(content.Table.Headers) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		colWidth := 190.0 / float64(len(content.Table.Headers))
		for _, header := range content.Table.Headers {
			pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range content.Table.Rows {
			for _, header := range content.Table.Headers {
				pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	if len(content.Footer) > 0 {
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		for _, line := range content.Footer {
			pdf.MultiCell(0, 5, line, "", "L", false)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
