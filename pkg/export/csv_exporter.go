package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Content is the renderable payload handed to a converter. Body carries the
// rendered template lines placed above the table; Footer carries signature
// or closing lines.
type Content struct {
	Title  string
	Body   []string
	Table  Dataset
	Footer []string
}

// CSVExporter converts document content into a CSV artifact. Title and body
// lines become single-column preamble rows, matching the spreadsheet layout
// of the original invoicing sheets.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Extension returns the artifact file extension.
func (e *CSVExporter) Extension() string {
	return "csv"
}

// Convert produces CSV encoded bytes for the content.
func (e *CSVExporter) Convert(content Content) ([]byte, error) {
	if len(content.Table.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	if content.Title != "" {
		if err := writer.Write([]string{content.Title}); err != nil {
			return nil, fmt.Errorf("write csv title: %w", err)
		}
	}
	for _, line := range content.Body {
		if err := writer.Write([]string{line}); err != nil {
			return nil, fmt.Errorf("write csv preamble: %w", err)
		}
	}

	if err := writer.Write(content.Table.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range content.Table.Rows {
		record := make([]string, len(content.Table.Headers))
		for i, header := range content.Table.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	for _, line := range content.Footer {
		if err := writer.Write([]string{line}); err != nil {
			return nil, fmt.Errorf("write csv footer: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
