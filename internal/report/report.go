// Package report renders the catalog as a printable HTML table or an XLSX workbook.
package report

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vyrodovalexey/bookstore/internal/model"
)

// Content types of the rendered reports.
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// TimestampLayout formats the generation time shown in the HTML report.
const TimestampLayout = "2006-01-02 15:04:05"

// SheetName is the worksheet that holds the book table.
const SheetName = "Books"

// Columns lists the report columns in display order.
var Columns = []string{"ISBN", "Title", "Authors", "Category", "Year", "Price"}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Book Report</title>
<style>
  body { font-family: Arial; }
  table { border-collapse: collapse; width: 100%; }
  th, td { border: 1px solid #ddd; padding: 8px; }
  th { background-color: #f2f2f2; text-align: left; }
  .timestamp { margin-bottom: 20px; font-size: 0.9em; color: #555; }
</style>
</head>
<body>
<h2>Bookstore Report</h2>
<div class="timestamp">Generated at {{.GeneratedAt}} UTC</div>
<table>
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{- range .Rows}}
<tr><td>{{.ISBN}}</td><td>{{.Title}}</td><td>{{.Authors}}</td><td>{{.Category}}</td><td>{{.Year}}</td><td>{{.Price}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

type htmlRow struct {
	ISBN     string
	Title    string
	Authors  string
	Category string
	Year     int
	Price    string
}

// Generator renders reports. The clock stamps the HTML output.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a Generator. A nil clock means time.Now.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// WriteHTML renders books as an HTML table. Every value is escaped.
func (g *Generator) WriteHTML(w io.Writer, books []model.Book) error {
	rows := make([]htmlRow, len(books))
	for i, b := range books {
		rows[i] = htmlRow{
			ISBN:     b.ISBN,
			Title:    b.Title,
			Authors:  b.AuthorList(),
			Category: b.Category,
			Year:     b.Year,
			Price:    FormatPrice(b.Price),
		}
	}

	data := struct {
		GeneratedAt string
		Columns     []string
		Rows        []htmlRow
	}{
		GeneratedAt: g.now().UTC().Format(TimestampLayout),
		Columns:     Columns,
		Rows:        rows,
	}

	if err := htmlTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering html report: %w", err)
	}
	return nil
}

// WriteXLSX renders books as a single-sheet workbook with a bold header row.
func (g *Generator) WriteXLSX(w io.Writer, books []model.Book) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"F2F2F2"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Columns), 1)
	if err != nil {
		return fmt.Errorf("resolving header range: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, b := range books {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("resolving row %d: %w", i+2, err)
		}
		row := []interface{}{b.ISBN, b.Title, b.AuthorList(), b.Category, b.Year, b.Price}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 20); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(SheetName, "B", "C", 40); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// FormatPrice renders a price with two decimals.
func FormatPrice(p float64) string {
	return fmt.Sprintf("%.2f", p)
}
