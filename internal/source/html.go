package source

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"catalog/repricer/internal/domain"
)

var ErrNoTable = errors.New("no table found in document")

// ReadHTMLTable reads the first table of an HTML export. The first row holds
// the headers; every later row becomes a domain.Row keyed by header. Columns
// with an empty or repeated header are skipped, as are rows with no text.
func ReadHTMLTable(r io.Reader) (*domain.Sheet, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	rows := table.Find("tr")
	if rows.Length() == 0 {
		return nil, ErrNoTable
	}

	// column index -> header, only for usable headers
	columns := make(map[int]string)
	sheet := &domain.Sheet{Headers: make([]string, 0)}
	seen := make(map[string]bool)
	for i, cell := range cellTexts(rows.First()) {
		if cell == "" || seen[cell] {
			log.Debugf("Skipping column %d with header %q", i, cell)
			continue
		}
		seen[cell] = true
		columns[i] = cell
		sheet.Headers = append(sheet.Headers, cell)
	}
	if len(sheet.Headers) == 0 {
		return nil, fmt.Errorf("table has no header row")
	}

	sheet.Rows = make([]domain.Row, 0, rows.Length()-1)
	rows.Slice(1, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
		cells := cellTexts(tr)
		row := make(domain.Row, len(sheet.Headers))
		empty := true
		for i, header := range columns {
			value := ""
			if i < len(cells) {
				value = cells[i]
			}
			if value != "" {
				empty = false
			}
			row[header] = value
		}
		if !empty {
			sheet.Rows = append(sheet.Rows, row)
		}
	})

	log.Debugf("Parsed HTML table with %d columns and %d rows", len(sheet.Headers), len(sheet.Rows))
	return sheet, nil
}

func cellTexts(tr *goquery.Selection) []string {
	cells := make([]string, 0)
	tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(cell.Text()))
	})
	return cells
}
