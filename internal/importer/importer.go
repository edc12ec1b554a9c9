// Package importer parses bank statement CSV exports into bank records for
// the ingest pipeline, covering providers that have no API connection.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	enc "github.com/tallyhq/tally/internal/encoding"
	"github.com/tallyhq/tally/internal/normalize"
)

// Profile describes one bank's statement layout: which headers carry which
// fields, the column separator and the date format.
type Profile struct {
	Name       string
	Comma      rune
	DateFormat string
	// Column headers, matched case-insensitively after trimming.
	IDCol          string
	DateCol        string
	AmountCol      string
	DescriptionCol string
	AccountCol     string
}

func (p *Profile) requiredCols() []string {
	return []string{p.IDCol, p.DateCol, p.AmountCol, p.DescriptionCol}
}

// Parser reads one bank's CSV export against a profile. Statement rows
// become bank records keyed by the bank's own transaction id, so re-importing
// an overlapping statement is a no-op downstream.
type Parser struct {
	profile Profile
}

func New(profile Profile) *Parser {
	if profile.Comma == 0 {
		profile.Comma = ','
	}

	if profile.DateFormat == "" {
		profile.DateFormat = time.DateOnly
	}

	return &Parser{profile: profile}
}

func (p *Parser) Parse(r io.Reader) ([]normalize.BankRecord, error) {
	utf8r, err := enc.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	reader := csv.NewReader(utf8r)
	reader.Comma = p.profile.Comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	cols, headerIdx, err := p.findHeader(rows)
	if err != nil {
		return nil, err
	}

	var records []normalize.BankRecord

	for i, row := range rows[headerIdx+1:] {
		rec, err := p.parseRow(cols, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", headerIdx+2+i, err)
		}

		records = append(records, rec)
	}

	return records, nil
}

type colIndex map[string]int

func (p *Parser) findHeader(rows [][]string) (colIndex, int, error) {
	for rowIdx, row := range rows {
		cols := make(colIndex)

		for i, cell := range row {
			name := strings.ToLower(strings.TrimSpace(cell))
			if name != "" {
				cols[name] = i
			}
		}

		matched := true

		for _, name := range p.profile.requiredCols() {
			if _, ok := cols[strings.ToLower(name)]; !ok {
				matched = false
				break
			}
		}

		if matched {
			return cols, rowIdx, nil
		}
	}

	return nil, 0, fmt.Errorf("no %s header row found", p.profile.Name)
}

func (p *Parser) parseRow(cols colIndex, row []string) (normalize.BankRecord, error) {
	cell := func(name string) string {
		i, ok := cols[strings.ToLower(name)]
		if !ok || i >= len(row) {
			return ""
		}

		return strings.TrimSpace(row[i])
	}

	date, err := time.Parse(p.profile.DateFormat, cell(p.profile.DateCol))
	if err != nil {
		return normalize.BankRecord{}, fmt.Errorf("parsing date: %w", err)
	}

	rec := normalize.BankRecord{
		TransactionID: cell(p.profile.IDCol),
		Amount:        normalizeAmount(cell(p.profile.AmountCol)),
		Date:          date,
		Name:          cell(p.profile.DescriptionCol),
	}

	if p.profile.AccountCol != "" {
		rec.AccountID = cell(p.profile.AccountCol)
	}

	if rec.TransactionID == "" {
		return normalize.BankRecord{}, fmt.Errorf("missing transaction id")
	}

	return rec, nil
}

// normalizeAmount converts statement amount notation ("1.234,56", "1,234.56")
// to the canonical dot-decimal form the normalizer parses.
func normalizeAmount(s string) string {
	s = strings.ReplaceAll(s, " ", "")

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	if lastComma > lastDot {
		// Comma is the decimal separator; dots are thousands.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)

		return s
	}

	return strings.ReplaceAll(s, ",", "")
}
