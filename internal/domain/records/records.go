// Package records loads patient/physician order rows from CSV or XLSX files.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies a tabular input encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// RequiredColumns must all appear in the header row, spelled exactly.
var RequiredColumns = []string{
	"name", "dob", "phone", "address", "city", "state", "zip", "medicare",
	"pcp_name", "pcp_address", "pcp_city", "pcp_state", "pcp_zip",
	"pcp_phone", "pcp_fax", "pcp_npi",
}

// Vocabulary is every field a template may reference.
var Vocabulary = append(append([]string{}, RequiredColumns...),
	"email", "insurance", "date", "height", "weight")

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported file format: upload a .csv or .xlsx file")

// MissingColumnsError lists required columns absent from the header row.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// PatientRecord is one input row keyed by column name.
type PatientRecord map[string]string

// Get returns the value of field, or "" when absent.
func (r PatientRecord) Get(field string) string {
	return r[field]
}

// Name returns the patient name.
func (r PatientRecord) Name() string { return r.Get("name") }

// FormatFromPath maps a file extension to a Format.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Load reads all records from the file at path.
func Load(path string) ([]PatientRecord, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()
	return Read(f, format)
}

// Read parses records from r in the given format.
func Read(r io.Reader, format Format) ([]PatientRecord, error) {
	var (
		rows [][]string
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = readCSV(r)
	case FormatXLSX:
		rows, err = readXLSX(r)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	return fromRows(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func fromRows(rows [][]string) ([]PatientRecord, error) {
	if len(rows) == 0 {
		return nil, &MissingColumnsError{Columns: append([]string{}, RequiredColumns...)}
	}

	header := make([]string, len(rows[0]))
	present := make(map[string]bool, len(header))
	for i, h := range rows[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
		present[header[i]] = true
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	out := make([]PatientRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := make(PatientRecord, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			val := ""
			if i < len(row) {
				val = strings.TrimSpace(row[i])
			}
			rec[col] = val
		}
		out = append(out, rec)
	}
	return out, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
