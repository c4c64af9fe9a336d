package sheet

import (
	"errors"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Columns the job writes back into. These are matched exactly against the
// header row; header names are opaque literals, never patterns.
const (
	StatusColumn   = "status"
	SendTimeColumn = "send_time"
)

var ErrEmptySheet = errors.New("workbook has no header row")

// Sheet is the in-memory view of the first worksheet of an xlsx file. The
// header set and order are fixed at load time; only individual cells change
// afterwards, through SetCell.
type Sheet struct {
	file    *excelize.File
	path    string
	name    string
	headers []string
	rows    []map[string]string
}

// Load opens the workbook at path and reads its first worksheet. The first
// row becomes the header list (trimmed); every following row becomes a
// header->value map, with missing trailing cells defaulting to "".
func Load(path string) (*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}

	name := f.GetSheetName(0)
	records, err := f.GetRows(name)
	if err != nil {
		f.Close()
		return nil, err
	}
	if len(records) == 0 {
		f.Close()
		return nil, ErrEmptySheet
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(record) {
				row[h] = record[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Sheet{
		file:    f,
		path:    path,
		name:    name,
		headers: headers,
		rows:    rows,
	}, nil
}

// Headers returns the ordered header row as loaded.
func (s *Sheet) Headers() []string { return s.headers }

// Rows returns the data rows in sheet order, each keyed by header name.
func (s *Sheet) Rows() []map[string]string { return s.rows }

// ColumnIndex returns the position of an exactly-matching header, or -1.
func (s *Sheet) ColumnIndex(name string) int {
	for i, h := range s.headers {
		if h == name {
			return i
		}
	}
	return -1
}

// FindHeader locates a header by case-insensitive trimmed comparison and
// returns its actual spelling, for columns like the recipient address where
// user sheets vary in casing.
func (s *Sheet) FindHeader(name string) (string, bool) {
	for _, h := range s.headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return h, true
		}
	}
	return "", false
}

// SetCell overwrites one cell in the named column of data row rowIndex
// (0-based, row 0 is the first row below the headers). Unknown columns are
// a no-op so sheets without status/send_time columns pass through untouched.
func (s *Sheet) SetCell(columnName string, rowIndex int, value string) error {
	col := s.ColumnIndex(columnName)
	if col < 0 {
		return nil
	}

	cell, err := excelize.CoordinatesToCellName(col+1, rowIndex+2)
	if err != nil {
		return err
	}
	if err := s.file.SetCellValue(s.name, cell, value); err != nil {
		return err
	}
	if rowIndex < len(s.rows) {
		s.rows[rowIndex][columnName] = value
	}
	return nil
}

// Save writes the whole workbook back to its original path.
func (s *Sheet) Save() error {
	return s.file.Save()
}

func (s *Sheet) Close() error {
	return s.file.Close()
}
