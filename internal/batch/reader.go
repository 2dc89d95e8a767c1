package batch

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lmi-check/internal/model"
)

// Input is one query read from a batch file. Row is 1-based and counts the
// header when present.
type Input struct {
	Row        int              `json:"row"`
	Query      string           `json:"query"`
	SearchType model.SearchType `json:"search_type,omitempty"`
	Level      model.Level      `json:"level,omitempty"`
}

// queryColumns are header names accepted for the query column, by priority.
var queryColumns = []string{"address", "query", "place", "place_name", "property"}

// ReadFile reads inputs from a .csv or .xlsx file.
func ReadFile(path string) ([]Input, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSVFile(path)
	case ".xlsx":
		rows, err = ReadXLSX(path, 0)
	default:
		return nil, eris.Errorf("batch: unsupported input %s (want .csv or .xlsx)", path)
	}
	if err != nil {
		return nil, err
	}
	return ParseRows(rows)
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open csv")
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f)
}

// ReadCSV reads every record from r. Rows may have differing field counts.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "batch: read csv row")
		}
		rows = append(rows, record)
	}
}

// ReadXLSX reads all rows of the sheet at sheetIndex.
func ReadXLSX(path string, sheetIndex int) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open xlsx")
	}
	if sheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("batch: sheet index %d out of range (file has %d sheets)", sheetIndex, len(f.Sheets))
	}

	sheet := f.Sheets[sheetIndex]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// ParseRows turns raw rows into inputs. A first row naming a query column
// (address, query, place, ...) is treated as a header and may also name
// search_type and level columns; otherwise the first column is the query.
// Blank queries are skipped.
func ParseRows(rows [][]string) ([]Input, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	queryIdx, typeIdx, levelIdx := 0, -1, -1
	start := 0
	if idx := headerIndex(rows[0]); idx != nil {
		q, ok := firstOf(idx, queryColumns...)
		if !ok {
			return nil, eris.New("batch: header has no address or query column")
		}
		queryIdx = q
		if t, ok := firstOf(idx, "search_type", "searchtype", "type"); ok {
			typeIdx = t
		}
		if l, ok := firstOf(idx, "level"); ok {
			levelIdx = l
		}
		start = 1
	}

	var inputs []Input
	for i := start; i < len(rows); i++ {
		q := strings.TrimSpace(cell(rows[i], queryIdx))
		if q == "" {
			continue
		}
		in := Input{Row: i + 1, Query: q}
		if typeIdx >= 0 && strings.EqualFold(strings.TrimSpace(cell(rows[i], typeIdx)), string(model.SearchPlace)) {
			in.SearchType = model.SearchPlace
		}
		if levelIdx >= 0 && strings.EqualFold(strings.TrimSpace(cell(rows[i], levelIdx)), string(model.LevelBlockGroup)) {
			in.Level = model.LevelBlockGroup
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// headerIndex returns a lowercase name→column map when row looks like a
// header, or nil.
func headerIndex(row []string) map[string]int {
	idx := make(map[string]int, len(row))
	for i, name := range row {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := firstOf(idx, queryColumns...); ok {
		return idx
	}
	return nil
}

func firstOf(idx map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i, true
		}
	}
	return -1, false
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
