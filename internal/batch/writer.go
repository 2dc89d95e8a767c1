package batch

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// OutputHeader is the column layout of batch result files.
var OutputHeader = []string{
	"row", "query", "tract_id", "block_group_id", "latitude", "longitude",
	"median_income", "ami_percentage", "income_category", "is_approved",
	"eligibility", "data_source", "timestamp", "error",
}

// Record flattens an output into OutputHeader order.
func (o Output) Record() []string {
	rec := make([]string, len(OutputHeader))
	rec[0] = strconv.Itoa(o.Input.Row)
	rec[1] = o.Input.Query
	if o.Err != nil {
		rec[13] = o.Err.Error()
		return rec
	}
	r := o.Result
	if r == nil {
		return rec
	}
	rec[2] = r.TractID
	rec[3] = r.BlockGroupID
	rec[4] = strconv.FormatFloat(r.Latitude, 'f', 6, 64)
	rec[5] = strconv.FormatFloat(r.Longitude, 'f', 6, 64)
	if r.MedianIncome != nil {
		rec[6] = strconv.Itoa(*r.MedianIncome)
	}
	if r.AMIPercentage != nil {
		rec[7] = strconv.FormatFloat(*r.AMIPercentage, 'f', 2, 64)
	}
	if r.IncomeCategory != nil {
		rec[8] = string(*r.IncomeCategory)
	}
	rec[9] = strconv.FormatBool(r.IsApproved)
	rec[10] = string(r.EligibilityLabel)
	rec[11] = string(r.DataSource)
	rec[12] = r.Timestamp.Format(time.RFC3339)
	return rec
}

// WriteCSV writes a header and one record per output.
func WriteCSV(w io.Writer, outs []Output) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(OutputHeader); err != nil {
		return eris.Wrap(err, "batch: write csv header")
	}
	for _, o := range outs {
		if err := cw.Write(o.Record()); err != nil {
			return eris.Wrapf(err, "batch: write csv row %d", o.Input.Row)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "batch: flush csv")
}

// WriteXLSX writes outputs to a single-sheet workbook.
func WriteXLSX(path string, outs []Output) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("LMI Results")
	if err != nil {
		return eris.Wrap(err, "batch: add sheet")
	}
	sheet.AddRow().WriteSlice(&OutputHeader, -1)
	for _, o := range outs {
		rec := o.Record()
		sheet.AddRow().WriteSlice(&rec, -1)
	}
	return eris.Wrap(f.Save(path), "batch: save xlsx")
}

// WriteFile writes outputs to path, choosing the format by extension. An
// empty path or "-" writes CSV to stdout.
func WriteFile(path string, stdout io.Writer, outs []Output) error {
	if path == "" || path == "-" {
		return WriteCSV(stdout, outs)
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return WriteXLSX(path, outs)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "batch: create output")
	}
	if err := WriteCSV(f, outs); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "batch: close output")
}
