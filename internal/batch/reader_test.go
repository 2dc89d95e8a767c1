package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmi-check/internal/model"
)

func TestParseRows_Header(t *testing.T) {
	rows := [][]string{
		{"Owner", "Address", "Search_Type", "Level"},
		{"A. Smith", "123 Poor St", "", ""},
		{"B. Jones", "Griffith Observatory", "place", "blockGroup"},
		{"C. Blank", "   ", "", ""},
		{"D. Short"},
	}

	inputs, err := ParseRows(rows)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, Input{Row: 2, Query: "123 Poor St"}, inputs[0])
	assert.Equal(t, Input{Row: 3, Query: "Griffith Observatory", SearchType: model.SearchPlace, Level: model.LevelBlockGroup}, inputs[1])
}

func TestParseRows_NoHeaderUsesFirstColumn(t *testing.T) {
	inputs, err := ParseRows([][]string{
		{"100 Main St", "ignored"},
		{"1 Rich Way"},
	})
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, 1, inputs[0].Row)
	assert.Equal(t, "1 Rich Way", inputs[1].Query)
	assert.Empty(t, inputs[1].SearchType)
}

func TestParseRows_Empty(t *testing.T) {
	inputs, err := ParseRows(nil)
	require.NoError(t, err)
	assert.Nil(t, inputs)
}

func TestReadCSV_RaggedRows(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("address,zip\n\"123 Poor St, Los Angeles\",90013\n100 Main St\n"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "123 Poor St, Los Angeles", rows[1][0])
	assert.Len(t, rows[2], 1)
}

func TestReadFile_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.csv")
	require.NoError(t, os.WriteFile(path, []byte("query\n123 Poor St\n1 Rich Way\n"), 0o644))

	inputs, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "1 Rich Way", inputs[1].Query)
	assert.Equal(t, 3, inputs[1].Row)
}

func TestReadFile_XLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.xlsx")
	require.NoError(t, WriteXLSX(path, []Output{
		{Input: Input{Row: 1, Query: "123 Poor St"}},
		{Input: Input{Row: 2, Query: "1 Rich Way"}},
	}))

	inputs, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "123 Poor St", inputs[0].Query)
	assert.Equal(t, 2, inputs[0].Row)
}

func TestReadFile_UnsupportedExtension(t *testing.T) {
	_, err := ReadFile("props.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported input")
}

func TestReadXLSX_SheetOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.xlsx")
	require.NoError(t, WriteXLSX(path, nil))

	_, err := ReadXLSX(path, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
