package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func strPtr(s string) *string { return &s }

func TestXLSX(t *testing.T) {
	amount := 1250.5
	results := []models.ExtractionResult{
		{
			Name:    "acme.pdf",
			Success: true,
			Record: &models.ExtractionRecord{
				InvoiceNumber: strPtr("INV-1042"),
				Counterparty:  strPtr("Acme Corp"),
				Amount:        &amount,
				Currency:      strPtr("USD"),
				IssueDate:     strPtr("2024-03-01"),
				Confidence:    100,
			},
			Elapsed: 1500 * time.Millisecond,
		},
		{
			Name:    "broken.pdf",
			Success: false,
			Error:   "analysis job exec-1 timed out after 60 poll attempts",
			Elapsed: 2 * time.Second,
		},
	}

	data, err := XLSX(results)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheet}, f.GetSheetList())

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])

	assert.Equal(t, "acme.pdf", rows[1][0])
	assert.Equal(t, "TRUE", rows[1][1])
	assert.Equal(t, "INV-1042", rows[1][2])
	assert.Equal(t, "Acme Corp", rows[1][3])
	assert.Equal(t, "1250.5", rows[1][4])
	assert.Equal(t, "USD", rows[1][5])
	assert.Equal(t, "2024-03-01", rows[1][6])
	assert.Equal(t, "", rows[1][7])
	assert.Equal(t, "100", rows[1][8])
	assert.Equal(t, "1.5", rows[1][9])

	require.Len(t, rows[2], len(headers))
	assert.Equal(t, "broken.pdf", rows[2][0])
	assert.Equal(t, "FALSE", rows[2][1])
	assert.Equal(t, "", rows[2][2])
	assert.Contains(t, rows[2][10], "timed out")

	styleID, err := f.GetCellStyle(sheet, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestXLSXEmpty(t *testing.T) {
	data, err := XLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
