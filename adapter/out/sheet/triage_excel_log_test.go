package sheet

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mailtriage/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func record(subject string, category domain.Category, reply string) domain.LogRecord {
	d := domain.Decision{
		Message: domain.Message{
			ID:      subject,
			From:    "jane@x.com",
			Subject: subject,
			Date:    "Mon, 1 Jan 2024 10:00:00 +0000",
			Body:    "body of " + subject,
		},
		Classification: domain.ClassificationResult{
			Category:  category,
			Priority:  domain.PriorityLow,
			Sentiment: domain.SentimentNeutral,
		},
		OwnerAction: domain.OwnerActionRequired,
		AutoReply:   reply,
	}
	return domain.NewLogRecord(uuid.New(), d, time.Now())
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(DefaultSheetName)
	require.NoError(t, err)
	return rows
}

func TestExcelLogCreatesWorkbookWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage", "leads.xlsx")
	l := NewExcelLog(path, "")

	require.NoError(t, l.Append(context.Background(), []domain.LogRecord{
		record("Pricing", domain.CategoryInquiry, "Thanks"),
	}))

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, []string{
		"jane@x.com", "Pricing", "Mon, 1 Jan 2024 10:00:00 +0000", "body of Pricing",
		"Inquiry", "Low", "Required", "Thanks", "NEW",
	}, rows[1])

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	panes, err := f.GetPanes(DefaultSheetName)
	require.NoError(t, err)
	assert.True(t, panes.Freeze)
	assert.Equal(t, "A2", panes.TopLeftCell)

	width, err := f.GetColWidth(DefaultSheetName, "D")
	require.NoError(t, err)
	assert.Equal(t, 80.0, width)
}

func TestExcelLogAppendsToExistingWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	l := NewExcelLog(path, "")

	require.NoError(t, l.Append(context.Background(), []domain.LogRecord{record("first", domain.CategoryInquiry, "")}))
	require.NoError(t, l.Append(context.Background(), []domain.LogRecord{
		record("second", domain.CategorySystem, ""),
		record("third", domain.CategoryComplaint, "Sorry"),
	}))

	rows := readRows(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, "first", rows[1][1])
	assert.Equal(t, "second", rows[2][1])
	assert.Equal(t, "System", rows[2][4])
	assert.Equal(t, "third", rows[3][1])
}

func TestExcelLogAddsMissingSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	l := NewExcelLog(path, "")
	require.NoError(t, l.Append(context.Background(), []domain.LogRecord{record("x", domain.CategoryGeneral, "")}))

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "From", rows[0][0])
}

func TestExcelLogEmptyBatchIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	require.NoError(t, NewExcelLog(path, "").Append(context.Background(), nil))
	assert.NoFileExists(t, path)
}

func TestTruncateCell(t *testing.T) {
	long := strings.Repeat("a", maxCellChars+10)
	assert.Len(t, truncateCell(long), maxCellChars)
	assert.Equal(t, "short", truncateCell("short"))
}
