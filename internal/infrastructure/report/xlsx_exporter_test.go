package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func TestXLSXExporter_Write(t *testing.T) {
	decided := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	spent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	company := &entity.Company{ID: 1, Name: "Acme", Currency: "USD"}
	reports := []port.ExpenseReport{
		{
			Expense: &entity.Expense{
				ID: 10, CompanyID: 1, SubmitterID: 3,
				Amount: decimal.RequireFromString("120.50"), Currency: "USD",
				Category: "travel", Description: "taxi",
				ExpenseDate: &spent,
				Status:      entity.ExpenseStatusApproved,
				CreatedAt:   spent,
				FinalizedAt: &decided,
			},
			Submitter: &entity.User{ID: 3, Name: "Emma"},
			Approvals: []*entity.Approval{
				{ID: 1, ExpenseID: 10, ApproverID: 4, SequenceOrder: 1, Status: "approved", Comment: "ok", DecidedAt: &decided},
				{ID: 2, ExpenseID: 10, ApproverID: 5, SequenceOrder: 2, Status: "skipped"},
			},
		},
		{
			Expense:   &entity.Expense{ID: 11, CompanyID: 1, SubmitterID: 3, Amount: decimal.NewFromInt(7), Currency: "EUR", Status: "pending", CreatedAt: spent},
			Submitter: &entity.User{ID: 3, Name: "Emma"},
		},
	}

	exporter := NewXLSXExporter(zap.NewNop())
	var buf bytes.Buffer
	require.NoError(t, exporter.Write(&buf, company, reports, map[int64]string{4: "Mark"}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetExpenses, SheetApprovals}, f.GetSheetList())

	rows, err := f.GetRows(SheetExpenses)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Expense ID", rows[0][0])
	assert.Equal(t, "10", rows[1][0])
	assert.Equal(t, "Emma", rows[1][1])
	assert.Equal(t, "120.50", rows[1][2])
	assert.Equal(t, "2026-03-01", rows[1][6])
	assert.Equal(t, "approved", rows[1][7])
	assert.Equal(t, "2026-03-02 09:30:00", rows[1][9])
	assert.Equal(t, "pending", rows[2][7])

	rows, err = f.GetRows(SheetApprovals)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Mark", rows[1][2])
	assert.Equal(t, "ok", rows[1][4])
	assert.Equal(t, "user #5", rows[2][2])
	assert.Equal(t, "skipped", rows[2][3])

	assert.Equal(t, ".xlsx", exporter.FileExtension())
	assert.Contains(t, exporter.ContentType(), "spreadsheetml")
}
