package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	SheetExpenses  = "Expenses"
	SheetApprovals = "Approvals"

	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

var (
	expenseHeader = []interface{}{
		"Expense ID", "Submitter", "Amount", "Currency", "Category", "Description",
		"Expense Date", "Status", "Submitted At", "Finalized At",
	}
	approvalHeader = []interface{}{
		"Expense ID", "Step", "Approver", "Status", "Comment", "Decided At",
	}
)

// XLSXExporter renders expense reports as an Excel workbook with one sheet for
// expenses and one for their approval ledgers
type XLSXExporter struct {
	logger *zap.Logger
}

var _ port.ReportExporter = (*XLSXExporter)(nil)

// NewXLSXExporter creates a new XLSXExporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// ContentType returns the MIME type of the workbook
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileExtension returns the file extension including the dot
func (e *XLSXExporter) FileExtension() string {
	return ".xlsx"
}

// Write renders reports to w
func (e *XLSXExporter) Write(w io.Writer, company *entity.Company, reports []port.ExpenseReport, approverNames map[int64]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("%s expenses", company.Name),
		Creator: "expense-approval",
		Created: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("set document properties: %w", err)
	}

	first := f.GetSheetName(0)
	if err := f.SetSheetName(first, SheetExpenses); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetApprovals); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("create amount style: %w", err)
	}

	if err := writeHeader(f, SheetExpenses, expenseHeader, headerStyle); err != nil {
		return err
	}
	if err := writeHeader(f, SheetApprovals, approvalHeader, headerStyle); err != nil {
		return err
	}

	approvalRow := 2
	for i, r := range reports {
		row := i + 2
		if err := e.writeExpense(f, row, r, amountStyle); err != nil {
			return err
		}
		for _, a := range r.Approvals {
			if err := writeApproval(f, approvalRow, a, approverNames); err != nil {
				return err
			}
			approvalRow++
		}
	}

	_ = f.SetColWidth(SheetExpenses, "B", "B", 20)
	_ = f.SetColWidth(SheetExpenses, "F", "F", 40)
	_ = f.SetColWidth(SheetExpenses, "I", "J", 20)
	_ = f.SetColWidth(SheetApprovals, "C", "C", 20)
	_ = f.SetColWidth(SheetApprovals, "E", "F", 30)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	e.logger.Info("Expense report rendered",
		zap.Int64("company_id", company.ID),
		zap.Int("expenses", len(reports)),
		zap.Int("approvals", approvalRow-2))
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []interface{}, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	end, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	if err := f.SetCellStyle(sheet, "A1", end, style); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}

func (e *XLSXExporter) writeExpense(f *excelize.File, row int, r port.ExpenseReport, amountStyle int) error {
	exp := r.Expense
	submitter := ""
	if r.Submitter != nil {
		submitter = r.Submitter.Name
	}

	values := []interface{}{
		exp.ID,
		submitter,
		exp.Amount.InexactFloat64(),
		exp.Currency,
		exp.Category,
		exp.Description,
		formatTime(exp.ExpenseDate, dateLayout),
		exp.Status,
		exp.CreatedAt.UTC().Format(datetimeLayout),
		formatTime(exp.FinalizedAt, datetimeLayout),
	}

	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("write expense %d: %w", exp.ID, err)
	}
	if err := f.SetSheetRow(SheetExpenses, start, &values); err != nil {
		return fmt.Errorf("write expense %d: %w", exp.ID, err)
	}

	amountCell, _ := excelize.CoordinatesToCellName(3, row)
	if err := f.SetCellStyle(SheetExpenses, amountCell, amountCell, amountStyle); err != nil {
		e.logger.Warn("Failed to style amount cell", zap.String("cell", amountCell), zap.Error(err))
	}
	return nil
}

func writeApproval(f *excelize.File, row int, a *entity.Approval, names map[int64]string) error {
	approver := names[a.ApproverID]
	if approver == "" {
		approver = fmt.Sprintf("user #%d", a.ApproverID)
	}

	values := []interface{}{
		a.ExpenseID,
		a.SequenceOrder,
		approver,
		a.Status,
		a.Comment,
		formatTime(a.DecidedAt, datetimeLayout),
	}

	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("write approval %d: %w", a.ID, err)
	}
	if err := f.SetSheetRow(SheetApprovals, start, &values); err != nil {
		return fmt.Errorf("write approval %d: %w", a.ID, err)
	}
	return nil
}

func formatTime(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(layout)
}
