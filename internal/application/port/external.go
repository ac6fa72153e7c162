package port

import (
	"context"
	"io"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// MessageSender delivers a plain-text message to a Lark user
type MessageSender interface {
	SendText(ctx context.Context, openID, text string) error
}

// ExpenseReport is one expense with its ledger, as exported
type ExpenseReport struct {
	Expense   *entity.Expense
	Submitter *entity.User
	Approvals []*entity.Approval
}

// ReportExporter renders expense reports into a spreadsheet
type ReportExporter interface {
	// Write renders the reports to w; approverNames maps user ids to display names
	Write(w io.Writer, company *entity.Company, reports []ExpenseReport, approverNames map[int64]string) error
	ContentType() string
	FileExtension() string
}
