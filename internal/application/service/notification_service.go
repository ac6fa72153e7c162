package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// NotificationService turns committed events into Lark messages.
// A failed delivery is logged and never affects the expense.
type NotificationService interface {
	NotifyStepActivated(ctx context.Context, evt *event.Event) error
	NotifyExpenseFinalized(ctx context.Context, evt *event.Event) error
	RegisterHandlers(d dispatcher.Dispatcher)
}

type notificationServiceImpl struct {
	users         port.UserRepository
	messageSender port.MessageSender
	logger        Logger
}

// NewNotificationService creates a new NotificationService. messageSender may be nil,
// in which case notifications are only logged.
func NewNotificationService(users port.UserRepository, messageSender port.MessageSender, logger Logger) NotificationService {
	return &notificationServiceImpl{
		users:         users,
		messageSender: messageSender,
		logger:        logger,
	}
}

// RegisterHandlers subscribes the service to the events it reacts to
func (s *notificationServiceImpl) RegisterHandlers(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeStepActivated, "notify_approver", s.NotifyStepActivated)
	d.SubscribeNamed(event.TypeExpenseApproved, "notify_submitter_approved", s.NotifyExpenseFinalized)
	d.SubscribeNamed(event.TypeExpenseRejected, "notify_submitter_rejected", s.NotifyExpenseFinalized)
}

// NotifyStepActivated tells the approver that an expense is waiting for them
func (s *notificationServiceImpl) NotifyStepActivated(ctx context.Context, evt *event.Event) error {
	approverID := evt.GetPayloadInt(event.PayloadApproverID)
	message := fmt.Sprintf(
		"Expense #%d (%s %s) is waiting for your approval.\nApproval ID: %d",
		evt.ExpenseID,
		evt.GetPayloadString(event.PayloadAmount),
		evt.GetPayloadString(event.PayloadCurrency),
		evt.GetPayloadInt(event.PayloadApprovalID),
	)
	return s.send(ctx, approverID, evt, message)
}

// NotifyExpenseFinalized tells the submitter how their expense ended
func (s *notificationServiceImpl) NotifyExpenseFinalized(ctx context.Context, evt *event.Event) error {
	submitterID := evt.GetPayloadInt(event.PayloadSubmitterID)
	message := fmt.Sprintf(
		"Your expense #%d (%s %s) has been %s.",
		evt.ExpenseID,
		evt.GetPayloadString(event.PayloadAmount),
		evt.GetPayloadString(event.PayloadCurrency),
		evt.GetPayloadString(event.PayloadStatus),
	)
	return s.send(ctx, submitterID, evt, message)
}

func (s *notificationServiceImpl) send(ctx context.Context, userID int64, evt *event.Event, message string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load notification recipient", "error", err, "user_id", userID, "event_id", evt.ID)
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.LarkOpenID == "" || s.messageSender == nil {
		s.logger.Info("Notification logged only",
			"event_type", evt.Type.String(),
			"expense_id", evt.ExpenseID,
			"user_id", userID,
			"message", message)
		return nil
	}

	if err := s.messageSender.SendText(ctx, user.LarkOpenID, message); err != nil {
		s.logger.Error("Failed to send message",
			"error", err,
			"event_type", evt.Type.String(),
			"expense_id", evt.ExpenseID,
			"open_id", user.LarkOpenID)
		return fmt.Errorf("send message: %w", err)
	}

	s.logger.Info("Notification sent successfully",
		"event_type", evt.Type.String(),
		"expense_id", evt.ExpenseID,
		"open_id", user.LarkOpenID,
		"message_length", len(message))
	return nil
}
