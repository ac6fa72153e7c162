package lark

import (
	"context"
	"encoding/json"
	"fmt"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
)

const (
	receiveIDTypeOpenID = "open_id"
	msgTypeText         = "text"
)

// Messenger implements port.MessageSender over the Lark IM API
type Messenger struct {
	sdk    *SDKClient
	logger *zap.Logger
}

var _ port.MessageSender = (*Messenger)(nil)

// NewMessenger creates a new Lark message sender adapter
func NewMessenger(sdk *SDKClient, logger *zap.Logger) *Messenger {
	return &Messenger{
		sdk:    sdk,
		logger: logger,
	}
}

// SendText sends a plain-text message to the user identified by openID
func (m *Messenger) SendText(ctx context.Context, openID, text string) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}
	if text == "" {
		return fmt.Errorf("content cannot be empty")
	}

	content, err := textContent(text)
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDTypeOpenID).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType(msgTypeText).
			Content(content).
			Build()).
		Build()

	resp, err := m.sdk.GetClient().Im.Message.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("open_id", openID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("open_id", openID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Debug("Message sent",
		zap.String("message_id", messageID),
		zap.String("open_id", openID))

	return nil
}

// textContent renders the JSON content of a Lark text message
func textContent(text string) (string, error) {
	raw, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("marshal message content: %w", err)
	}
	return string(raw), nil
}
