package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"hatewatch/internal/models"
)

// TelegramNotifier posts the outcome of every finished ingestion batch to one chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewTelegramNotifier creates the notifier. It returns nil when token is empty,
// which disables notifications. An empty endpoint uses the public Bot API.
func NewTelegramNotifier(token string, chatID int64, endpoint string, client *http.Client, logger *zap.Logger) (*TelegramNotifier, error) {
	if token == "" {
		logger.Info("Telegram notifications are disabled (token is empty)")
		return nil, nil
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}

	botAPI, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))
	return &TelegramNotifier{api: botAPI, chatID: chatID, logger: logger.Named("notify")}, nil
}

// NotifyBatch sends a summary of the batch. Failures are logged only.
func (n *TelegramNotifier) NotifyBatch(_ context.Context, batch models.IngestionBatch, p models.Progress) {
	if n == nil {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, FormatBatch(batch, p))
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Warn("Failed to send batch notification",
			zap.String("batch_id", batch.ID),
			zap.Error(err),
		)
	}
}

// FormatBatch renders the plain-text notification body.
func FormatBatch(batch models.IngestionBatch, p models.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Upload %s for %s: %s\n", batch.Source, batch.Period, p.State)
	fmt.Fprintf(&b, "Status: %s\n", p.Status)
	fmt.Fprintf(&b, "Rows: %d\n", p.Rows)
	fmt.Fprintf(&b, "Batch: %s", batch.ID)
	if batch.Checksum != "" {
		fmt.Fprintf(&b, "\nChecksum: %s", batch.Checksum)
	}
	return b.String()
}
