// Package notifier delivers task events to the facility Telegram chat.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/custodian/internal/events"
	"github.com/UnknownOlympus/custodian/internal/i18n"
	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/UnknownOlympus/custodian/internal/models"
	"gopkg.in/telebot.v4"
)

// telegramRateTimeout keeps consecutive sends under the Telegram per-chat limit.
const telegramRateTimeout = 100 * time.Millisecond

// Sender is the part of telebot.Bot the notifier uses.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// FacilityDirectory resolves the chat a facility is notified in.
type FacilityDirectory interface {
	GetFacility(ctx context.Context, id string) (models.Facility, error)
}

// Notifier is an events.Handler that formats and sends notifications.
type Notifier struct {
	log       *slog.Logger
	sender    Sender
	directory FacilityDirectory
	localizer *i18n.Localizer
	metrics   *metrics.Metrics
	lang      string
	rateDelay time.Duration
}

// NewTelegramSender authorizes a bot used only for outgoing messages.
func NewTelegramSender(log *slog.Logger, token string, timeout time.Duration) (*telebot.Bot, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	log.Info("Authorized on account", "account", bot.Me.Username)

	return bot, nil
}

// New creates a notifier writing in lang. Metrics may be nil.
func New(
	log *slog.Logger,
	sender Sender,
	directory FacilityDirectory,
	localizer *i18n.Localizer,
	m *metrics.Metrics,
	lang string,
) *Notifier {
	return &Notifier{
		log:       log,
		sender:    sender,
		directory: directory,
		localizer: localizer,
		metrics:   m,
		lang:      i18n.NormalizeLanguageCode(lang),
		rateDelay: telegramRateTimeout,
	}
}

// WithRateDelay overrides the pause after each send.
func (n *Notifier) WithRateDelay(delay time.Duration) *Notifier {
	n.rateDelay = delay
	return n
}

// Handle sends one notification. Facilities without a chat are skipped.
func (n *Notifier) Handle(ctx context.Context, event events.Event) error {
	facility, err := n.directory.GetFacility(ctx, event.Task.FacilityID)
	if err != nil {
		return fmt.Errorf("failed to get facility %s: %w", event.Task.FacilityID, err)
	}
	if facility.NotifyChatID == 0 {
		n.log.DebugContext(ctx, "Facility has no notification chat", "facility_id", facility.ID)
		return nil
	}

	message := n.Format(event)
	if _, err = n.sender.Send(telebot.ChatID(facility.NotifyChatID), message, telebot.ModeMarkdown); err != nil {
		n.count("error")
		return fmt.Errorf("failed to send notification to chat %d: %w", facility.NotifyChatID, err)
	}
	n.count(string(event.Type))

	if n.rateDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(n.rateDelay):
		}
	}

	return nil
}

func (n *Notifier) count(label string) {
	if n.metrics != nil {
		n.metrics.SentMessages.WithLabelValues(label).Inc()
	}
}

// Format renders the localized message for event.
func (n *Notifier) Format(event events.Event) string {
	key := string(event.Type)
	if event.Task.Status == models.StatusCompletedWithPhoto {
		key = "task.completed_with_photo"
	}

	location := event.Task.Location
	if location == "" {
		location = event.Task.FacilityName
	}

	return n.localizer.GetWithData(n.lang, key, map[string]any{
		"task":     event.Task.Name,
		"location": location,
		"date":     event.Task.Date.String(),
		"actor":    event.Actor.ID,
		"comment":  event.Comment,
		"photos":   len(event.Task.Photos),
	})
}
