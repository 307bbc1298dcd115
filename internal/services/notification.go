package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// MessageSender is the subset of the Telegram client used for alerts. *bot.Bot satisfies it.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// RegimeNotificationService delivers regime alerts to a Telegram chat behind a circuit breaker.
type RegimeNotificationService struct {
	sender  MessageSender
	chatID  int64
	breaker *CircuitBreaker
	logger  *logrus.Logger
	timeout time.Duration
}

// NewRegimeNotificationService creates a Telegram-backed notifier.
func NewRegimeNotificationService(botToken string, chatID int64, logger *logrus.Logger) (*RegimeNotificationService, error) {
	if botToken == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}

	telegramBot, err := bot.New(botToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewRegimeNotificationServiceWithSender(telegramBot, chatID, logger), nil
}

// NewRegimeNotificationServiceWithSender wires an existing sender.
func NewRegimeNotificationServiceWithSender(sender MessageSender, chatID int64, logger *logrus.Logger) *RegimeNotificationService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RegimeNotificationService{
		sender: sender,
		chatID: chatID,
		breaker: NewCircuitBreaker("telegram", CircuitBreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Timeout:          2 * time.Minute,
			MaxRequests:      1,
			ResetTimeout:     10 * time.Minute,
		}, logger),
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (ns *RegimeNotificationService) Breaker() *CircuitBreaker {
	return ns.breaker
}

// Notify sends one alert. Errors include ErrCircuitOpen while Telegram is failing.
func (ns *RegimeNotificationService) Notify(ctx context.Context, alert models.RegimeAlert) error {
	message := FormatRegimeAlert(alert)

	err := ns.breaker.Execute(ctx, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, ns.timeout)
		defer cancel()

		_, err := ns.sender.SendMessage(sendCtx, &bot.SendMessageParams{
			ChatID:    ns.chatID,
			Text:      message,
			ParseMode: tgmodels.ParseModeMarkdown,
		})
		if err != nil {
			return fmt.Errorf("failed to send telegram message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	ns.logger.WithFields(logrus.Fields{
		"symbol": alert.Symbol,
		"regime": alert.Regime,
	}).Info("Regime alert sent")
	return nil
}

var regimeHeaders = map[models.Regime]string{
	models.RegimePreBreakoutTension: "🧨 *Pre-Breakout Tension*",
	models.RegimePostBreakoutDecay:  "📉 *Post-Breakout Decay*",
	models.RegimeFragmentedChop:     "🌀 *Fragmented Chop*",
	models.RegimeSessionSwitchFlare: "🔥 *Session Switch Flare*",
	models.RegimeVolatile:           "⚠️ *Volatile*",
}

// FormatRegimeAlert renders an alert as a Telegram Markdown message.
func FormatRegimeAlert(alert models.RegimeAlert) string {
	header, ok := regimeHeaders[alert.Regime]
	if !ok {
		header = fmt.Sprintf("📊 *%s*", alert.Regime)
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString(" on *")
	b.WriteString(alert.Symbol)
	b.WriteString("*\n\n")
	fmt.Fprintf(&b, "🎯 Confidence: *%s%%*\n", decimal.NewFromFloat(alert.Confidence).StringFixed(1))
	fmt.Fprintf(&b, "📏 ATR ratio: %s\n", decimal.NewFromFloat(alert.ATRRatio).StringFixed(2))
	fmt.Fprintf(&b, "📐 BB width ratio: %s\n", decimal.NewFromFloat(alert.BBWidthRatio).StringFixed(2))
	if alert.SessionTag != "" {
		fmt.Fprintf(&b, "🕒 Session: %s\n", alert.SessionTag)
	}
	if !alert.Timestamp.IsZero() {
		fmt.Fprintf(&b, "⏱ %s UTC\n", alert.Timestamp.UTC().Format("2006-01-02 15:04"))
	}
	if alert.RecommendedAction != "" {
		b.WriteString("\n💡 ")
		b.WriteString(alert.RecommendedAction)
	}
	return b.String()
}
