package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"

	"github.com/irfndi/celebrum-regime/internal/config"
	"github.com/irfndi/celebrum-regime/internal/models"
	"github.com/irfndi/celebrum-regime/internal/services"
)

type telegramClient interface {
	GetMe(ctx context.Context) (*tgmodels.User, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

func main() {
	sendTest := flag.Bool("send", false, "send a sample regime alert to the configured chat")
	flag.Parse()

	fmt.Println("🔧 Validating Telegram alert configuration...")

	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Printf("⚠️  Warning: Could not load .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Telegram.BotToken == "" {
		fmt.Println("❌ TELEGRAM_BOT_TOKEN is not configured")
		os.Exit(1)
	}

	b, err := bot.New(cfg.Telegram.BotToken, bot.WithSkipGetMe())
	if err != nil {
		fmt.Printf("❌ Failed to create Telegram bot: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := validate(ctx, cfg.Telegram, b, *sendTest, os.Stdout); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
}

// validate checks the bot credentials and, when sendTest is set, delivers a sample alert.
func validate(ctx context.Context, cfg config.TelegramConfig, client telegramClient, sendTest bool, out io.Writer) error {
	if cfg.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not configured")
	}
	fmt.Fprintf(out, "✅ TELEGRAM_BOT_TOKEN is configured (length: %d)\n", len(cfg.BotToken))

	if cfg.ChatID == 0 {
		fmt.Fprintln(out, "⚠️  telegram.chat_id is not configured, regime alerts stay disabled")
	} else {
		fmt.Fprintf(out, "✅ telegram.chat_id is configured: %d\n", cfg.ChatID)
	}

	fmt.Fprintln(out, "🔍 Testing bot API connection...")
	botInfo, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	fmt.Fprintf(out, "✅ Bot API connection successful!\n")
	fmt.Fprintf(out, "   Bot Name: %s\n", botInfo.FirstName)
	fmt.Fprintf(out, "   Bot Username: @%s\n", botInfo.Username)
	fmt.Fprintf(out, "   Bot ID: %d\n", botInfo.ID)

	if sendTest {
		if cfg.ChatID == 0 {
			return errors.New("cannot send a sample alert without telegram.chat_id")
		}
		_, err := client.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    cfg.ChatID,
			Text:      services.FormatRegimeAlert(sampleAlert(time.Now().UTC())),
			ParseMode: tgmodels.ParseModeMarkdown,
		})
		if err != nil {
			return fmt.Errorf("failed to send sample alert: %w", err)
		}
		fmt.Fprintln(out, "✅ Sample regime alert delivered")
	}

	fmt.Fprintln(out, "\n🎉 All Telegram alert configuration checks passed!")
	return nil
}

func sampleAlert(now time.Time) models.RegimeAlert {
	return models.RegimeAlert{
		Symbol:            "BTCUSD",
		Regime:            models.RegimePreBreakoutTension,
		Confidence:        68,
		SessionTag:        models.SessionAt(now),
		ATRRatio:          0.92,
		BBWidthRatio:      0.71,
		RecommendedAction: models.RecommendedAction(models.RegimePreBreakoutTension),
		Timestamp:         now,
	}
}
