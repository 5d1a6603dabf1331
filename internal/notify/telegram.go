// Package notify runs the Telegram bot: an on-demand /progress command, a
// /backup command, and the scheduled daily progress digest.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"watchlog/internal/models"
	"watchlog/internal/service"
)

// Dependencies wires the services the bot commands need.
type Dependencies struct {
	Tracker   *service.EpisodeTracker
	BackupSvc *service.BackupService
}

// TelegramBot answers progress commands and pushes the daily digest to a
// single chat mapped to one tracked user.
type TelegramBot struct {
	bot    *tele.Bot
	chatID int64
	userID string
	deps   Dependencies
}

// NewTelegramBot creates the bot and registers its command handlers. chatID
// is the conversation that receives digests; userID is the tracked user the
// digest reports on.
func NewTelegramBot(token string, chatID int64, userID string, deps Dependencies) (*TelegramBot, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	tb := &TelegramBot{
		bot:    b,
		chatID: chatID,
		userID: userID,
		deps:   deps,
	}

	b.Handle("/progress", tb.handleProgress)
	b.Handle("/backup", tb.handleBackup)

	return tb, nil
}

// Start begins long polling. Blocking.
func (t *TelegramBot) Start() {
	t.bot.Start()
}

// Stop stops long polling.
func (t *TelegramBot) Stop() {
	t.bot.Stop()
}

func (t *TelegramBot) handleProgress(c tele.Context) error {
	if c.Chat().ID != t.chatID {
		return nil
	}
	items, err := t.deps.Tracker.WatchProgressItems(context.Background(), t.userID)
	if err != nil {
		return c.Send(fmt.Sprintf("Failed to load progress: %v", err))
	}
	return c.Send(FormatProgressDigest(items), tele.ModeHTML)
}

func (t *TelegramBot) handleBackup(c tele.Context) error {
	if c.Chat().ID != t.chatID {
		return nil
	}
	path, err := t.deps.BackupSvc.Backup()
	if err != nil {
		return c.Send(fmt.Sprintf("Backup failed: %v", err))
	}
	return c.Send(fmt.Sprintf("Backup created: %s", path))
}

// SendDailyReport pushes the progress digest to the configured chat. It
// implements service.ReportSender for the scheduler.
func (t *TelegramBot) SendDailyReport() error {
	items, err := t.deps.Tracker.WatchProgressItems(context.Background(), t.userID)
	if err != nil {
		return fmt.Errorf("failed to build progress digest: %w", err)
	}
	if _, err := t.bot.Send(tele.ChatID(t.chatID), FormatProgressDigest(items), tele.ModeHTML); err != nil {
		return fmt.Errorf("failed to send progress digest: %w", err)
	}
	log.Printf("Progress digest sent to chat %d", t.chatID)
	return nil
}

// FormatProgressDigest formats the dashboard items into a digest message.
// Exported for testing purposes.
func FormatProgressDigest(items []models.WatchProgressItem) string {
	var sb strings.Builder
	sb.WriteString("📺 <b>Watch progress</b>\n\n")

	if len(items) == 0 {
		sb.WriteString("Nothing in progress. Go watch something! 🎬")
		return sb.String()
	}

	for i, item := range items {
		sb.WriteString(fmt.Sprintf("%d. <b>%s</b> — %.0f%%", i+1, item.TVShowName, item.Percentage))
		if item.TimeRemaining > 0 {
			sb.WriteString(fmt.Sprintf(" (~%s left)", formatMinutes(item.TimeRemaining)))
		}
		sb.WriteString("\n")

		switch item.NextEpisodeState {
		case models.NextStateKnown:
			if item.NextEpisode != nil {
				sb.WriteString(fmt.Sprintf("   ▶️ Next: S%02dE%02d %s\n", item.NextEpisode.Season, item.NextEpisode.Episode, item.NextEpisode.Title))
			}
		case models.NextStateNone:
			sb.WriteString("   ✅ Caught up\n")
		}

		if i < len(items)-1 {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func formatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}
