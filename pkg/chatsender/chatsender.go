// Package chatsender implements the chat transport: a single process-wide
// Telegram bot connection with message splitting and bounded retry/backoff.
package chatsender

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fleetmon/fleetmon/pkg/config"
)

const (
	maxMessageLen = 3800
	maxAttempts   = 3
	backoffStart  = 600 * time.Millisecond
	backoffCap    = 5 * time.Second
)

// Sender owns the bot connection. A nil bot (no token configured) makes
// Send a silent no-op, matching the source's "skip all messages" fallback.
type Sender struct {
	bot *tgbotapi.BotAPI
}

// New connects the bot if cfg.Telegram.Token is set.
func New(cfg *config.Config) (*Sender, error) {
	if cfg.Telegram.Token == "" {
		log.Println("💬 telegram token not configured; chat sender will skip all messages")
		return &Sender{}, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	return &Sender{bot: bot}, nil
}

// Send delivers text to chatID, splitting it across multiple messages if it
// exceeds the safe HTML length and retrying transient failures.
func (s *Sender) Send(chatID int64, text string) error {
	if s.bot == nil {
		return nil
	}

	for _, part := range splitMessage(text, maxMessageLen) {
		if err := s.sendOne(chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) sendOne(chatID int64, text string) error {
	attempt := 0
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffStart
	bo.MaxInterval = backoffCap
	bo.Multiplier = 2

	for {
		attempt++
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		_, err := s.bot.Send(msg)
		if err == nil {
			return nil
		}

		if retryAfter, ok := retryAfterSeconds(err); ok {
			log.Printf("💬 chat %d throttled, retrying after %ds", chatID, retryAfter)
			time.Sleep(time.Duration(retryAfter) * time.Second)
			continue
		}

		if isForbidden(err) {
			log.Printf("💬 chat %d forbidden (bot blocked); abandoning", chatID)
			return err
		}

		if isMessageTooLong(err) && len(text) > 1 {
			log.Printf("💬 chat %d message too long; resplitting", chatID)
			half := len(text) / 2
			if splitErr := s.Send(chatID, text[:half]); splitErr != nil {
				return splitErr
			}
			return s.Send(chatID, text[half:])
		}

		if attempt >= maxAttempts {
			log.Printf("💬 chat %d send failed after %d attempts: %v", chatID, attempt, err)
			return err
		}

		time.Sleep(bo.NextBackOff())
	}
}

// splitMessage breaks text at newline boundaries into chunks no longer than
// limit, falling back to a hard slice when a single line still overflows.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		if current.Len() > 0 && current.Len()+len(line)+1 > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}

		for len(line) > limit {
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}

		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

func retryAfterSeconds(err error) (int, bool) {
	tgErr, ok := err.(*tgbotapi.Error)
	if !ok || tgErr.ResponseParameters.RetryAfter == 0 {
		return 0, false
	}
	return tgErr.ResponseParameters.RetryAfter, true
}

func isForbidden(err error) bool {
	tgErr, ok := err.(*tgbotapi.Error)
	return ok && tgErr.Code == 403
}

func isMessageTooLong(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "message is too long")
}
