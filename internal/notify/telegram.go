// Package notify delivers opportunity and degradation alerts over Telegram.
// Delivery runs off the caller's goroutine and retries on transient API
// failures; per-opportunity debouncing suppresses re-alerts until the edge
// moved enough to matter.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// sender is the slice of the bot API the notifier uses. Tests inject a fake.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier formats and sends alerts to the configured chats.
type Notifier struct {
	bot        sender
	chatIDs    []int64
	maxRetries int
	retryDelay time.Duration

	// minDelta suppresses re-alerts for a signature until net percent
	// moved at least this much since the last alert.
	minDelta float64

	mu       sync.Mutex
	lastSent map[string]float64

	inflight sync.WaitGroup
}

// New creates a notifier from configuration. Returns nil when Telegram is
// disabled; callers treat a nil notifier as a no-op.
func New(cfg config.TelegramConfig) (*Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newWithSender(bot, cfg), nil
}

func newWithSender(bot sender, cfg config.TelegramConfig) *Notifier {
	return &Notifier{
		bot:        bot,
		chatIDs:    cfg.ChatIDs,
		maxRetries: 3,
		retryDelay: time.Second,
		minDelta:   cfg.MinRenotifyDeltaPercent,
		lastSent:   make(map[string]float64),
	}
}

// NotifyOpportunities sends one message summarizing the cycle's surviving
// opportunities, skipping those whose edge barely moved since their last
// alert.
func (n *Notifier) NotifyOpportunities(opps []model.Opportunity) {
	if n == nil || len(opps) == 0 {
		return
	}

	fresh := n.filterMoved(opps)
	if len(fresh) == 0 {
		return
	}
	n.broadcast(formatOpportunities(fresh))
}

// NotifyDegradation reports a degraded quote source. The metrics layer has
// already debounced; this just formats and sends.
func (n *Notifier) NotifyDegradation(source, reason string, errorRate float64) {
	if n == nil {
		return
	}
	msg := fmt.Sprintf("⚠️ *Source degraded*\n%s: %s \\(error rate %s\\)",
		escapeMarkdownV2(source), escapeMarkdownV2(reason),
		escapeMarkdownV2(fmt.Sprintf("%.0f%%", errorRate*100)))
	n.broadcast(msg)
}

// filterMoved drops opportunities whose net percent is within minDelta of
// the value last alerted for the same (strategy, pair, venues) signature.
func (n *Notifier) filterMoved(opps []model.Opportunity) []model.Opportunity {
	n.mu.Lock()
	defer n.mu.Unlock()

	var fresh []model.Opportunity
	for _, o := range opps {
		sig := o.Strategy + "|" + o.Pair + "|" + o.BuyVenue + "|" + o.SellVenue
		last, seen := n.lastSent[sig]
		if seen && n.minDelta > 0 && abs(o.NetPercent-last) < n.minDelta {
			continue
		}
		n.lastSent[sig] = o.NetPercent
		fresh = append(fresh, o)
	}
	return fresh
}

// broadcast delivers off the caller's goroutine so retry sleeps against a
// flaky API never stretch the scan cycle.
func (n *Notifier) broadcast(text string) {
	for _, chatID := range n.chatIDs {
		n.inflight.Add(1)
		go func(chatID int64) {
			defer n.inflight.Done()
			n.sendWithRetry(chatID, text)
		}(chatID)
	}
}

func (n *Notifier) sendWithRetry(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		if _, err := n.bot.Send(msg); err == nil {
			return
		} else {
			lastErr = err
			time.Sleep(n.retryDelay * time.Duration(i+1))
		}
	}
	log.Error().Err(lastErr).Int64("chat_id", chatID).Msg("telegram send failed")
}

// Flush blocks until in-flight deliveries finish. Call before shutdown so
// the last cycle's alerts are not dropped. Nil-safe.
func (n *Notifier) Flush() {
	if n == nil {
		return
	}
	n.inflight.Wait()
}

func formatOpportunities(opps []model.Opportunity) string {
	var b strings.Builder
	b.WriteString("💰 *Arbitrage opportunities*\n\n")
	for i, o := range opps {
		fmt.Fprintf(&b, "%d\\. *%s* %s\n", i+1,
			escapeMarkdownV2(o.Pair), escapeMarkdownV2(string(o.Confidence)))
		fmt.Fprintf(&b, "   %s → %s\n",
			escapeMarkdownV2(o.BuyVenue), escapeMarkdownV2(o.SellVenue))
		fmt.Fprintf(&b, "   net %s \\(gross %s\\)\n\n",
			escapeMarkdownV2(fmt.Sprintf("%.2f%%", o.NetPercent)),
			escapeMarkdownV2(fmt.Sprintf("%.2f%%", o.GrossPercent)))
	}
	return b.String()
}

// escapeMarkdownV2 escapes Telegram MarkdownV2 special characters.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
