package notify

import (
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.mu.Lock()
		f.sent = append(f.sent, m.Text)
		f.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type senderFunc func(c tgbotapi.Chattable) (tgbotapi.Message, error)

func (f senderFunc) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) { return f(c) }

func testNotifier(minDelta float64) (*Notifier, *fakeSender) {
	fake := &fakeSender{}
	n := newWithSender(fake, config.TelegramConfig{
		Enabled:                 true,
		ChatIDs:                 []int64{1},
		MinRenotifyDeltaPercent: minDelta,
	})
	n.retryDelay = 0
	return n, fake
}

func opp(net float64) model.Opportunity {
	return model.Opportunity{
		Strategy:   model.StrategyCrossSpot,
		Pair:       "BTC/USDT",
		BuyVenue:   "binance",
		SellVenue:  "kraken",
		NetPercent: net,
		Confidence: model.ConfidenceMedia,
	}
}

func TestNotifyOpportunitiesSendsOnce(t *testing.T) {
	n, fake := testNotifier(0)
	n.NotifyOpportunities([]model.Opportunity{opp(1.5)})
	n.Flush()

	sent := fake.texts()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "BTC/USDT")
	assert.Contains(t, sent[0], "binance")
}

func TestRenotifyDeltaSuppressesUnmovedEdge(t *testing.T) {
	n, fake := testNotifier(0.5)

	n.NotifyOpportunities([]model.Opportunity{opp(1.5)})
	// Moved only 0.2 since the last alert: suppressed.
	n.NotifyOpportunities([]model.Opportunity{opp(1.7)})
	n.Flush()
	assert.Len(t, fake.texts(), 1)

	// Moved 0.6 from the last *sent* value: alerts again.
	n.NotifyOpportunities([]model.Opportunity{opp(2.1)})
	n.Flush()
	assert.Len(t, fake.texts(), 2)
}

// A chat that hangs mid-delivery must not hold up the scan cycle.
func TestDeliveryRunsOffCallerPath(t *testing.T) {
	release := make(chan struct{})
	n := newWithSender(senderFunc(func(tgbotapi.Chattable) (tgbotapi.Message, error) {
		<-release
		return tgbotapi.Message{}, nil
	}), config.TelegramConfig{Enabled: true, ChatIDs: []int64{1}})

	done := make(chan struct{})
	go func() {
		n.NotifyOpportunities([]model.Opportunity{opp(1.5)})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked on delivery")
	}
	close(release)
	n.Flush()
}

func TestNilNotifierIsNoOp(t *testing.T) {
	var n *Notifier
	n.NotifyOpportunities([]model.Opportunity{opp(1.5)})
	n.NotifyDegradation("binance", "high_error_rate", 0.7)
}

func TestEscapeMarkdownV2(t *testing.T) {
	escaped := escapeMarkdownV2("BTC/USDT (1.5%)")
	assert.Equal(t, `BTC/USDT \(1\.5%\)`, escaped)
}
