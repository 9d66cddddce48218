// Package notification provides operator-facing alerts for trading
// activity.
package notification

import (
	"fmt"
	"time"

	"github.com/volbreak/volbreak/core"
	tb "gopkg.in/tucnak/telebot.v2"
)

const pollingTimeout = 10 * time.Second

// Telegram implements core.Notifier. It only pushes messages; it
// accepts no commands.
type Telegram struct {
	client *tb.Bot
	users  []int64
	log    core.Logger
}

func NewTelegram(token string, users []int64, log core.Logger) (*Telegram, error) {
	client, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: &tb.LongPoller{Timeout: pollingTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}

	return &Telegram{
		client: client,
		users:  users,
		log:    log.WithField("component", "telegram"),
	}, nil
}

// Notify sends a message to all configured users.
func (t *Telegram) Notify(text string) {
	for _, user := range t.users {
		if _, err := t.client.Send(&tb.User{ID: user}, text); err != nil {
			t.log.WithError(err).Error("telegram send failed")
		}
	}
}

// OnTrade announces a closed trade with its PnL.
func (t *Telegram) OnTrade(trade core.Trade) {
	emoji := "🟢"
	if trade.PnLUSD < 0 {
		emoji = "🔴"
	}
	t.Notify(fmt.Sprintf("%s %s", emoji, trade))
}

// OnError forwards errors to the operator.
func (t *Telegram) OnError(err error) {
	t.Notify(fmt.Sprintf("⚠️ error: %v", err))
}
