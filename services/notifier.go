package services

import (
	"context"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Notifier tells an operator about events that need a human: accepted
// withdrawals are paid out by hand, stuck purchases are resolved by hand.
// Notify must not block on the network.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) {}

// TelegramNotifier queues messages for an operator chat and sends them from
// a single background goroutine started with Run.
type TelegramNotifier struct {
	bot    *telego.Bot
	chatID int64
	queue  chan string
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}
	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		queue:  make(chan string, 256),
	}, nil
}

func (n *TelegramNotifier) Notify(_ context.Context, text string) {
	select {
	case n.queue <- text:
	default:
		log.WithField("text", text).Warn("[NOTIFY] queue full, dropping operator message")
	}
}

// Run sends queued messages until ctx is cancelled.
func (n *TelegramNotifier) Run(ctx context.Context) {
	log.Info("[NOTIFY] Telegram operator notifier running")
	for {
		select {
		case <-ctx.Done():
			log.Info("[NOTIFY] Telegram operator notifier stopped")
			return
		case text := <-n.queue:
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, err := n.bot.SendMessage(sendCtx, tu.Message(tu.ID(n.chatID), text))
			cancel()
			if err != nil {
				log.WithError(err).Warn("[NOTIFY] failed to send operator message")
			}
		}
	}
}
