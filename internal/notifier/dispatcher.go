// Package notifier fans broadcast messages out to a set of chats with rate
// limiting and per-destination fallback.
package notifier

import (
	"context"

	"golang.org/x/time/rate"

	"herald/internal/transport"
	"herald/pkg/logx"
)

// Message is one broadcast payload. When PhotoURL is set the message is sent
// as a photo with Text as the caption; delivery falls back to plain text
// with the URL on top when the photo is rejected.
type Message struct {
	Text     string
	PhotoURL string
	Markup   any
	Silent   bool
}

// Dispatcher delivers broadcasts destination by destination. One failing
// chat never blocks the rest; errors are logged and skipped.
type Dispatcher struct {
	sink    transport.Sink
	limiter *rate.Limiter
	log     logx.Logger
}

// New builds a Dispatcher. perSecond bounds the outgoing send rate across
// all broadcasts (Telegram throttles bots around 30 msg/s globally and much
// lower per group).
func New(sink transport.Sink, perSecond float64, log logx.Logger) *Dispatcher {
	if perSecond <= 0 {
		perSecond = 20
	}
	return &Dispatcher{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		log:     log,
	}
}

// Broadcast sends msg to every chat in targets in order.
func (d *Dispatcher) Broadcast(ctx context.Context, targets []int64, msg Message) {
	for _, chatID := range targets {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
		if err := d.sendOne(ctx, chatID, msg); err != nil {
			d.log.Warn("broadcast send failed",
				logx.Int64("chat_id", chatID),
				logx.Err(err))
		}
	}
}

func (d *Dispatcher) sendOne(ctx context.Context, chatID int64, msg Message) error {
	to := transport.ChatTarget{ChatID: chatID}
	opt := &transport.SendOptions{
		ParseMode:          "HTML",
		Silent:             msg.Silent,
		ReplyMarkupAdapter: msg.Markup,
	}

	if msg.PhotoURL != "" {
		_, err := d.sink.SendPhoto(ctx, to, msg.PhotoURL, msg.Text, opt)
		if err == nil {
			return nil
		}
		d.log.Debug("photo send failed, falling back to link",
			logx.Int64("chat_id", chatID),
			logx.Err(err))
		_, err = d.sink.SendText(ctx, to, msg.PhotoURL+"\n\n"+msg.Text, opt)
		return err
	}

	_, err := d.sink.SendText(ctx, to, msg.Text, opt)
	return err
}
