// Package channel defines the platform adapter contract and the pump that
// feeds adapter messages through the router.
package channel

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamforge/streambot/internal/router"
)

// Message is one inbound chat message, normalized across platforms.
type Message struct {
	ID        string
	Username  string
	ChannelID string
	Platform  string
	Content   string
	Timestamp time.Time
}

// Adapter connects one chat platform to the bot.
type Adapter interface {
	// Start connects and begins delivering messages on Incoming.
	Start(ctx context.Context) error

	// Stop disconnects and closes Incoming.
	Stop() error

	// Send delivers a reply to a platform channel.
	Send(channelID, text string) error

	// Incoming returns the inbound message stream.
	Incoming() <-chan *Message

	// Name returns the platform name.
	Name() string

	// IsEnabled reports whether the adapter is configured to run.
	IsEnabled() bool
}

// Handler routes one inbound message to a reply. *router.Router satisfies
// this.
type Handler interface {
	Route(ctx context.Context, text, username, channelID, platform string) *router.Reply
}

// Pump routes every message from the adapter, one goroutine per message, and
// sends replies back. It returns when the adapter's stream closes or the
// context is canceled.
func Pump(ctx context.Context, a Adapter, r Handler, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.Incoming():
			if !ok {
				return
			}
			go handle(ctx, a, r, msg, log)
		}
	}
}

func handle(ctx context.Context, a Adapter, r Handler, msg *Message, log zerolog.Logger) {
	reply := r.Route(ctx, msg.Content, msg.Username, msg.ChannelID, msg.Platform)
	if reply == nil {
		return
	}

	text := reply.Text
	if reply.Stream != nil {
		var b strings.Builder
		for frag := range reply.Stream {
			b.WriteString(frag)
		}
		text = b.String()
	}
	if text == "" {
		return
	}
	if err := a.Send(msg.ChannelID, text); err != nil {
		log.Error().Err(err).Str("platform", a.Name()).Str("channel", msg.ChannelID).Msg("send failed")
	}
}
