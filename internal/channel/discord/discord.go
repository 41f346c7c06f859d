// Package discord bridges Discord to the bot through discordgo.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/streamforge/streambot/internal/channel"
	"github.com/streamforge/streambot/internal/memory"
)

// Adapter is the Discord platform adapter.
type Adapter struct {
	token    string
	channels map[string]bool
	session  *discordgo.Session
	incoming chan *channel.Message
	log      zerolog.Logger
}

// New returns a Discord adapter. channels, when non-empty, restricts which
// channel IDs the bot listens to.
func New(token string, channels []string, log zerolog.Logger) *Adapter {
	allow := make(map[string]bool, len(channels))
	for _, c := range channels {
		allow[c] = true
	}
	return &Adapter{
		token:    token,
		channels: allow,
		incoming: make(chan *channel.Message, 100),
		log:      log,
	}
}

func (a *Adapter) Name() string { return "discord" }

func (a *Adapter) IsEnabled() bool { return a.token != "" }

func (a *Adapter) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	a.session = session

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.Bot || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
			return
		}
		if len(a.channels) > 0 && !a.channels[m.ChannelID] {
			return
		}
		a.incoming <- &channel.Message{
			ID:        m.ID,
			Username:  m.Author.Username,
			ChannelID: m.ChannelID,
			Platform:  "discord",
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	a.log.Info().Msg("discord connected")

	go func() {
		<-ctx.Done()
		session.Close()
	}()
	return nil
}

func (a *Adapter) Stop() error {
	var err error
	if a.session != nil {
		err = a.session.Close()
	}
	close(a.incoming)
	return err
}

func (a *Adapter) Send(channelID, text string) error {
	_, err := a.session.ChannelMessageSend(channelID, text)
	return err
}

func (a *Adapter) Incoming() <-chan *channel.Message {
	return a.incoming
}

// FetchHistory pulls up to limit recent messages from a channel for memory
// import, skipping bot-authored turns.
func (a *Adapter) FetchHistory(channelID string, limit int) ([]memory.ImportedMessage, error) {
	if a.session == nil {
		return nil, fmt.Errorf("discord session not started")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	msgs, err := a.session.ChannelMessages(channelID, limit, "", "", "")
	if err != nil {
		return nil, fmt.Errorf("fetch channel history: %w", err)
	}

	out := make([]memory.ImportedMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Author == nil || m.Author.Bot || m.Content == "" {
			continue
		}
		out = append(out, memory.ImportedMessage{
			Content:   m.Content,
			Username:  m.Author.Username,
			Platform:  "discord",
			ChannelID: channelID,
		})
	}
	return out, nil
}
