// Package console is a local stdin/stdout adapter for talking to the bot
// without any platform account.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/streamforge/streambot/internal/channel"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0d7377")).
			Bold(true)

	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0d7377"))

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f8f7f4")).
			Bold(true)
)

// Adapter reads lines from in and prints replies to out. Every line becomes
// a message from user "console" in channel "console".
type Adapter struct {
	in       io.Reader
	out      io.Writer
	incoming chan *channel.Message
	log      zerolog.Logger
}

func New(log zerolog.Logger) *Adapter {
	return &Adapter{
		in:       os.Stdin,
		out:      os.Stdout,
		incoming: make(chan *channel.Message, 10),
		log:      log,
	}
}

func (a *Adapter) Name() string    { return "console" }
func (a *Adapter) IsEnabled() bool { return true }

func (a *Adapter) Start(ctx context.Context) error {
	fmt.Fprintln(a.out, bannerStyle.Render("streambot console. Type a message, or 'exit' to quit."))

	go func() {
		defer close(a.incoming)
		scanner := bufio.NewScanner(a.in)
		for {
			fmt.Fprint(a.out, promptStyle.Render("you> ")+" ")
			if !scanner.Scan() {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return
			}
			msg := &channel.Message{
				ID:        uuid.NewString(),
				Username:  "console",
				ChannelID: "console",
				Platform:  "console",
				Content:   line,
				Timestamp: time.Now(),
			}
			select {
			case a.incoming <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (a *Adapter) Stop() error { return nil }

func (a *Adapter) Send(channelID, text string) error {
	_, err := fmt.Fprintln(a.out, botStyle.Render("bot> "+text))
	return err
}

func (a *Adapter) Incoming() <-chan *channel.Message {
	return a.incoming
}
