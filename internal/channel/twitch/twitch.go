// Package twitch bridges Twitch chat to the bot over the IRC websocket
// gateway.
package twitch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/streamforge/streambot/internal/channel"
)

// DefaultGatewayURL is Twitch's IRC-over-websocket endpoint.
const DefaultGatewayURL = "wss://irc-ws.chat.twitch.tv:443"

// Adapter is the Twitch platform adapter. It speaks the minimal IRC subset
// Twitch chat requires: PASS/NICK login, JOIN, PRIVMSG, and PING/PONG
// keepalives.
type Adapter struct {
	gatewayURL string
	token      string
	nick       string
	channelKey string
	incoming   chan *channel.Message
	log        zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// New returns a Twitch adapter for one channel. token is an OAuth token
// ("oauth:..." prefix added if missing).
func New(token, nick, chatChannel string, log zerolog.Logger) *Adapter {
	if token != "" && !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	return &Adapter{
		gatewayURL: DefaultGatewayURL,
		token:      token,
		nick:       strings.ToLower(nick),
		channelKey: "#" + strings.TrimPrefix(strings.ToLower(chatChannel), "#"),
		incoming:   make(chan *channel.Message, 100),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (a *Adapter) Name() string { return "twitch" }

func (a *Adapter) IsEnabled() bool {
	return a.token != "" && a.nick != "" && a.channelKey != "#"
}

func (a *Adapter) Start(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("twitch dial: %w", err)
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	for _, line := range []string{
		"PASS " + a.token,
		"NICK " + a.nick,
		"JOIN " + a.channelKey,
	} {
		if err := a.write(line); err != nil {
			conn.Close()
			return fmt.Errorf("twitch login: %w", err)
		}
	}
	a.log.Info().Str("channel", a.channelKey).Msg("twitch connected")

	go a.readLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
		case <-a.done:
		}
		conn.Close()
	}()
	return nil
}

func (a *Adapter) readLoop(ctx context.Context) {
	defer close(a.incoming)
	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				a.log.Error().Err(err).Msg("twitch read failed")
			}
			return
		}
		for _, raw := range strings.Split(string(data), "\r\n") {
			a.handleLine(strings.TrimSpace(raw))
		}
	}
}

func (a *Adapter) handleLine(line string) {
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "PING") {
		if err := a.write("PONG" + strings.TrimPrefix(line, "PING")); err != nil {
			a.log.Warn().Err(err).Msg("pong failed")
		}
		return
	}

	username, chatChannel, text, ok := parsePrivmsg(line)
	if !ok || chatChannel != a.channelKey {
		return
	}
	if strings.EqualFold(username, a.nick) {
		return
	}
	a.incoming <- &channel.Message{
		ID:        uuid.NewString(),
		Username:  username,
		ChannelID: strings.TrimPrefix(chatChannel, "#"),
		Platform:  "twitch",
		Content:   text,
		Timestamp: time.Now(),
	}
}

// parsePrivmsg extracts (username, channel, text) from an IRC PRIVMSG line
// of the form ":nick!user@host PRIVMSG #channel :message text".
func parsePrivmsg(line string) (username, chatChannel, text string, ok bool) {
	// Strip IRCv3 tags if present.
	if strings.HasPrefix(line, "@") {
		sp := strings.Index(line, " ")
		if sp < 0 {
			return "", "", "", false
		}
		line = line[sp+1:]
	}
	if !strings.HasPrefix(line, ":") {
		return "", "", "", false
	}

	rest := line[1:]
	sp := strings.Index(rest, " ")
	if sp < 0 {
		return "", "", "", false
	}
	prefix, rest := rest[:sp], rest[sp+1:]

	if !strings.HasPrefix(rest, "PRIVMSG ") {
		return "", "", "", false
	}
	rest = strings.TrimPrefix(rest, "PRIVMSG ")

	colon := strings.Index(rest, " :")
	if colon < 0 {
		return "", "", "", false
	}
	chatChannel = strings.TrimSpace(rest[:colon])
	text = rest[colon+2:]

	username = prefix
	if bang := strings.Index(prefix, "!"); bang >= 0 {
		username = prefix[:bang]
	}
	if username == "" || chatChannel == "" {
		return "", "", "", false
	}
	return username, chatChannel, text, true
}

func (a *Adapter) write(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return fmt.Errorf("twitch not connected")
	}
	return a.conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n"))
}

func (a *Adapter) Stop() error {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	return nil
}

// Send posts a message to the channel. channelID is accepted for interface
// symmetry; a Twitch adapter is bound to one channel.
func (a *Adapter) Send(channelID, text string) error {
	target := a.channelKey
	if channelID != "" {
		target = "#" + strings.TrimPrefix(channelID, "#")
	}
	// Twitch caps chat messages at 500 characters.
	for _, part := range splitMessage(text, 500) {
		if err := a.write("PRIVMSG " + target + " :" + part); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Incoming() <-chan *channel.Message {
	return a.incoming
}

// splitMessage cuts text into pieces of at most limit characters, breaking
// on spaces where possible. Newlines always break; IRC lines cannot carry
// them.
func splitMessage(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > limit {
			cut := strings.LastIndex(line[:limit], " ")
			if cut <= 0 {
				cut = limit
			}
			out = append(out, strings.TrimSpace(line[:cut]))
			line = strings.TrimSpace(line[cut:])
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
