// Package discord adapts the Discord gateway (via bwmarrin/discordgo) to
// ports.Messaging, grounded on the teacher's internal/channels/discord
// session lifecycle (Identify intents, AddHandler, Open/Close) and message
// chunking-at-2000-chars behavior.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/clawbridge/internal/coordinator"
	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/safety"
)

const maxMessageLen = 2000

// Channel connects to Discord via the gateway and implements
// ports.Messaging.
type Channel struct {
	session      *discordgo.Session
	allowedUsers map[int64]bool
	coordinator  *coordinator.Coordinator
	botUserID    string
}

// New creates a Discord channel from a bot token.
func New(token string, allowedUsers []int64, coord *coordinator.Coordinator) (*Channel, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	allowed := make(map[int64]bool, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = true
	}

	return &Channel{session: session, allowedUsers: allowed, coordinator: coord}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")
	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	return c.session.Close()
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}
	userID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil || !c.allowedUsers[userID] {
		return
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}

	c.coordinator.Dispatch(context.Background(), coordinator.Inbound{
		ChatID:   m.ChannelID,
		UserID:   safety.UserID(userID),
		Username: m.Author.Username,
		Text:     content,
		UserMsgHandle: ports.MessageHandle{
			ChatID:    m.ChannelID,
			MessageID: m.ID,
		},
	})
}

// --- ports.Messaging ---

func (c *Channel) Capabilities() ports.Capabilities {
	return ports.Capabilities{SupportsEdit: true, MaxMsgLen: maxMessageLen}
}

func (c *Channel) SendText(ctx context.Context, chatID, body string, _ bool) (ports.MessageHandle, error) {
	var last *discordgo.Message
	for _, chunk := range splitChunks(body, maxMessageLen) {
		sent, err := c.session.ChannelMessageSend(chatID, chunk)
		if err != nil {
			return ports.MessageHandle{}, fmt.Errorf("send discord message: %w", err)
		}
		last = sent
	}
	if last == nil {
		return ports.MessageHandle{}, fmt.Errorf("empty message body")
	}
	return ports.MessageHandle{ChatID: chatID, MessageID: last.ID}, nil
}

func (c *Channel) EditText(_ context.Context, h ports.MessageHandle, body string, _ bool) error {
	_, err := c.session.ChannelMessageEdit(h.ChatID, h.MessageID, firstChunk(body, maxMessageLen))
	return err
}

func (c *Channel) Delete(_ context.Context, h ports.MessageHandle) error {
	return c.session.ChannelMessageDelete(h.ChatID, h.MessageID)
}

// SetReaction is a no-op: Discord reactions require a unicode emoji and a
// separate API call per message, so the status reactions the renderer
// requests when Progress.ReactionEnabled is set are dropped on Discord.
func (c *Channel) SetReaction(_ context.Context, _ ports.MessageHandle, _ string) error {
	return nil
}

func (c *Channel) SendKeyboard(ctx context.Context, chatID, prompt string, buttons []ports.Button) (ports.MessageHandle, error) {
	var b strings.Builder
	b.WriteString(prompt)
	for _, btn := range buttons {
		b.WriteString("\n- ")
		b.WriteString(btn.Text)
	}
	return c.SendText(ctx, chatID, b.String(), false)
}

func (c *Channel) DownloadFile(_ context.Context, ref string) (string, error) {
	return ref, nil
}

func (c *Channel) GetMe(_ context.Context) (string, error) {
	user, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

func (c *Channel) AnswerCallback(_ context.Context, _ string) error {
	return nil
}

func splitChunks(s string, max int) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	for len(s) > 0 {
		if len(s) <= max {
			chunks = append(chunks, s)
			break
		}
		cut := max
		if idx := strings.LastIndexByte(s[:max], '\n'); idx > max/2 {
			cut = idx + 1
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	return chunks
}

func firstChunk(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
