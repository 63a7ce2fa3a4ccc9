// Package telegram adapts the Telegram Bot API (via telego long polling)
// to ports.Messaging and routes inbound updates into the Concurrency
// Coordinator, grounded on the teacher's internal/channels/telegram
// long-polling lifecycle (bot construction, UpdatesViaLongPolling loop,
// menu-command sync with retry, cancel-and-wait Stop).
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/clawbridge/internal/coordinator"
	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/safety"
)

// Channel connects to Telegram via the Bot API using long polling and
// implements ports.Messaging for the renderer and coordinator.
type Channel struct {
	bot          *telego.Bot
	allowedUsers map[int64]bool
	coordinator  *coordinator.Coordinator

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Telegram channel. allowedUsers enforces the same allowlist
// the Safety Kernel checks, rejected here too so unauthorized senders never
// reach the Coordinator.
func New(token string, allowedUsers []int64, coord *coordinator.Coordinator) (*Channel, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	allowed := make(map[int64]bool, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = true
	}

	return &Channel{bot: bot, allowedUsers: allowed, coordinator: coord}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				switch {
				case update.Message != nil:
					c.handleMessage(pollCtx, update.Message)
				case update.CallbackQuery != nil:
					c.handleCallbackQuery(pollCtx, update.CallbackQuery)
				}
			}
		}
	}()

	return nil
}

// Stop cancels the long polling context and waits for the poll goroutine
// to exit so Telegram releases the getUpdates lock before a restart.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || !c.allowedUsers[msg.From.ID] {
		return
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	var groupID string
	if msg.MediaGroupID != "" {
		groupID = msg.MediaGroupID
	}

	attachmentPath, attachmentKind := c.downloadAttachment(ctx, msg)

	c.coordinator.Dispatch(ctx, coordinator.Inbound{
		ChatID:   strconv.FormatInt(msg.Chat.ID, 10),
		UserID:   safety.UserID(msg.From.ID),
		Username: msg.From.Username,
		Text:     text,
		UserMsgHandle: ports.MessageHandle{
			ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
			MessageID: strconv.Itoa(msg.MessageID),
		},
		MediaGroupID:   groupID,
		AttachmentPath: attachmentPath,
		AttachmentKind: attachmentKind,
	})
}

// downloadAttachment classifies a voice note, photo (sanitized as "image")
// or document attachment (PDF, zip/tar archive) and downloads it locally,
// returning ("", "") for any other message shape.
func (c *Channel) downloadAttachment(ctx context.Context, msg *telego.Message) (path, kind string) {
	var fileID, name string
	switch {
	case msg.Voice != nil:
		fileID, kind = msg.Voice.FileID, "voice"
	case len(msg.Photo) > 0:
		// Highest-resolution variant is last in Telegram's size-ordered list.
		fileID, kind = msg.Photo[len(msg.Photo)-1].FileID, "image"
	case msg.Document != nil:
		fileID, name = msg.Document.FileID, msg.Document.FileName
		kind = classifyDocument(name, msg.Document.MimeType)
	}
	if fileID == "" || kind == "" {
		return "", ""
	}

	localPath, err := c.DownloadFile(ctx, fileID)
	if err != nil {
		slog.Warn("telegram: download attachment failed", "error", err)
		return "", ""
	}

	if kind == "image" {
		sanitized, err := sanitizeImage(localPath)
		if err != nil {
			slog.Warn("telegram: sanitize image failed, using original", "error", err)
			return localPath, kind
		}
		return sanitized, kind
	}
	return localPath, kind
}

func classifyDocument(name, mimeType string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".pdf"), mimeType == "application/pdf":
		return "pdf"
	case strings.HasSuffix(lower, ".zip"), strings.HasSuffix(lower, ".tar"),
		strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return "archive"
	default:
		return ""
	}
}

func (c *Channel) handleCallbackQuery(ctx context.Context, cb *telego.CallbackQuery) {
	if cb.From.ID == 0 || !c.allowedUsers[cb.From.ID] {
		return
	}
	_ = c.bot.AnswerCallbackQuery(ctx, tu.CallbackQuery(cb.ID))
}

// --- ports.Messaging ---

func (c *Channel) Capabilities() ports.Capabilities {
	return ports.Capabilities{SupportsReactions: true, SupportsEdit: true, SupportsInlineKeyboards: true, MaxMsgLen: 4096}
}

func (c *Channel) SendText(ctx context.Context, chatID, body string, html bool) (ports.MessageHandle, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return ports.MessageHandle{}, err
	}
	msg := tu.Message(tu.ID(id), body)
	if html {
		msg.ParseMode = telego.ModeHTML
	}
	sent, err := c.bot.SendMessage(ctx, msg)
	if err != nil {
		return ports.MessageHandle{}, err
	}
	return ports.MessageHandle{ChatID: chatID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

func (c *Channel) EditText(ctx context.Context, h ports.MessageHandle, body string, html bool) error {
	id, err := parseChatID(h.ChatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(h.MessageID)
	if err != nil {
		return err
	}
	params := &telego.EditMessageTextParams{
		ChatID:    tu.ID(id),
		MessageID: msgID,
		Text:      body,
	}
	if html {
		params.ParseMode = telego.ModeHTML
	}
	_, err = c.bot.EditMessageText(ctx, params)
	return err
}

func (c *Channel) Delete(ctx context.Context, h ports.MessageHandle) error {
	id, err := parseChatID(h.ChatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(h.MessageID)
	if err != nil {
		return err
	}
	return c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.ID(id), MessageID: msgID})
}

func (c *Channel) SetReaction(ctx context.Context, h ports.MessageHandle, emoji string) error {
	id, err := parseChatID(h.ChatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(h.MessageID)
	if err != nil {
		return err
	}
	return c.bot.SetMessageReaction(ctx, &telego.SetMessageReactionParams{
		ChatID:    tu.ID(id),
		MessageID: msgID,
		Reaction:  []telego.ReactionType{&telego.ReactionTypeEmoji{Type: telego.ReactionEmoji, Emoji: emoji}},
	})
}

func (c *Channel) SendKeyboard(ctx context.Context, chatID, prompt string, buttons []ports.Button) (ports.MessageHandle, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return ports.MessageHandle{}, err
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []telego.InlineKeyboardButton{tu.InlineKeyboardButton(b.Text).WithCallbackData(b.Data)})
	}
	msg := tu.Message(tu.ID(id), prompt).WithReplyMarkup(tu.InlineKeyboard(rows...))
	sent, err := c.bot.SendMessage(ctx, msg)
	if err != nil {
		return ports.MessageHandle{}, err
	}
	return ports.MessageHandle{ChatID: chatID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

// DownloadFile resolves a Telegram file_id to its CDN URL and fetches it
// into a local temp file, per ports.Messaging's "localPath" contract.
func (c *Channel) DownloadFile(ctx context.Context, ref string) (string, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: ref})
	if err != nil {
		return "", fmt.Errorf("telegram: get file: %w", err)
	}
	url := c.bot.FileDownloadURL(file.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("telegram: build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram: download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telegram: download file: status %d", resp.StatusCode)
	}

	dst, err := os.CreateTemp("", "clawbridge-tg-*-"+filepath.Base(file.FilePath))
	if err != nil {
		return "", fmt.Errorf("telegram: create temp file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return "", fmt.Errorf("telegram: write temp file: %w", err)
	}
	return dst.Name(), nil
}

func (c *Channel) GetMe(ctx context.Context) (string, error) {
	return c.bot.Username(), nil
}

func (c *Channel) AnswerCallback(ctx context.Context, id string) error {
	return c.bot.AnswerCallbackQuery(ctx, tu.CallbackQuery(id))
}

func parseChatID(chatIDStr string) (int64, error) {
	return strconv.ParseInt(chatIDStr, 10, 64)
}
