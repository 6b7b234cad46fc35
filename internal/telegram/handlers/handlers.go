package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/codex-k8s/telegram-poller/internal/i18n"
	"github.com/codex-k8s/telegram-poller/internal/polling"
	"github.com/codex-k8s/telegram-poller/internal/telegram/shared"
)

const (
	// CommandStart greets the user.
	CommandStart = "start"
	// CommandHelp lists commands.
	CommandHelp = "help"
	// CommandStatus reports the polling state.
	CommandStatus = "status"
)

// Bot is the part of the Bot API the handler talks to. *telego.Bot implements it.
type Bot interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, reader io.Reader, filename, contentType, language string) (string, error)
}

// StatusSource exposes the polling state for /status.
type StatusSource interface {
	State() polling.State
}

// Downloader fetches a file by URL.
type Downloader func(url string) ([]byte, error)

// Handler processes Telegram updates. It is the processor behind both update sources.
type Handler struct {
	bot         Bot
	messages    map[string]i18n.Messages
	defaultLang string
	allowed     map[int64]struct{}
	transcriber Transcriber
	download    Downloader
	limiter     *rate.Limiter
	status      StatusSource
	log         *slog.Logger
}

// NewHandler creates a new update handler. An empty allowedChats list accepts every chat and a nil
// limiter disables reply throttling.
func NewHandler(bot Bot, messages map[string]i18n.Messages, defaultLang string, allowedChats []int64, transcriber Transcriber, limiter *rate.Limiter, log *slog.Logger) *Handler {
	allowed := make(map[int64]struct{}, len(allowedChats))
	for _, id := range allowedChats {
		allowed[id] = struct{}{}
	}
	return &Handler{
		bot:         bot,
		messages:    messages,
		defaultLang: defaultLang,
		allowed:     allowed,
		transcriber: transcriber,
		download:    tu.DownloadFile,
		limiter:     limiter,
		log:         log,
	}
}

// SetStatusSource attaches the poller state used by /status. Without one the bot reports webhook mode.
func (h *Handler) SetStatusSource(source StatusSource) {
	h.status = source
}

// ProcessUpdate handles a single update. Errors are returned only when Telegram rejected a reply,
// so the polling loop can treat the update as failed.
func (h *Handler) ProcessUpdate(ctx context.Context, update telego.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return h.handleMessage(ctx, update.Message)
	case update.EditedMessage != nil:
		return h.handleMessage(ctx, update.EditedMessage)
	default:
		h.log.Debug("Skipping update without handler", "update_id", update.UpdateID)
		return nil
	}
}

func (h *Handler) handleCallback(ctx context.Context, query *telego.CallbackQuery) error {
	msg := h.messageFor(shared.UserLang(&query.From))
	text := msg.CallbackAck
	if query.Message != nil && !h.allowedChat(query.Message.GetChat().ID) {
		text = msg.InvalidChat
	}
	if err := h.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
		Text:            text,
	}); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

func (h *Handler) handleMessage(ctx context.Context, message *telego.Message) error {
	if !h.allowedChat(message.Chat.ID) {
		h.log.Debug("Ignoring message from chat outside the allow list", "chat_id", message.Chat.ID)
		return nil
	}
	msg := h.messageFor(shared.UserLang(message.From))

	switch {
	case strings.HasPrefix(message.Text, "/"):
		return h.reply(ctx, message, h.commandReply(msg, message.Text))
	case strings.TrimSpace(message.Text) != "":
		return h.reply(ctx, message, shared.Bold(msg.EchoPrefix)+": "+shared.EscapeHTML(message.Text))
	case message.Voice != nil:
		return h.handleVoice(ctx, message, msg)
	default:
		return h.reply(ctx, message, shared.EscapeHTML(msg.Unsupported))
	}
}

func (h *Handler) commandReply(msg i18n.Messages, text string) string {
	switch parseCommand(text) {
	case CommandStart:
		return shared.EscapeHTML(msg.Welcome)
	case CommandHelp:
		return shared.EscapeHTML(msg.Help)
	case CommandStatus:
		return h.statusText(msg)
	default:
		return shared.EscapeHTML(msg.UnknownCommand)
	}
}

func (h *Handler) statusText(msg i18n.Messages) string {
	lines := []string{shared.Bold(msg.StatusTitle)}
	if h.status == nil {
		lines = append(lines, shared.EscapeHTML(msg.StatusWebhook))
		return strings.Join(lines, "\n")
	}

	state := h.status.State()
	mode := msg.StatusInactive
	if state.Active {
		mode = msg.StatusActive
	}
	lastUpdate := msg.StatusNever
	if !state.LastUpdate.IsZero() {
		lastUpdate = state.LastUpdate.UTC().Format(time.RFC3339)
	}
	lines = append(lines,
		shared.EscapeHTML(mode),
		shared.Bold(msg.StatusOffset)+": "+shared.Code(strconv.Itoa(state.Offset)),
		shared.Field(msg.StatusLastUpdate, lastUpdate),
	)
	return strings.Join(lines, "\n")
}

func (h *Handler) handleVoice(ctx context.Context, message *telego.Message, msg i18n.Messages) error {
	text, err := h.transcribeVoice(ctx, message.Voice, shared.UserLang(message.From))
	switch {
	case errors.Is(err, errTranscriberDisabled):
		return h.reply(ctx, message, shared.EscapeHTML(msg.VoiceDisabled))
	case err != nil:
		h.log.Error("Voice transcription failed", "error", err, "chat_id", message.Chat.ID)
		return h.reply(ctx, message, shared.EscapeHTML(msg.TranscriptionFailed))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return h.reply(ctx, message, shared.EscapeHTML(msg.TranscriptionFailed))
	}
	return h.reply(ctx, message, shared.Bold(msg.TranscriptionPrefix)+": "+shared.EscapeHTML(text))
}

var errTranscriberDisabled = errors.New("transcriber disabled")

func (h *Handler) transcribeVoice(ctx context.Context, voice *telego.Voice, lang string) (string, error) {
	if h.transcriber == nil {
		return "", errTranscriberDisabled
	}
	file, err := h.bot.GetFile(ctx, &telego.GetFileParams{FileID: voice.FileID})
	if err != nil {
		return "", err
	}
	data, err := h.download(h.bot.FileDownloadURL(file.FilePath))
	if err != nil {
		return "", err
	}
	audio, err := normalizeVoiceAudio(ctx, data, voice.MimeType, file.FilePath)
	if err != nil {
		return "", err
	}
	return h.transcriber.Transcribe(ctx, audio.reader(), audio.name, audio.mimeType, lang)
}

func (h *Handler) reply(ctx context.Context, to *telego.Message, text string) error {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	_, err := h.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    tu.ID(to.Chat.ID),
		Text:      text,
		ParseMode: telego.ModeHTML,
		ReplyParameters: (&telego.ReplyParameters{
			MessageID: to.MessageID,
		}).WithAllowSendingWithoutReply(),
	})
	if err != nil {
		return fmt.Errorf("send reply to chat %d: %w", to.Chat.ID, err)
	}
	return nil
}

func (h *Handler) allowedChat(chatID int64) bool {
	if len(h.allowed) == 0 {
		return true
	}
	_, ok := h.allowed[chatID]
	return ok
}

func (h *Handler) messageFor(lang string) i18n.Messages {
	return shared.MessagesFor(h.messages, lang, h.defaultLang)
}

// parseCommand extracts the command name from "/status@my_bot args".
func parseCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}
