package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/model"
	"task-tracker/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
)

const (
	cbProgressPrefix = "progress:"
	cbDonePrefix     = "done:"
	cbDeletePrefix   = "delete:"
	cbConfirmPrefix  = "confirm:"
	cbCancelPrefix   = "cancel:"
)

const (
	maxMessageRunes = 4096
	truncatedSuffix = "\n…"
)

const (
	btnSkip          = "⏭️ Skip"
	btnCancelDialog  = "⏪ Cancel"
	menuLabelNewTask = "➕ New task"
	menuLabelTasks   = "📋 Tasks"
	menuLabelReport  = "📊 Report"
	menuLabelHelp    = "ℹ️ Help"
)

// Messenger is the part of the Telegram Bot API the bot relies on.
type Messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type conversationState struct {
	stage conversationStage
	title string
}

// Bot is the Telegram front end. Every task operation goes through TaskService as the linked user.
type Bot struct {
	api           Messenger
	accounts      *service.AuthService
	tasks         *service.TaskService
	summaries     *service.SummaryService
	now           func() time.Time
	conversations map[int64]*conversationState
	mu            sync.Mutex
}

func New(token string, accounts *service.AuthService, tasks *service.TaskService, summaries *service.SummaryService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.WithField("account", api.Self.UserName).Info("bot authorized")
	return NewWithAPI(api, accounts, tasks, summaries), nil
}

func NewWithAPI(api Messenger, accounts *service.AuthService, tasks *service.TaskService, summaries *service.SummaryService) *Bot {
	return &Bot{
		api:           api,
		accounts:      accounts,
		tasks:         tasks,
		summaries:     summaries,
		now:           time.Now,
		conversations: make(map[int64]*conversationState),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Info("bot polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.WithError(err).Warn("handle callback")
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.WithError(err).WithField("chat_id", update.Message.Chat.ID).Warn("handle message")
			}
		}
	}
	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	chatID := msg.Chat.ID

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(chatID)
		return b.sendText(chatID, "⏪ Task creation cancelled.")
	}
	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}
	if msg.IsCommand() {
		log.WithFields(log.Fields{"chat_id": chatID, "command": msg.Command()}).Debug("bot command")
		return b.handleCommand(ctx, msg)
	}
	if b.hasConversation(chatID) {
		return b.handleConversation(ctx, msg)
	}
	return b.sendText(chatID, "I did not get that. Send /new to add a task or /help for the list of commands.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg.Chat.ID)
	case "link":
		return b.handleLink(ctx, msg.Chat.ID, args)
	case "unlink":
		return b.handleUnlink(ctx, msg.Chat.ID)
	case "tasks":
		return b.handleListTasks(ctx, msg.Chat.ID, args)
	case "search":
		return b.handleSearch(ctx, msg.Chat.ID, args)
	case "new":
		return b.handleNew(ctx, msg.Chat.ID, args)
	case "status":
		return b.handleStatus(ctx, msg.Chat.ID, args)
	case "done":
		return b.handleDone(ctx, msg.Chat.ID, args)
	case "delete":
		return b.handleDelete(ctx, msg.Chat.ID, args)
	case "report":
		return b.handleReport(ctx, msg.Chat.ID)
	case "cancel":
		b.clearConversation(msg.Chat.ID)
		return b.sendText(msg.Chat.ID, "⏪ Task creation cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your task tracker one message away.</b>\n\n", escape(name))

	user, err := b.accounts.UserForChat(ctx, msg.Chat.ID)
	switch {
	case err == nil:
		text += fmt.Sprintf("This chat is linked to <b>%s</b>. Send /tasks to see your tasks or /help for everything else.", escape(user.Email))
	case errors.Is(err, model.ErrNotFound):
		text += "To start, open your profile in the web app, create a Telegram link code and send it here as <code>/link CODE</code>."
	default:
		return err
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(chatID int64) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /link &lt;code&gt; — link this chat to your account\n" +
		"• /unlink — stop using this chat\n" +
		"• /tasks [status] — list tasks (pending, in_progress, done)\n" +
		"• /search &lt;term&gt; — search titles and descriptions\n" +
		"• /new &lt;title&gt; [| description] — add a task, or /new alone for a guided dialog\n" +
		"• /status &lt;id&gt; &lt;status&gt; — move a task\n" +
		"• /done &lt;id&gt; — mark a task done\n" +
		"• /delete &lt;id&gt; — delete a task\n" +
		"• /report — summary right now\n" +
		"• /cancel — cancel the current dialog"
	return b.sendText(chatID, text)
}

func (b *Bot) handleLink(ctx context.Context, chatID int64, code string) error {
	if code == "" {
		return b.sendText(chatID, "Send the code from your profile: <code>/link CODE</code>")
	}
	user, err := b.accounts.LinkTelegram(ctx, code, chatID)
	if err != nil {
		return b.sendError(chatID, err)
	}
	log.WithFields(log.Fields{"chat_id": chatID, "user_id": user.ID}).Info("telegram chat linked")
	return b.sendText(chatID, fmt.Sprintf("🔗 Linked to <b>%s</b>. You will get a task summary regularly.", escape(user.Email)))
}

func (b *Bot) handleUnlink(ctx context.Context, chatID int64) error {
	user, ok, err := b.linkedUser(ctx, chatID)
	if !ok {
		return err
	}
	if err := b.accounts.UnlinkTelegram(ctx, user); err != nil {
		return b.sendError(chatID, err)
	}
	return b.sendText(chatID, "🔓 This chat is no longer linked. Summaries are stopped.")
}

func (b *Bot) handleReport(ctx context.Context, chatID int64) error {
	user, ok, err := b.linkedUser(ctx, chatID)
	if !ok {
		return err
	}
	text, err := b.summaries.DailySummary(ctx, user, b.now())
	if err != nil {
		return b.sendError(chatID, err)
	}
	return b.sendText(chatID, text)
}

// SendDailyReports sends a summary to every linked user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.accounts.LinkedUsers(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	for i := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		user := &users[i]
		if user.TelegramChatID == nil {
			continue
		}
		entry := log.WithField("user_id", user.ID)
		text, err := b.summaries.DailySummary(ctx, user, now)
		if err != nil {
			entry.WithError(err).Warn("build summary")
			continue
		}
		if err := b.sendText(*user.TelegramChatID, text); err != nil {
			entry.WithError(err).Warn("send summary")
		}
	}
	return nil
}

// linkedUser resolves the chat's account. When ok is false the chat has already been answered.
func (b *Bot) linkedUser(ctx context.Context, chatID int64) (*model.User, bool, error) {
	user, err := b.accounts.UserForChat(ctx, chatID)
	if err == nil {
		return user, true, nil
	}
	if errors.Is(err, model.ErrNotFound) {
		return nil, false, b.sendText(chatID, "This chat is not linked yet. Create a code in your profile and send <code>/link CODE</code>.")
	}
	return nil, false, err
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.handleNew(ctx, msg.Chat.ID, "")
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg.Chat.ID, "")
	case strings.ToLower(menuLabelReport):
		return true, b.handleReport(ctx, msg.Chat.ID)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg.Chat.ID)
	default:
		return false, nil
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, fitMessage(text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

// sendError answers with a user-facing message. Unexpected failures are logged, not shown.
func (b *Bot) sendError(chatID int64, err error) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		keys := make([]string, 0, len(verr.Fields))
		for k := range verr.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, "⚠️ "+escape(verr.Fields[k]))
		}
		return b.sendText(chatID, strings.Join(lines, "\n"))
	case errors.Is(err, model.ErrNotFound):
		return b.sendText(chatID, "Task not found.")
	default:
		log.WithError(err).WithField("chat_id", chatID).Error("bot request failed")
		return b.sendText(chatID, "Something went wrong. Please try again later.")
	}
}

func (b *Bot) setConversation(chatID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[chatID] = state
}

func (b *Bot) getConversation(chatID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[chatID]
}

func (b *Bot) hasConversation(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.conversations[chatID]
	return ok && state.stage != stageNone
}

func (b *Bot) clearConversation(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, chatID)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelReport),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel"
}

func parseTaskID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("invalid task id %q", raw)
	}
	return uint(value), nil
}

func shortTitle(title string, maxLen int) string {
	clean := strings.Join(strings.Fields(title), " ")
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

// fitMessage cuts text at a line break so it stays within Telegram's message limit.
// Lines carry balanced HTML, so cutting between them keeps the markup valid.
func fitMessage(text string) string {
	if utf8.RuneCountInString(text) <= maxMessageRunes {
		return text
	}
	budget := maxMessageRunes - utf8.RuneCountInString(truncatedSuffix)
	var builder strings.Builder
	used := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if used+n > budget {
			break
		}
		builder.WriteString(line)
		used += n
	}
	if used == 0 {
		// one oversized line: fall back to escaped plain text, six runes per entity at most
		plain := []rune(html.UnescapeString(text))
		if len(plain) > budget/6 {
			plain = plain[:budget/6]
		}
		return html.EscapeString(string(plain)) + truncatedSuffix
	}
	return strings.TrimRight(builder.String(), "\n") + truncatedSuffix
}

func escape(s string) string {
	return html.EscapeString(s)
}
