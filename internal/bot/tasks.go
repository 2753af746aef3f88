package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/model"
	"task-tracker/internal/service"
)

const buttonTitleLen = 24

func (b *Bot) handleListTasks(ctx context.Context, chatID int64, args string) error {
	user, ok, err := b.linkedUser(ctx, chatID)
	if !ok {
		return err
	}

	header := "📋 <b>Your tasks</b>"
	var page *model.Page
	if args == "" {
		page, err = b.tasks.GetAllTasksForUser(ctx, user, model.TaskFilters{}, 1)
	} else {
		status, ok := parseStatus(args)
		if !ok {
			return b.sendText(chatID, "Unknown status. Use pending, in_progress or done.")
		}
		header = fmt.Sprintf("📋 <b>Tasks: %s</b>", statusLabel(status))
		page, err = b.tasks.GetTasksByStatus(ctx, user, status, 1)
	}
	if err != nil {
		return b.sendError(chatID, err)
	}
	if len(page.Items) == 0 {
		return b.sendText(chatID, header+"\n— nothing here. Send /new to add a task.")
	}
	return b.sendTaskPage(chatID, header, page)
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64, term string) error {
	user, ok, err := b.linkedUser(ctx, chatID)
	if !ok {
		return err
	}
	if term == "" {
		return b.sendText(chatID, "Usage: <code>/search term</code>")
	}
	page, err := b.tasks.SearchTasks(ctx, user, term, 1)
	if err != nil {
		return b.sendError(chatID, err)
	}
	header := fmt.Sprintf("🔎 <b>Search:</b> %s", escape(term))
	if len(page.Items) == 0 {
		return b.sendText(chatID, header+"\n— nothing found")
	}
	return b.sendTaskPage(chatID, header, page)
}

func (b *Bot) sendTaskPage(chatID int64, header string, page *model.Page) error {
	now := b.now()
	var builder strings.Builder
	builder.WriteString(header)
	builder.WriteString("\n")
	for _, task := range page.Items {
		builder.WriteString("\n")
		builder.WriteString(service.FormatTask(task, now))
	}
	if page.Total > int64(len(page.Items)) {
		fmt.Fprintf(&builder, "\n\n… showing %d of %d", len(page.Items), page.Total)
	}
	return b.sendWithReplyMarkup(chatID, builder.String(), taskListKeyboard(page.Items))
}

// handleNew creates a task straight from "/new title | description" or starts a dialog when no title is given.
func (b *Bot) handleNew(ctx context.Context, chatID int64, args string) error {
	user, ok, err := b.linkedUser(ctx, chatID)
	if !ok {
		return err
	}
	if args == "" {
		b.setConversation(chatID, &conversationState{stage: stageTitle})
		return b.sendWithReplyMarkup(chatID, "📝 Send the task title.", cancelKeyboard())
	}

	title, description, hasDescription := strings.Cut(args, "|")
	input := service.TaskInput{Title: strings.TrimSpace(title)}
	if hasDescription {
		desc := strings.TrimSpace(description)
		input.Description = &desc
	}
	return b.createTask(ctx, chatID, user, input)
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	state := b.getConversation(chatID)
	if state == nil {
		return nil
	}
	user, ok, err := b.linkedUser(ctx, chatID)
	if !ok {
		b.clearConversation(chatID)
		return err
	}
	text := strings.TrimSpace(msg.Text)

	switch state.stage {
	case stageTitle:
		if err := service.ValidateTitle(text); err != nil {
			return b.sendError(chatID, err)
		}
		b.setConversation(chatID, &conversationState{stage: stageDescription, title: text})
		return b.sendWithReplyMarkup(chatID, "✏️ Add a description or press Skip.", skipKeyboard())
	case stageDescription:
		input := service.TaskInput{Title: state.title}
		if !isSkipInput(text) {
			input.Description = &text
		}
		task, err := b.tasks.CreateTask(ctx, user, input)
		var verr *model.ValidationError
		if err != nil && errors.As(err, &verr) {
			// stay on the description step so the user can retry
			return b.sendError(chatID, err)
		}
		b.clearConversation(chatID)
		if err != nil {
			return b.sendError(chatID, err)
		}
		return b.sendCreated(chatID, task)
	default:
		b.clearConversation(chatID)
		return nil
	}
}

func (b *Bot) createTask(ctx context.Context, chatID int64, user *model.User, input service.TaskInput) error {
	task, err := b.tasks.CreateTask(ctx, user, input)
	if err != nil {
		return b.sendError(chatID, err)
	}
	return b.sendCreated(chatID, task)
}

func (b *Bot) sendCreated(chatID int64, task *model.Task) error {
	log.WithFields(log.Fields{"chat_id": chatID, "task_id": task.ID}).Info("task created from telegram")
	text := "✅ Task created\n" + service.FormatTask(*task, b.now())
	return b.sendWithReplyMarkup(chatID, text, taskActionsKeyboard(task))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64, args string) error {
	user, ok, err := b.linkedUser(ctx, chatID)
	if !ok {
		return err
	}
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return b.sendText(chatID, "Usage: <code>/status 12 in_progress</code>")
	}
	status, ok := parseStatus(fields[1])
	if !ok {
		return b.sendText(chatID, "Unknown status. Use pending, in_progress or done.")
	}
	return b.changeStatus(ctx, chatID, user, fields[0], status)
}

func (b *Bot) handleDone(ctx context.Context, chatID int64, args string) error {
	user, ok, err := b.linkedUser(ctx, chatID)
	if !ok {
		return err
	}
	if args == "" {
		return b.sendText(chatID, "Usage: <code>/done 12</code>")
	}
	return b.changeStatus(ctx, chatID, user, args, model.StatusDone)
}

func (b *Bot) changeStatus(ctx context.Context, chatID int64, user *model.User, rawID string, status model.TaskStatus) error {
	task, err := b.findTask(ctx, user, rawID)
	if err != nil {
		return b.sendError(chatID, err)
	}
	updated, err := b.tasks.ChangeTaskStatus(ctx, task, status)
	if err != nil {
		return b.sendError(chatID, err)
	}
	text := fmt.Sprintf("🔄 Moved to <b>%s</b>\n%s", statusLabel(status), service.FormatTask(*updated, b.now()))
	return b.sendWithReplyMarkup(chatID, text, taskActionsKeyboard(updated))
}

func (b *Bot) handleDelete(ctx context.Context, chatID int64, args string) error {
	user, ok, err := b.linkedUser(ctx, chatID)
	if !ok {
		return err
	}
	if args == "" {
		return b.sendText(chatID, "Usage: <code>/delete 12</code>")
	}
	task, err := b.findTask(ctx, user, args)
	if err != nil {
		return b.sendError(chatID, err)
	}
	return b.askDeleteConfirmation(chatID, task)
}

func (b *Bot) askDeleteConfirmation(chatID int64, task *model.Task) error {
	text := fmt.Sprintf("🗑 Delete <b>%s</b>?", escape(shortTitle(task.Title, 64)))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard(task.ID))
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, user *model.User, rawID string) error {
	task, err := b.findTask(ctx, user, rawID)
	if err != nil {
		return b.sendError(chatID, err)
	}
	deleted, err := b.tasks.DeleteTask(ctx, task)
	if err != nil {
		return b.sendError(chatID, err)
	}
	if !deleted {
		return b.sendError(chatID, model.ErrNotFound)
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 Deleted <code>#%d</code> %s", task.ID, escape(shortTitle(task.Title, 64))))
}

// findTask parses a task id and loads it for the user. Malformed ids read as not found.
func (b *Bot) findTask(ctx context.Context, user *model.User, rawID string) (*model.Task, error) {
	id, err := parseTaskID(rawID)
	if err != nil {
		return nil, model.ErrNotFound
	}
	return b.tasks.FindTaskForUser(ctx, id, user)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	chatID := cb.Message.Chat.ID
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.WithError(err).Debug("answer callback")
	}

	user, ok, err := b.linkedUser(ctx, chatID)
	if !ok {
		return err
	}
	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbProgressPrefix):
		return b.changeStatus(ctx, chatID, user, strings.TrimPrefix(data, cbProgressPrefix), model.StatusInProgress)
	case strings.HasPrefix(data, cbDonePrefix):
		return b.changeStatus(ctx, chatID, user, strings.TrimPrefix(data, cbDonePrefix), model.StatusDone)
	case strings.HasPrefix(data, cbDeletePrefix):
		task, err := b.findTask(ctx, user, strings.TrimPrefix(data, cbDeletePrefix))
		if err != nil {
			return b.sendError(chatID, err)
		}
		return b.askDeleteConfirmation(chatID, task)
	case strings.HasPrefix(data, cbConfirmPrefix):
		return b.deleteTask(ctx, chatID, user, strings.TrimPrefix(data, cbConfirmPrefix))
	case strings.HasPrefix(data, cbCancelPrefix):
		return b.sendText(chatID, "👌 Kept as is.")
	default:
		return nil
	}
}

func taskActionsKeyboard(task *model.Task) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(taskActionRow(*task, false))
}

func taskListKeyboard(tasks []model.Task) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, taskActionRow(task, true))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func taskActionRow(task model.Task, withTitle bool) []tgbotapi.InlineKeyboardButton {
	suffix := ""
	if withTitle {
		suffix = " " + shortTitle(task.Title, buttonTitleLen)
	}
	id := fmt.Sprint(task.ID)
	row := make([]tgbotapi.InlineKeyboardButton, 0, 3)
	switch task.Status {
	case model.StatusPending:
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("▶️"+suffix, cbProgressPrefix+id))
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✅", cbDonePrefix+id))
	case model.StatusInProgress:
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✅"+suffix, cbDonePrefix+id))
	default:
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("🗑"+suffix, cbDeletePrefix+id))
		return row
	}
	return append(row, tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+id))
}

func confirmKeyboard(taskID uint) tgbotapi.InlineKeyboardMarkup {
	id := fmt.Sprint(taskID)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", cbConfirmPrefix+id),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Keep", cbCancelPrefix+id),
		),
	)
}

func parseStatus(raw string) (model.TaskStatus, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_") {
	case "pending", "todo":
		return model.StatusPending, true
	case "in_progress", "progress", "doing":
		return model.StatusInProgress, true
	case "done", "finished":
		return model.StatusDone, true
	default:
		return "", false
	}
}

func statusLabel(status model.TaskStatus) string {
	switch status {
	case model.StatusPending:
		return "pending"
	case model.StatusInProgress:
		return "in progress"
	case model.StatusDone:
		return "done"
	default:
		return string(status)
	}
}
