package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"task-tracker/internal/model"
)

// summaryLimit caps how many open tasks of each status are listed.
const summaryLimit = 10

// descriptionPreviewLen bounds the description shown next to a task, in runes.
const descriptionPreviewLen = 100

// SummaryService builds human-readable task summaries for Telegram notifications.
type SummaryService struct {
	store TaskStore
}

func NewSummaryService(store TaskStore) *SummaryService {
	return &SummaryService{store: store}
}

// DailySummary renders status counts and the newest open tasks as Telegram HTML.
func (s *SummaryService) DailySummary(ctx context.Context, user *model.User, now time.Time) (string, error) {
	counts, err := s.store.CountByStatus(ctx, user.ID)
	if err != nil {
		return "", err
	}
	inProgress, err := s.store.ListByStatus(ctx, user.ID, model.StatusInProgress, 1)
	if err != nil {
		return "", err
	}
	pending, err := s.store.ListByStatus(ctx, user.ID, model.StatusPending, 1)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Task summary</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))
	builder.WriteString(fmt.Sprintf("📊 pending: %d · in progress: %d · done: %d\n",
		counts[model.StatusPending], counts[model.StatusInProgress], counts[model.StatusDone]))

	writeSection(&builder, "🔥 <b>In progress</b>", inProgress, now)
	writeSection(&builder, "🕒 <b>Pending</b>", pending, now)

	return strings.TrimSpace(builder.String()), nil
}

func writeSection(builder *strings.Builder, header string, page *model.Page, now time.Time) {
	builder.WriteString("\n" + header + "\n")
	if len(page.Items) == 0 {
		builder.WriteString("— nothing here\n")
		return
	}
	items := page.Items
	if len(items) > summaryLimit {
		items = items[:summaryLimit]
	}
	for _, task := range items {
		builder.WriteString(FormatTask(task, now))
	}
	if rest := page.Total - int64(len(items)); rest > 0 {
		builder.WriteString(fmt.Sprintf("… and %d more\n", rest))
	}
}

// FormatTask renders one task line, escaped for Telegram HTML.
func FormatTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	switch task.Status {
	case model.StatusInProgress:
		icon = "⏳"
	case model.StatusDone:
		icon = "✅"
	}
	sb.WriteString(fmt.Sprintf("%s <code>#%d</code> %s", icon, task.ID, html.EscapeString(strings.TrimSpace(task.Title))))

	if !task.CreatedAt.IsZero() && task.Status != model.StatusDone {
		if days := int(now.Sub(task.CreatedAt).Hours() / 24); days > 0 {
			sb.WriteString(fmt.Sprintf(" · open %d d.", days))
		}
	}

	if desc := clipText(task.Description, descriptionPreviewLen); desc != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(desc)))
	}

	sb.WriteByte('\n')
	return sb.String()
}

// clipText collapses whitespace to single spaces and cuts s to at most limit runes.
func clipText(s string, limit int) string {
	clean := strings.Join(strings.Fields(s), " ")
	runes := []rune(clean)
	if len(runes) <= limit {
		return clean
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
