package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"asset-synth-studio/internal/descriptor"
	"asset-synth-studio/internal/synth"
)

const callbackPrefix = "st"

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.Message.Chat == nil {
		return nil
	}
	parts := strings.SplitN(strings.TrimSpace(q.Data), ":", 3)
	if len(parts) < 2 || parts[0] != callbackPrefix {
		return nil
	}

	action := parts[1]
	arg := ""
	if len(parts) == 3 {
		arg = parts[2]
	}
	chatID := q.Message.Chat.ID

	switch action {
	case "tpl":
		_ = h.tg.AnswerCallback(q.ID, "Applying template…", false)
		return h.selectTemplate(ctx, chatID, arg)
	case "ratio":
		_ = h.tg.AnswerCallback(q.ID, arg, false)
		return h.setAspectRatio(ctx, chatID, arg)
	case "synth":
		_ = h.tg.AnswerCallback(q.ID, "Synthesizing…", false)
		return h.synthesize(ctx, chatID)
	default:
		_ = h.tg.AnswerCallback(q.ID, "Unknown action", false)
		return nil
	}
}

func templateKeyboard(templates []descriptor.Template) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(templates)/2+2)
	var row []tgbotapi.InlineKeyboardButton
	for _, t := range templates {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(truncateLine(t.Name, 28), cb("tpl", t.ID)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🎨 Synthesize", cb("synth")),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func ratioKeyboard(current string) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, r := range synth.SupportedAspectRatios() {
		label := r
		if r == current {
			label = "✅ " + r
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb("ratio", r)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func cb(parts ...string) string {
	return callbackPrefix + ":" + strings.Join(parts, ":")
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
