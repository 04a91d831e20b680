package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xaenox/afisha-bot/internal/models"
)

// Callback data actions on a moderation card.
const (
	actionApprove = "approve"
	actionReject  = "reject"
	actionRedo    = "redo"
)

func callbackData(action string, draftID int64) string {
	return action + ":" + strconv.FormatInt(draftID, 10)
}

func parseCallbackData(data string) (action string, draftID int64, ok bool) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[0], id, true
}

func cardKeyboard(draftID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Принять", callbackData(actionApprove, draftID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", callbackData(actionReject, draftID)),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Переделать", callbackData(actionRedo, draftID)),
		),
	)
}

// cardText renders the moderation card body in MarkdownV2.
func cardText(draft *models.Draft, rec *models.DecisionRecord) string {
	var b strings.Builder

	b.WriteString("*" + escapeMarkdown(draft.Title) + "*\n")
	b.WriteString("🗓 " + escapeMarkdown(draft.StartTime.Format("02.01.2006 15:04")))
	b.WriteString(escapeMarkdown(" — "+draft.EndTime.Format("15:04")) + "\n")
	if draft.Venue != "" {
		b.WriteString("📍 " + escapeMarkdown(draft.Venue))
		if draft.CityName != "" {
			b.WriteString(escapeMarkdown(", " + draft.CityName))
		}
		b.WriteString("\n")
	}
	if draft.Description != "" {
		b.WriteString("\n" + escapeMarkdown(draft.Description) + "\n")
	}
	if rec != nil {
		b.WriteString(fmt.Sprintf("\n🤖 %s \\(%s\\)\n",
			escapeMarkdown(string(rec.Predicted.Verdict)),
			escapeMarkdown(fmt.Sprintf("%.0f%%", rec.Predicted.Confidence*100))))
		if rec.Predicted.Reasoning != "" {
			b.WriteString("_" + escapeMarkdown(rec.Predicted.Reasoning) + "_\n")
		}
	}
	if draft.SourceLink != "" {
		b.WriteString("\n🔗 " + escapeMarkdown(draft.SourceLink))
	}
	return strings.TrimRight(b.String(), "\n")
}

// escapeMarkdown escapes special characters for MarkdownV2.
func escapeMarkdown(text string) string {
	specialChars := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
