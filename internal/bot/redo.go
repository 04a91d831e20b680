package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/afisha-bot/internal/models"
	"github.com/xaenox/afisha-bot/internal/storage"
)

const redoPrompt = "Что исправить? Ответьте на это сообщение текстом правки."

// handleRedo opens a clarification conversation for the draft. The draft's
// status is untouched: redo only re-extracts fields.
func (b *Bot) handleRedo(ctx context.Context, cq *tgbotapi.CallbackQuery, draftID int64) {
	draft, err := b.store.GetDraft(ctx, draftID)
	if err != nil {
		b.logger.Error("redo on missing draft", zap.Int64("draft_id", draftID), zap.Error(err))
		b.answerCallback(cq.ID, "Draft not found.")
		return
	}
	if !draft.Status.Actionable() {
		b.answerCallback(cq.ID, "Already handled.")
		return
	}

	// One active conversation per source message.
	if _, err := b.store.GetActiveConversation(ctx, draft.SourceChatID, draft.SourceMessageID); err == nil {
		b.answerCallback(cq.ID, "A correction is already in progress.")
		return
	}

	conv := &models.Conversation{
		ID:              uuid.New().String(),
		DraftID:         draft.ID,
		SourceChatID:    draft.SourceChatID,
		SourceMessageID: draft.SourceMessageID,
		Status:          models.ConversationActive,
		Turns: []models.Turn{{
			Role:      models.RoleBot,
			Content:   redoPrompt,
			Timestamp: time.Now(),
		}},
	}
	if err := b.store.CreateConversation(ctx, conv); err != nil {
		b.logger.Error("failed to create conversation", zap.Int64("draft_id", draftID), zap.Error(err))
		b.answerCallback(cq.ID, "Action failed, try again.")
		return
	}

	msg := tgbotapi.NewMessage(b.config.ReviewChatID, redoPrompt)
	if cq.Message != nil {
		msg.ReplyToMessageID = cq.Message.MessageID
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		b.logger.Error("failed to send redo prompt", zap.Error(err))
		b.answerCallback(cq.ID, "Action failed, try again.")
		return
	}

	b.redo.register(sent.MessageID, redoSession{conversationID: conv.ID, draftID: draft.ID})
	b.answerCallback(cq.ID, "Waiting for your correction.")
}

// handleRedoReply applies a moderator's free-text correction: the original
// text is re-extracted constrained by the correction, the draft's fields are
// replaced in place, and the correction lands in the learning store.
func (b *Bot) handleRedoReply(ctx context.Context, msg *tgbotapi.Message) {
	// The session is consumed only once an authorized, non-empty correction
	// arrives; anyone else's reply must leave it waiting for the moderator.
	session, ok := b.redo.peek(msg.ReplyToMessage.MessageID)
	if !ok {
		return
	}
	if !b.isModerator(msg.From.ID) {
		b.logger.Warn("unauthorized redo reply",
			zap.Int64("user_id", msg.From.ID),
			zap.Int64("draft_id", session.draftID))
		b.sendMessage(msg.Chat.ID, "Not allowed.")
		return
	}

	correction := msg.Text
	if correction == "" {
		b.sendMessage(msg.Chat.ID, "Пустая правка, ничего не изменено.")
		return
	}

	if _, ok := b.redo.take(msg.ReplyToMessage.MessageID); !ok {
		return
	}

	if err := b.store.AddTurn(ctx, session.conversationID, models.Turn{
		Role:      models.RoleUser,
		Content:   correction,
		Timestamp: time.Now(),
	}); err != nil {
		b.logger.Error("failed to record correction turn", zap.Error(err))
	}

	rec, err := b.store.GetDecisionByDraft(ctx, session.draftID)
	if err != nil {
		b.logger.Error("decision record missing for redo",
			zap.Int64("draft_id", session.draftID),
			zap.Error(err))
		b.sendErrorMessage(msg.Chat.ID, "Couldn't load the original post.")
		return
	}

	ex := b.extractor.Reextract(ctx, rec.OriginalText, rec.Extracted, correction, rec.CreatedAt)
	if ex.Title == "" || ex.StartTime == nil {
		b.sendErrorMessage(msg.Chat.ID, "Не удалось применить правку, черновик не изменён.")
		b.completeConversation(ctx, session.conversationID, models.ConversationCancelled)
		return
	}
	if ex.EndTime == nil {
		end := ex.StartTime.Add(2 * time.Hour)
		ex.EndTime = &end
	}

	draft, err := b.store.GetDraft(ctx, session.draftID)
	if err != nil {
		b.logger.Error("draft missing for redo", zap.Int64("draft_id", session.draftID), zap.Error(err))
		b.sendErrorMessage(msg.Chat.ID, "Черновик не найден.")
		return
	}

	draft.Title = ex.Title
	draft.StartTime = ex.StartTime.UTC()
	draft.EndTime = ex.EndTime.UTC()
	draft.Venue = ex.Venue
	draft.CityName = ex.CityName
	draft.Description = ex.Description

	if err := b.store.UpdateDraftFields(ctx, draft); err != nil {
		b.logger.Error("failed to update draft fields", zap.Int64("draft_id", draft.ID), zap.Error(err))
		b.sendErrorMessage(msg.Chat.ID, "Не удалось сохранить правку.")
		return
	}

	// Every redo correction feeds the learning store.
	if err := b.store.AppendFeedback(ctx, draft.ID, correction); err != nil {
		b.logger.Error("failed to append feedback", zap.Int64("draft_id", draft.ID), zap.Error(err))
	}

	b.completeConversation(ctx, session.conversationID, models.ConversationCompleted)

	if err := b.RenderCard(ctx, draft, rec); err != nil {
		b.logger.Error("failed to re-render card", zap.Int64("draft_id", draft.ID), zap.Error(err))
	}
}

func (b *Bot) completeConversation(ctx context.Context, conversationID string, status models.ConversationStatus) {
	if err := b.store.SetConversationStatus(ctx, conversationID, status); err != nil && err != storage.ErrNotFound {
		b.logger.Error("failed to close conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}
