package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/afisha-bot/internal/ai"
	"github.com/xaenox/afisha-bot/internal/catalog"
	"github.com/xaenox/afisha-bot/internal/metrics"
	"github.com/xaenox/afisha-bot/internal/models"
	"github.com/xaenox/afisha-bot/internal/pipeline"
	"github.com/xaenox/afisha-bot/internal/storage"
)

type Config struct {
	Token               string
	ReviewChatID        int64
	NotifyChatID        int64
	ModeratorIDs        []int64
	AutoMode            bool
	ConfidenceThreshold float64
}

// Bot is the Telegram transport: it normalizes inbound channel posts for the
// pipeline, renders moderation cards and dispatches moderator actions.
type Bot struct {
	api        *tgbotapi.BotAPI
	store      storage.Storage
	pipeline   *pipeline.Pipeline
	queue      *pipeline.ProcQueue
	approval   *Approval
	extractor  ai.Extractor
	config     Config
	moderators map[int64]struct{}
	redo       *redoRegistry
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func New(
	config Config,
	store storage.Storage,
	gpt *ai.GPTClient,
	fetcher pipeline.LinkFetcher,
	searcher pipeline.WebSearcher,
	catalogClient *catalog.Client,
	uploader *catalog.Uploader,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	moderators := make(map[int64]struct{}, len(config.ModeratorIDs))
	for _, id := range config.ModeratorIDs {
		moderators[id] = struct{}{}
	}

	b := &Bot{
		api:        api,
		store:      store,
		queue:      pipeline.NewProcQueue(),
		extractor:  gpt,
		config:     config,
		moderators: moderators,
		redo:       newRedoRegistry(),
		metrics:    m,
		logger:     logger,
	}

	b.approval = NewApproval(store, uploader, catalogClient, b, b, m, logger)
	b.pipeline = pipeline.New(
		store,
		gpt,
		gpt,
		gpt,
		fetcher,
		searcher,
		b,
		b.approval,
		m,
		pipeline.Config{
			AutoMode:            config.AutoMode,
			ConfidenceThreshold: config.ConfidenceThreshold,
		},
		logger,
	)

	return b, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			go b.handleCallback(context.Background(), update.CallbackQuery)
		case update.ChannelPost != nil:
			b.admit(normalizeMessage(update.ChannelPost))
		case update.Message != nil:
			b.handleMessage(context.Background(), update.Message)
		}
	}

	return nil
}

// admit applies the per-chat single-flight discipline before handing a post
// to the pipeline: bursts from one chat (a post with several images) are
// processed in arrival order, chats are independent.
func (b *Bot) admit(post models.InboundPost) {
	if b.queue.IsProcessing(post.ChatID) {
		b.queue.Enqueue(post)
		b.logger.Debug("post parked behind in-flight message",
			zap.Int64("chat_id", post.ChatID),
			zap.Int("message_id", post.MessageID))
		return
	}

	b.queue.StartProcessing(post.ChatID)
	go b.drain(post)
}

func (b *Bot) drain(post models.InboundPost) {
	for {
		ctx := context.Background()
		if _, err := b.pipeline.HandlePost(ctx, post); err != nil {
			b.logger.Error("pipeline failed",
				zap.Int64("chat_id", post.ChatID),
				zap.Int("message_id", post.MessageID),
				zap.Error(err))
		}

		next, ok := b.queue.FinishProcessing(post.ChatID)
		if !ok {
			return
		}
		b.queue.StartProcessing(post.ChatID)
		post = next
	}
}

// normalizeMessage converts a raw Telegram message into the canonical
// InboundPost the pipeline operates on.
func normalizeMessage(msg *tgbotapi.Message) models.InboundPost {
	post := models.InboundPost{
		ChatID:     msg.Chat.ID,
		MessageID:  msg.MessageID,
		ReceivedAt: time.Unix(int64(msg.Date), 0),
	}
	if msg.Chat.UserName != "" {
		post.SourceLink = fmt.Sprintf("https://t.me/%s/%d", msg.Chat.UserName, msg.MessageID)
	}

	if len(msg.Photo) > 0 {
		// The last PhotoSize is the largest rendition.
		post.PhotoRef = models.ImageRef{FileID: msg.Photo[len(msg.Photo)-1].FileID}
	}

	switch {
	case len(msg.Photo) > 0 && msg.Caption != "":
		post.Kind = models.PostTextWithPhoto
		post.Text = msg.Caption
	case len(msg.Photo) > 0:
		post.Kind = models.PostPhoto
	default:
		post.Kind = models.PostText
		post.Text = msg.Text
	}
	return post
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	// A non-command message in the review chat may be a redo correction.
	if msg.Chat.ID == b.config.ReviewChatID && msg.ReplyToMessage != nil {
		b.handleRedoReply(ctx, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.sendMessage(msg.Chat.ID, "Бот модерации событий. Используйте /help для списка команд.")
	case "help":
		b.handleHelp(msg)
	case "pending":
		b.handlePending(ctx, msg)
	case "channels":
		b.handleChannels(ctx, msg)
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) {
	help := `Available commands:
/pending - Show drafts waiting for review
/channels - Show monitored channels

Cards appear in the review chat for each incoming event.
Accept sends the event to the catalog, Reject declines it,
Redo lets you dictate a correction.`

	b.sendMessage(msg.Chat.ID, help)
}

func (b *Bot) handlePending(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isModerator(msg.From.ID) {
		b.sendMessage(msg.Chat.ID, "Not allowed.")
		return
	}

	drafts, err := b.store.ListDraftsByStatus(ctx, models.StatusPending, 10)
	if err != nil {
		b.logger.Error("failed to list pending drafts", zap.Error(err))
		b.sendErrorMessage(msg.Chat.ID, "Couldn't load pending drafts.")
		return
	}
	if len(drafts) == 0 {
		b.sendMessage(msg.Chat.ID, "Nothing is waiting for review.")
		return
	}

	var lines []string
	for _, d := range drafts {
		lines = append(lines, fmt.Sprintf("#%d %s — %s", d.ID, d.Title, d.StartTime.Format("02.01 15:04")))
	}
	b.sendMessage(msg.Chat.ID, strings.Join(lines, "\n"))
}

func (b *Bot) handleChannels(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isModerator(msg.From.ID) {
		b.sendMessage(msg.Chat.ID, "Not allowed.")
		return
	}

	channels, err := b.store.ListActiveChannels(ctx)
	if err != nil {
		b.logger.Error("failed to list channels", zap.Error(err))
		b.sendErrorMessage(msg.Chat.ID, "Couldn't load channels.")
		return
	}
	if len(channels) == 0 {
		b.sendMessage(msg.Chat.ID, "No monitored channels.")
		return
	}

	var lines []string
	for _, ch := range channels {
		lines = append(lines, fmt.Sprintf("%s (%d)", ch.Title, ch.ChatID))
	}
	b.sendMessage(msg.Chat.ID, strings.Join(lines, "\n"))
}

// RenderCard sends the moderation card to the review chat. Implements
// pipeline.CardRenderer.
func (b *Bot) RenderCard(ctx context.Context, draft *models.Draft, rec *models.DecisionRecord) error {
	msg := tgbotapi.NewMessage(b.config.ReviewChatID, cardText(draft, rec))
	msg.ParseMode = "MarkdownV2"
	msg.ReplyMarkup = cardKeyboard(draft.ID)

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send moderation card: %w", err)
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	action, draftID, ok := parseCallbackData(cq.Data)
	if !ok {
		b.answerCallback(cq.ID, "Unknown action.")
		return
	}

	if !b.isModerator(cq.From.ID) {
		// Generic refusal, no state change; logged for audit.
		b.logger.Warn("unauthorized moderation action",
			zap.Int64("user_id", cq.From.ID),
			zap.String("action", action),
			zap.Int64("draft_id", draftID))
		b.answerCallback(cq.ID, "Not allowed.")
		return
	}

	b.metrics.ModeratorActions.WithLabelValues(action).Inc()

	switch action {
	case actionApprove:
		b.handleApprove(ctx, cq, draftID)
	case actionReject:
		b.handleReject(ctx, cq, draftID)
	case actionRedo:
		b.handleRedo(ctx, cq, draftID)
	default:
		b.answerCallback(cq.ID, "Unknown action.")
	}
}

func (b *Bot) handleApprove(ctx context.Context, cq *tgbotapi.CallbackQuery, draftID int64) {
	outcome, err := b.approval.Approve(ctx, draftID)
	if err != nil {
		b.logger.Error("approve failed", zap.Int64("draft_id", draftID), zap.Error(err))
		b.answerCallback(cq.ID, "Submission failed, try again.")
		return
	}

	switch outcome {
	case ApproveStale:
		b.answerCallback(cq.ID, "Already handled.")
	case ApproveDuplicate:
		b.answerCallback(cq.ID, "Catalog already has this event.")
		b.finalizeCard(cq, "♻️ Дубликат в каталоге")
	default:
		b.answerCallback(cq.ID, "Sent to catalog.")
		b.finalizeCard(cq, "✅ Отправлено в каталог")
	}
}

func (b *Bot) handleReject(ctx context.Context, cq *tgbotapi.CallbackQuery, draftID int64) {
	acted, err := b.approval.Reject(ctx, draftID)
	if err != nil {
		b.logger.Error("reject failed", zap.Int64("draft_id", draftID), zap.Error(err))
		b.answerCallback(cq.ID, "Action failed, try again.")
		return
	}
	if !acted {
		b.answerCallback(cq.ID, "Already handled.")
		return
	}
	b.answerCallback(cq.ID, "Rejected.")
	b.finalizeCard(cq, "❌ Отклонено")
}

// finalizeCard stamps the result onto the card and removes the buttons.
func (b *Bot) finalizeCard(cq *tgbotapi.CallbackQuery, verdict string) {
	if cq.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(
		cq.Message.Chat.ID,
		cq.Message.MessageID,
		cq.Message.Text+"\n\n"+verdict)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error("failed to finalize card", zap.Error(err))
	}
}

// FileURL resolves a Telegram file id to a downloadable URL. Implements
// FileResolver for media materialization.
func (b *Bot) FileURL(fileID string) (string, error) {
	return b.api.GetFileDirectURL(fileID)
}

// Publish sends a best-effort summary to the notification channel.
// Implements Notifier.
func (b *Bot) Publish(summary string) {
	if b.config.NotifyChatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(b.config.NotifyChatID, summary)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("failed to publish notification", zap.Error(err))
	}
}

func (b *Bot) isModerator(userID int64) bool {
	_, ok := b.moderators[userID]
	return ok
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Error("failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// redoRegistry maps a redo prompt message to its conversation, so a reply in
// the review chat can be correlated back. Owned by the Bot instance, not a
// package global, so tests can build isolated bots.
type redoRegistry struct {
	mu      sync.Mutex
	prompts map[int]redoSession
}

type redoSession struct {
	conversationID string
	draftID        int64
}

func newRedoRegistry() *redoRegistry {
	return &redoRegistry{prompts: make(map[int]redoSession)}
}

func (r *redoRegistry) register(promptMessageID int, s redoSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[promptMessageID] = s
}

func (r *redoRegistry) peek(promptMessageID int) (redoSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.prompts[promptMessageID]
	return s, ok
}

func (r *redoRegistry) take(promptMessageID int) (redoSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.prompts[promptMessageID]
	if ok {
		delete(r.prompts, promptMessageID)
	}
	return s, ok
}
