package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/afisha-bot/internal/ai"
	"github.com/xaenox/afisha-bot/internal/enrich"
	"github.com/xaenox/afisha-bot/internal/links"
	"github.com/xaenox/afisha-bot/internal/metrics"
	"github.com/xaenox/afisha-bot/internal/models"
	"github.com/xaenox/afisha-bot/internal/storage"
)

// Photo grouping heuristics: messages of one post share the platform
// timestamp, and their ids are assigned close together.
const (
	photoTimeWindow   = 5 * time.Second
	photoMessageSpan  = 10
	defaultEventSpan  = 2 * time.Hour
	searchSnippetSize = 120
)

// Outcome is the terminal result of handling one inbound post.
type Outcome string

const (
	OutcomeDroppedEmpty     Outcome = "dropped_empty"
	OutcomeRedelivery       Outcome = "redelivery"
	OutcomePhotoMerged      Outcome = "photo_merged"
	OutcomePhotoUnresolved  Outcome = "photo_unresolved"
	OutcomeAd               Outcome = "ad"
	OutcomeNotEvent         Outcome = "not_event"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeCreatedPending   Outcome = "created_pending"
	OutcomeAutoApproved     Outcome = "auto_approved"
	OutcomeAutoRejected     Outcome = "auto_rejected"
)

// LinkFetcher supplies page content for URLs found in a post.
type LinkFetcher interface {
	FetchAll(ctx context.Context, urls []string) []enrich.PageContent
}

// WebSearcher supplies free-text search context for a post.
type WebSearcher interface {
	Search(ctx context.Context, query string) string
}

// CardRenderer sends a moderation card for a pending draft.
type CardRenderer interface {
	RenderCard(ctx context.Context, draft *models.Draft, rec *models.DecisionRecord) error
}

// Submitter runs the approve sub-procedure for auto-approved drafts
// (media materialization, catalog submission, terminal transition).
type Submitter interface {
	AutoApprove(ctx context.Context, draft *models.Draft) error
}

type Config struct {
	AutoMode            bool
	ConfidenceThreshold float64
}

// Pipeline is the event-draft ingestion pipeline: classification →
// extraction → deduplication → decision → persistence → routing.
type Pipeline struct {
	store      storage.Storage
	classifier ai.Classifier
	extractor  ai.Extractor
	decider    ai.Decider
	fetcher    LinkFetcher
	searcher   WebSearcher
	cards      CardRenderer
	submitter  Submitter
	metrics    *metrics.Metrics
	config     Config
	logger     *zap.Logger
}

func New(
	store storage.Storage,
	classifier ai.Classifier,
	extractor ai.Extractor,
	decider ai.Decider,
	fetcher LinkFetcher,
	searcher WebSearcher,
	cards CardRenderer,
	submitter Submitter,
	m *metrics.Metrics,
	config Config,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:      store,
		classifier: classifier,
		extractor:  extractor,
		decider:    decider,
		fetcher:    fetcher,
		searcher:   searcher,
		cards:      cards,
		submitter:  submitter,
		metrics:    m,
		config:     config,
		logger:     logger,
	}
}

// HandlePost runs one inbound post through the pipeline. Every failure path
// returns a terminal outcome; errors are reserved for storage faults.
func (p *Pipeline) HandlePost(ctx context.Context, post models.InboundPost) (Outcome, error) {
	outcome, err := p.handle(ctx, post)
	if err == nil {
		p.metrics.PostsTotal.WithLabelValues(string(outcome)).Inc()
	}
	return outcome, err
}

func (p *Pipeline) handle(ctx context.Context, post models.InboundPost) (Outcome, error) {
	if strings.TrimSpace(post.Text) == "" && post.PhotoRef == (models.ImageRef{}) {
		return OutcomeDroppedEmpty, nil
	}

	// Re-delivering the same source message never creates a second draft.
	if _, err := p.store.FindDraftBySource(ctx, post.ChatID, post.MessageID); err == nil {
		p.logger.Info("source message already processed",
			zap.Int64("chat_id", post.ChatID),
			zap.Int("message_id", post.MessageID))
		return OutcomeRedelivery, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("idempotency check: %w", err)
	}

	if post.Kind == models.PostPhoto {
		return p.handlePhotoOnly(ctx, post)
	}

	return p.handleTextPost(ctx, post)
}

// handlePhotoOnly merges an image-only message into its host draft. An image
// without text is never turned into its own draft: the text-bearing message
// of the same real-world post creates the draft, and the photos attach to it.
func (p *Pipeline) handlePhotoOnly(ctx context.Context, post models.InboundPost) (Outcome, error) {
	host, err := p.store.FindPhotoHostByTime(ctx, post.ChatID, post.ReceivedAt, photoTimeWindow)
	if errors.Is(err, storage.ErrNotFound) {
		host, err = p.store.FindPhotoHostByMessageID(ctx, post.ChatID, post.MessageID, photoMessageSpan)
	}
	if errors.Is(err, storage.ErrNotFound) {
		p.logger.Info("unresolved photo-only message dropped",
			zap.Int64("chat_id", post.ChatID),
			zap.Int("message_id", post.MessageID))
		p.metrics.PhotosUnresolved.Inc()
		return OutcomePhotoUnresolved, nil
	}
	if err != nil {
		return "", fmt.Errorf("photo host lookup: %w", err)
	}

	if err := p.store.AppendToGallery(ctx, host.ID, post.PhotoRef); err != nil {
		return "", fmt.Errorf("append photo to draft %d: %w", host.ID, err)
	}
	p.metrics.PhotosMerged.Inc()
	p.logger.Info("photo merged into draft",
		zap.Int64("draft_id", host.ID),
		zap.Int("message_id", post.MessageID))
	return OutcomePhotoMerged, nil
}

func (p *Pipeline) handleTextPost(ctx context.Context, post models.InboundPost) (Outcome, error) {
	postLinks := links.Extract(post.Text)

	category := p.classifier.Classify(ctx, post.Text)
	if !category.Publishable() {
		p.logger.Debug("post classified as noise",
			zap.String("category", string(category)),
			zap.Int64("chat_id", post.ChatID))
		return OutcomeAd, nil
	}

	refTime := p.referenceTime(ctx, post)
	enriched := p.enrichText(ctx, post.Text, postLinks)

	extraction := p.extractor.Extract(ctx, enriched, refTime)
	if extraction.Title == "" || extraction.StartTime == nil {
		p.logger.Info("extraction missing required fields, post dropped",
			zap.Int64("chat_id", post.ChatID),
			zap.String("title", extraction.Title))
		return OutcomeNotEvent, nil
	}
	if extraction.EndTime == nil {
		end := extraction.StartTime.Add(defaultEventSpan)
		extraction.EndTime = &end
	}

	dup, err := p.store.HasDuplicateDraft(ctx, extraction.Title, *extraction.StartTime)
	if err != nil {
		return "", fmt.Errorf("deduplication check: %w", err)
	}
	if dup {
		p.metrics.DuplicatesSkipped.Inc()
		p.logger.Info("duplicate draft skipped",
			zap.String("title", extraction.Title),
			zap.Time("start_time", *extraction.StartTime))
		return OutcomeDuplicate, nil
	}

	history, err := p.store.GetRecentReviewed(ctx, 30)
	if err != nil {
		p.logger.Warn("failed to load decision history", zap.Error(err))
		history = nil
	}
	decision := p.decider.Decide(ctx, post.Text, extraction, history)

	route := ChooseRoute(decision.Verdict, decision.Confidence, p.config.ConfidenceThreshold, p.config.AutoMode)

	draft, err := p.createDraft(ctx, post, extraction, postLinks, route)
	if err != nil {
		return "", err
	}

	rec := &models.DecisionRecord{
		ID:              uuid.New().String(),
		DraftID:         draft.ID,
		SourceChatID:    post.ChatID,
		SourceMessageID: post.MessageID,
		OriginalText:    post.Text,
		Extracted:       extraction,
		Predicted:       decision,
		// Mirrors the prediction until a human acts.
		HumanVerdict: decision.Verdict,
	}
	if err := p.store.CreateDecisionRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("create decision record: %w", err)
	}

	p.metrics.DraftsCreated.WithLabelValues(string(route)).Inc()

	switch route {
	case RouteAutoApprove:
		if err := p.submitter.AutoApprove(ctx, draft); err != nil {
			p.logger.Error("auto approval failed",
				zap.Int64("draft_id", draft.ID),
				zap.Error(err))
			// The draft stays NEW and still actionable; hand it to a
			// moderator so the submission can be retried from the card.
			if rerr := p.cards.RenderCard(ctx, draft, rec); rerr != nil {
				p.logger.Error("failed to render moderation card",
					zap.Int64("draft_id", draft.ID),
					zap.Error(rerr))
			}
		}
		return OutcomeAutoApproved, nil
	case RouteAutoReject:
		return OutcomeAutoRejected, nil
	default:
		if err := p.cards.RenderCard(ctx, draft, rec); err != nil {
			p.logger.Error("failed to render moderation card",
				zap.Int64("draft_id", draft.ID),
				zap.Error(err))
		}
		return OutcomeCreatedPending, nil
	}
}

// referenceTime resolves the post timestamp into the channel city's time
// zone, so relative dates in the text resolve correctly.
func (p *Pipeline) referenceTime(ctx context.Context, post models.InboundPost) time.Time {
	ch, err := p.store.GetChannelByChatID(ctx, post.ChatID)
	if err != nil {
		return post.ReceivedAt
	}
	city, err := p.store.GetCity(ctx, ch.CityID)
	if err != nil {
		return post.ReceivedAt
	}
	loc, err := time.LoadLocation(city.Timezone)
	if err != nil {
		p.logger.Warn("bad city timezone",
			zap.String("timezone", city.Timezone),
			zap.Error(err))
		return post.ReceivedAt
	}
	return post.ReceivedAt.In(loc)
}

// enrichText appends best-effort link and search context to the post text.
// Failures only reduce context, they never abort extraction.
func (p *Pipeline) enrichText(ctx context.Context, text string, postLinks []links.Link) string {
	var b strings.Builder
	b.WriteString(text)

	urls := make([]string, 0, len(postLinks))
	for _, l := range postLinks {
		urls = append(urls, l.URL)
	}
	if len(urls) > 0 {
		b.WriteString(enrich.Context(p.fetcher.FetchAll(ctx, urls)))
	}

	b.WriteString(p.searcher.Search(ctx, truncateQuery(text, searchSnippetSize)))

	return b.String()
}

// truncateQuery cuts the search query at max bytes without splitting a rune.
func truncateQuery(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (p *Pipeline) createDraft(ctx context.Context, post models.InboundPost, ex models.Extraction, postLinks []links.Link, route Route) (*models.Draft, error) {
	draft := &models.Draft{
		SourceChatID:    post.ChatID,
		SourceMessageID: post.MessageID,
		Title:           ex.Title,
		StartTime:       ex.StartTime.UTC(),
		EndTime:         ex.EndTime.UTC(),
		Venue:           ex.Venue,
		CityName:        ex.CityName,
		Description:     ex.Description,
		SourceLink:      post.SourceLink,
		AdminNotes:      buildAdminNotes(post, postLinks),
		Status:          route.InitialStatus(),
	}
	if ch, err := p.store.GetChannelByChatID(ctx, post.ChatID); err == nil {
		draft.ChannelID = ch.ID
	}
	if post.HasPhoto() {
		draft.AddImage(post.PhotoRef)
	}

	if err := p.store.CreateDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	return draft, nil
}

func buildAdminNotes(post models.InboundPost, postLinks []links.Link) string {
	var b strings.Builder
	if post.SourceLink != "" {
		b.WriteString("source: " + post.SourceLink + "\n")
	}
	for _, u := range links.TicketLinks(postLinks) {
		b.WriteString("tickets: " + u + "\n")
	}
	for _, u := range links.OrganizerLinks(postLinks) {
		b.WriteString("organizer: " + u + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
