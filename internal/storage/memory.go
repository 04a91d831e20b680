package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/afisha-bot/internal/models"
)

// MemoryStorage is a mutex-guarded in-memory Storage used by tests and by
// local runs without a database. It mirrors the Postgres semantics.
type MemoryStorage struct {
	mu            sync.RWMutex
	nextDraftID   int64
	drafts        map[int64]*models.Draft
	decisions     map[int64]*models.DecisionRecord // keyed by draft id
	conversations map[string]*models.Conversation
	channels      map[int64]*models.Channel // keyed by chat id
	cities        map[int64]*models.City
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		nextDraftID:   1,
		drafts:        make(map[int64]*models.Draft),
		decisions:     make(map[int64]*models.DecisionRecord),
		conversations: make(map[string]*models.Conversation),
		channels:      make(map[int64]*models.Channel),
		cities:        make(map[int64]*models.City),
	}
}

func (s *MemoryStorage) CreateDraft(ctx context.Context, draft *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft.ID = s.nextDraftID
	s.nextDraftID++
	now := time.Now()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	cp := *draft
	s.drafts[draft.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetDraft(ctx context.Context, id int64) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStorage) FindDraftBySource(ctx context.Context, chatID int64, messageID int) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.drafts {
		if d.SourceChatID == chatID && d.SourceMessageID == messageID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) HasDuplicateDraft(ctx context.Context, title string, start time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	norm := models.NormalizeTitle(title)
	for _, d := range s.drafts {
		if d.Status == models.StatusRejected {
			continue
		}
		if models.NormalizeTitle(d.Title) == norm && d.StartTime.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStorage) FindPhotoHostByTime(ctx context.Context, chatID int64, ts time.Time, window time.Duration) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Draft
	for _, d := range s.drafts {
		if d.SourceChatID != chatID || !d.Status.Actionable() {
			continue
		}
		delta := d.CreatedAt.Sub(ts)
		if delta < 0 {
			delta = -delta
		}
		if delta > window {
			continue
		}
		if best == nil || d.CreatedAt.After(best.CreatedAt) {
			best = d
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStorage) FindPhotoHostByMessageID(ctx context.Context, chatID int64, messageID, span int) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Draft
	bestDist := span + 1
	for _, d := range s.drafts {
		if d.SourceChatID != chatID || !d.Status.Actionable() {
			continue
		}
		dist := d.SourceMessageID - messageID
		if dist < 0 {
			dist = -dist
		}
		if dist <= span && dist < bestDist {
			best = d
			bestDist = dist
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStorage) UpdateDraftStatus(ctx context.Context, id int64, next models.DraftStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return ErrNotFound
	}
	if !d.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	d.Status = next
	d.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) UpdateDraftFields(ctx context.Context, draft *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[draft.ID]
	if !ok {
		return ErrNotFound
	}
	d.Title = draft.Title
	d.StartTime = draft.StartTime
	d.EndTime = draft.EndTime
	d.Venue = draft.Venue
	d.CityName = draft.CityName
	d.Description = draft.Description
	d.AdminNotes = draft.AdminNotes
	d.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) AppendToGallery(ctx context.Context, id int64, ref models.ImageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return ErrNotFound
	}
	d.AddImage(ref)
	d.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) ReplaceImages(ctx context.Context, id int64, cover *models.ImageRef, gallery []models.ImageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return ErrNotFound
	}
	if cover != nil {
		cp := *cover
		d.CoverImage = &cp
	} else {
		d.CoverImage = nil
	}
	d.Gallery = append([]models.ImageRef(nil), gallery...)
	d.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) ListDraftsByStatus(ctx context.Context, status models.DraftStatus, limit int) ([]*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Draft
	for _, d := range s.drafts {
		if d.Status == status {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) CreateDecisionRecord(ctx context.Context, rec *models.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	cp := *rec
	s.decisions[rec.DraftID] = &cp
	return nil
}

func (s *MemoryStorage) GetDecisionByDraft(ctx context.Context, draftID int64) (*models.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.decisions[draftID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStorage) GetRecentReviewed(ctx context.Context, limit int) ([]models.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.DecisionRecord
	for _, rec := range s.decisions {
		if rec.HumanVerdict != "" {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) SetHumanVerdict(ctx context.Context, draftID int64, verdict models.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.decisions[draftID]
	if !ok {
		return ErrNotFound
	}
	rec.HumanVerdict = verdict
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) AppendFeedback(ctx context.Context, draftID int64, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.decisions[draftID]
	if !ok {
		return ErrNotFound
	}
	if rec.Feedback != "" {
		rec.Feedback += "\n"
	}
	rec.Feedback += feedback
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	cp := *conv
	cp.Turns = append([]models.Turn(nil), conv.Turns...)
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetActiveConversation(ctx context.Context, chatID int64, messageID int) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.conversations {
		if c.SourceChatID == chatID && c.SourceMessageID == messageID && c.Status == models.ConversationActive {
			cp := *c
			cp.Turns = append([]models.Turn(nil), c.Turns...)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) AddTurn(ctx context.Context, conversationID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.Turns = append(c.Turns, turn)
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) SetConversationStatus(ctx context.Context, conversationID string, status models.ConversationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

// AddChannel seeds a channel, used by tests and local setups.
func (s *MemoryStorage) AddChannel(ch *models.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ch
	s.channels[ch.ChatID] = &cp
}

// AddCity seeds a city.
func (s *MemoryStorage) AddCity(c *models.City) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.cities[c.ID] = &cp
}

func (s *MemoryStorage) GetChannelByChatID(ctx context.Context, chatID int64) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (s *MemoryStorage) GetCity(ctx context.Context, id int64) (*models.City, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStorage) ListActiveChannels(ctx context.Context) ([]*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Channel
	for _, ch := range s.channels {
		if ch.IsActive {
			cp := *ch
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
