package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/xaenox/afisha-bot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

const draftColumns = `id, source_chat_id, source_message_id, channel_id, title,
	start_time, end_time, venue, city_name, description, cover_image, gallery,
	source_link, admin_notes, status, created_at, updated_at`

func (s *PostgresStorage) CreateDraft(ctx context.Context, draft *models.Draft) error {
	cover, gallery, err := marshalImages(draft)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO drafts (source_chat_id, source_message_id, channel_id, title,
			start_time, end_time, venue, city_name, description, cover_image,
			gallery, source_link, admin_notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query,
		draft.SourceChatID,
		draft.SourceMessageID,
		draft.ChannelID,
		draft.Title,
		draft.StartTime,
		draft.EndTime,
		draft.Venue,
		draft.CityName,
		draft.Description,
		cover,
		gallery,
		draft.SourceLink,
		draft.AdminNotes,
		draft.Status,
	).Scan(&draft.ID, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating draft: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetDraft(ctx context.Context, id int64) (*models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE id = $1`
	return s.scanDraft(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStorage) FindDraftBySource(ctx context.Context, chatID int64, messageID int) (*models.Draft, error) {
	query := `SELECT ` + draftColumns + `
		FROM drafts
		WHERE source_chat_id = $1 AND source_message_id = $2`
	return s.scanDraft(s.db.QueryRowContext(ctx, query, chatID, messageID))
}

func (s *PostgresStorage) HasDuplicateDraft(ctx context.Context, title string, start time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM drafts
			WHERE LOWER(TRIM(title)) = LOWER(TRIM($1))
			  AND start_time = $2
			  AND status <> $3
		)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, title, start, models.StatusRejected).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking duplicate draft: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) FindPhotoHostByTime(ctx context.Context, chatID int64, ts time.Time, window time.Duration) (*models.Draft, error) {
	query := `SELECT ` + draftColumns + `
		FROM drafts
		WHERE source_chat_id = $1
		  AND status IN ($2, $3)
		  AND created_at BETWEEN $4 AND $5
		ORDER BY created_at DESC
		LIMIT 1`

	return s.scanDraft(s.db.QueryRowContext(ctx, query,
		chatID, models.StatusPending, models.StatusNew,
		ts.Add(-window), ts.Add(window)))
}

func (s *PostgresStorage) FindPhotoHostByMessageID(ctx context.Context, chatID int64, messageID, span int) (*models.Draft, error) {
	query := `SELECT ` + draftColumns + `
		FROM drafts
		WHERE source_chat_id = $1
		  AND status IN ($2, $3)
		  AND source_message_id BETWEEN $4 AND $5
		ORDER BY ABS(source_message_id - $6)
		LIMIT 1`

	return s.scanDraft(s.db.QueryRowContext(ctx, query,
		chatID, models.StatusPending, models.StatusNew,
		messageID-span, messageID+span, messageID))
}

// UpdateDraftStatus validates the transition against the current row inside
// a transaction. Single-process deployment is assumed, this is the only
// defense against double-processing one draft.
func (s *PostgresStorage) UpdateDraftStatus(ctx context.Context, id int64, next models.DraftStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current models.DraftStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM drafts WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error reading draft status: %w", err)
	}

	if !current.CanTransitionTo(next) {
		return ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE drafts SET status = $1, updated_at = NOW() WHERE id = $2`, next, id); err != nil {
		return fmt.Errorf("error updating draft status: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStorage) UpdateDraftFields(ctx context.Context, draft *models.Draft) error {
	query := `
		UPDATE drafts
		SET title = $1, start_time = $2, end_time = $3, venue = $4,
		    city_name = $5, description = $6, admin_notes = $7, updated_at = NOW()
		WHERE id = $8`

	res, err := s.db.ExecContext(ctx, query,
		draft.Title, draft.StartTime, draft.EndTime, draft.Venue,
		draft.CityName, draft.Description, draft.AdminNotes, draft.ID)
	if err != nil {
		return fmt.Errorf("error updating draft fields: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) AppendToGallery(ctx context.Context, id int64, ref models.ImageRef) error {
	refJSON, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("error marshaling image ref: %w", err)
	}

	// First image becomes the cover, the rest go to the gallery. An image
	// already held as cover or in the gallery is not appended again.
	query := `
		UPDATE drafts
		SET cover_image = CASE WHEN cover_image IS NULL THEN $1::jsonb ELSE cover_image END,
		    gallery = CASE
		        WHEN cover_image IS NULL THEN gallery
		        WHEN cover_image = $1::jsonb OR gallery @> jsonb_build_array($1::jsonb) THEN gallery
		        ELSE gallery || $1::jsonb
		    END,
		    updated_at = NOW()
		WHERE id = $2`

	res, err := s.db.ExecContext(ctx, query, refJSON, id)
	if err != nil {
		return fmt.Errorf("error appending to gallery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) ReplaceImages(ctx context.Context, id int64, cover *models.ImageRef, gallery []models.ImageRef) error {
	draft := &models.Draft{CoverImage: cover, Gallery: gallery}
	coverJSON, galleryJSON, err := marshalImages(draft)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE drafts SET cover_image = $1, gallery = $2, updated_at = NOW() WHERE id = $3`,
		coverJSON, galleryJSON, id)
	if err != nil {
		return fmt.Errorf("error replacing images: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) ListDraftsByStatus(ctx context.Context, status models.DraftStatus, limit int) ([]*models.Draft, error) {
	query := `SELECT ` + draftColumns + `
		FROM drafts
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*models.Draft
	for rows.Next() {
		d, err := s.scanDraftRow(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStorage) scanDraft(row *sql.Row) (*models.Draft, error) {
	d, err := s.scanDraftRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *PostgresStorage) scanDraftRow(row rowScanner) (*models.Draft, error) {
	var d models.Draft
	var cover, gallery []byte

	err := row.Scan(
		&d.ID,
		&d.SourceChatID,
		&d.SourceMessageID,
		&d.ChannelID,
		&d.Title,
		&d.StartTime,
		&d.EndTime,
		&d.Venue,
		&d.CityName,
		&d.Description,
		&cover,
		&gallery,
		&d.SourceLink,
		&d.AdminNotes,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(cover) > 0 {
		var ref models.ImageRef
		if err := json.Unmarshal(cover, &ref); err != nil {
			return nil, fmt.Errorf("error unmarshaling cover image: %w", err)
		}
		d.CoverImage = &ref
	}
	if len(gallery) > 0 {
		if err := json.Unmarshal(gallery, &d.Gallery); err != nil {
			return nil, fmt.Errorf("error unmarshaling gallery: %w", err)
		}
	}
	return &d, nil
}

func marshalImages(draft *models.Draft) ([]byte, []byte, error) {
	var cover []byte
	if draft.CoverImage != nil {
		var err error
		cover, err = json.Marshal(draft.CoverImage)
		if err != nil {
			return nil, nil, fmt.Errorf("error marshaling cover image: %w", err)
		}
	}
	gallery := draft.Gallery
	if gallery == nil {
		gallery = []models.ImageRef{}
	}
	galleryJSON, err := json.Marshal(gallery)
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling gallery: %w", err)
	}
	return cover, galleryJSON, nil
}

func (s *PostgresStorage) CreateDecisionRecord(ctx context.Context, rec *models.DecisionRecord) error {
	extracted, err := json.Marshal(rec.Extracted)
	if err != nil {
		return fmt.Errorf("error marshaling extraction: %w", err)
	}

	query := `
		INSERT INTO decision_records (id, draft_id, source_chat_id, source_message_id,
			original_text, extracted, predicted_verdict, predicted_confidence,
			predicted_reasoning, human_verdict, feedback)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query,
		rec.ID,
		rec.DraftID,
		rec.SourceChatID,
		rec.SourceMessageID,
		rec.OriginalText,
		extracted,
		rec.Predicted.Verdict,
		rec.Predicted.Confidence,
		rec.Predicted.Reasoning,
		rec.HumanVerdict,
		rec.Feedback,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating decision record: %w", err)
	}
	return nil
}

const decisionColumns = `id, draft_id, source_chat_id, source_message_id, original_text,
	extracted, predicted_verdict, predicted_confidence, predicted_reasoning,
	human_verdict, feedback, created_at, updated_at`

func (s *PostgresStorage) GetDecisionByDraft(ctx context.Context, draftID int64) (*models.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + ` FROM decision_records WHERE draft_id = $1`

	rec, err := scanDecision(s.db.QueryRowContext(ctx, query, draftID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStorage) GetRecentReviewed(ctx context.Context, limit int) ([]models.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + `
		FROM decision_records
		WHERE human_verdict <> ''
		ORDER BY updated_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing decision records: %w", err)
	}
	defer rows.Close()

	var out []models.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanDecision(row rowScanner) (*models.DecisionRecord, error) {
	var rec models.DecisionRecord
	var extracted []byte

	err := row.Scan(
		&rec.ID,
		&rec.DraftID,
		&rec.SourceChatID,
		&rec.SourceMessageID,
		&rec.OriginalText,
		&extracted,
		&rec.Predicted.Verdict,
		&rec.Predicted.Confidence,
		&rec.Predicted.Reasoning,
		&rec.HumanVerdict,
		&rec.Feedback,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(extracted, &rec.Extracted); err != nil {
		return nil, fmt.Errorf("error unmarshaling extraction: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStorage) SetHumanVerdict(ctx context.Context, draftID int64, verdict models.Verdict) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE decision_records SET human_verdict = $1, updated_at = NOW() WHERE draft_id = $2`,
		verdict, draftID)
	if err != nil {
		return fmt.Errorf("error setting human verdict: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) AppendFeedback(ctx context.Context, draftID int64, feedback string) error {
	query := `
		UPDATE decision_records
		SET feedback = CASE WHEN feedback = '' THEN $1 ELSE feedback || E'\n' || $1 END,
		    updated_at = NOW()
		WHERE draft_id = $2`

	res, err := s.db.ExecContext(ctx, query, feedback, draftID)
	if err != nil {
		return fmt.Errorf("error appending feedback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	turns := conv.Turns
	if turns == nil {
		turns = []models.Turn{}
	}
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("error marshaling turns: %w", err)
	}

	query := `
		INSERT INTO conversations (id, draft_id, source_chat_id, source_message_id, status, turns)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query,
		conv.ID, conv.DraftID, conv.SourceChatID, conv.SourceMessageID,
		conv.Status, turnsJSON,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating conversation: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetActiveConversation(ctx context.Context, chatID int64, messageID int) (*models.Conversation, error) {
	query := `
		SELECT id, draft_id, source_chat_id, source_message_id, status, turns, created_at, updated_at
		FROM conversations
		WHERE source_chat_id = $1 AND source_message_id = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1`

	var conv models.Conversation
	var turns []byte
	err := s.db.QueryRowContext(ctx, query, chatID, messageID, models.ConversationActive).Scan(
		&conv.ID,
		&conv.DraftID,
		&conv.SourceChatID,
		&conv.SourceMessageID,
		&conv.Status,
		&turns,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}

	if err := json.Unmarshal(turns, &conv.Turns); err != nil {
		return nil, fmt.Errorf("error unmarshaling turns: %w", err)
	}
	return &conv, nil
}

func (s *PostgresStorage) AddTurn(ctx context.Context, conversationID string, turn models.Turn) error {
	turnJSON, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("error marshaling turn: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET turns = turns || $1::jsonb, updated_at = NOW() WHERE id = $2`,
		turnJSON, conversationID)
	if err != nil {
		return fmt.Errorf("error adding turn: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) SetConversationStatus(ctx context.Context, conversationID string, status models.ConversationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, conversationID)
	if err != nil {
		return fmt.Errorf("error updating conversation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) GetChannelByChatID(ctx context.Context, chatID int64) (*models.Channel, error) {
	query := `SELECT id, chat_id, title, is_active, city_id, created_at FROM channels WHERE chat_id = $1`

	var ch models.Channel
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(
		&ch.ID, &ch.ChatID, &ch.Title, &ch.IsActive, &ch.CityID, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying channel: %w", err)
	}
	return &ch, nil
}

func (s *PostgresStorage) GetCity(ctx context.Context, id int64) (*models.City, error) {
	var c models.City
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, timezone FROM cities WHERE id = $1`, id).Scan(&c.ID, &c.Name, &c.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying city: %w", err)
	}
	return &c, nil
}

func (s *PostgresStorage) ListActiveChannels(ctx context.Context) ([]*models.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, title, is_active, city_id, created_at FROM channels WHERE is_active ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("error listing channels: %w", err)
	}
	defer rows.Close()

	var out []*models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.ChatID, &ch.Title, &ch.IsActive, &ch.CityID, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning channel: %w", err)
		}
		out = append(out, &ch)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
