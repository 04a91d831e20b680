package pipeline

import (
	"sync"

	"github.com/xaenox/afisha-bot/internal/models"
)

// ProcQueue serializes message handling per originating chat. It is advisory
// single-flight bookkeeping, not a hard lock: callers check IsProcessing
// before starting and park bursts in a FIFO waiting list. Photo grouping and
// deduplication both read-then-write shared state, so two messages of the
// same post racing each other would double-create drafts.
type ProcQueue struct {
	mu         sync.Mutex
	processing map[int64]bool
	waiting    map[int64][]models.InboundPost
}

func NewProcQueue() *ProcQueue {
	return &ProcQueue{
		processing: make(map[int64]bool),
		waiting:    make(map[int64][]models.InboundPost),
	}
}

// IsProcessing reports whether a message from chatID is currently in flight.
func (q *ProcQueue) IsProcessing(chatID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing[chatID]
}

// StartProcessing marks the chat as busy.
func (q *ProcQueue) StartProcessing(chatID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing[chatID] = true
}

// Enqueue parks a post that arrived while its chat was busy.
func (q *ProcQueue) Enqueue(post models.InboundPost) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.waiting[post.ChatID] = append(q.waiting[post.ChatID], post)
}

// FinishProcessing clears the busy mark and pops the next waiting post, if
// any. Re-dispatching the popped post is the caller's responsibility.
func (q *ProcQueue) FinishProcessing(chatID int64) (models.InboundPost, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, chatID)

	queue := q.waiting[chatID]
	if len(queue) == 0 {
		delete(q.waiting, chatID)
		return models.InboundPost{}, false
	}

	next := queue[0]
	if len(queue) == 1 {
		delete(q.waiting, chatID)
	} else {
		q.waiting[chatID] = queue[1:]
	}
	return next, true
}

// WaitingCount reports how many posts are parked for the chat.
func (q *ProcQueue) WaitingCount(chatID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting[chatID])
}
