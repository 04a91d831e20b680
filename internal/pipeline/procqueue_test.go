package pipeline

import (
	"testing"

	"github.com/xaenox/afisha-bot/internal/models"
)

func post(chatID int64, messageID int) models.InboundPost {
	return models.InboundPost{ChatID: chatID, MessageID: messageID}
}

func TestProcQueueSingleFlight(t *testing.T) {
	q := NewProcQueue()

	if q.IsProcessing(-1) {
		t.Error("fresh queue should not be processing")
	}

	q.StartProcessing(-1)
	if !q.IsProcessing(-1) {
		t.Error("chat should be marked processing")
	}
	if q.IsProcessing(-2) {
		t.Error("other chats are independent")
	}

	if _, ok := q.FinishProcessing(-1); ok {
		t.Error("nothing was waiting")
	}
	if q.IsProcessing(-1) {
		t.Error("finish should clear the processing mark")
	}
}

func TestProcQueueFIFO(t *testing.T) {
	q := NewProcQueue()
	q.StartProcessing(-1)

	q.Enqueue(post(-1, 1))
	q.Enqueue(post(-1, 2))
	q.Enqueue(post(-1, 3))

	if got := q.WaitingCount(-1); got != 3 {
		t.Fatalf("waiting count = %d", got)
	}

	for want := 1; want <= 3; want++ {
		next, ok := q.FinishProcessing(-1)
		if !ok {
			t.Fatalf("expected waiting post %d", want)
		}
		if next.MessageID != want {
			t.Errorf("popped message %d, want %d (FIFO order)", next.MessageID, want)
		}
		q.StartProcessing(-1)
	}

	if _, ok := q.FinishProcessing(-1); ok {
		t.Error("queue should be drained")
	}
}

func TestProcQueueSeparateChats(t *testing.T) {
	q := NewProcQueue()
	q.StartProcessing(-1)
	q.Enqueue(post(-1, 1))
	q.Enqueue(post(-2, 9))

	next, ok := q.FinishProcessing(-1)
	if !ok || next.ChatID != -1 {
		t.Errorf("popped from wrong lane: %+v", next)
	}
	if got := q.WaitingCount(-2); got != 1 {
		t.Errorf("chat -2 queue disturbed, count = %d", got)
	}
}
