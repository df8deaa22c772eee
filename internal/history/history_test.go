package history

import (
	"context"
	"testing"

	"github.com/fielddesk/chatcore/internal/store"
	"github.com/fielddesk/chatcore/pkg/models"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	st, err := store.Open(store.Config{WriterPath: dsn})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	log, err := Open(context.Background(), st)
	if err != nil {
		t.Fatalf("open history log: %v", err)
	}
	return log, "user-1"
}

func TestCreateAndGetThread(t *testing.T) {
	log, userID := newTestLog(t)
	ctx := context.Background()

	threadID, err := log.CreateThread(ctx, userID, "first thread", "gpt-5", "be terse")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	header, err := log.GetThread(ctx, userID, threadID)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if header == nil {
		t.Fatal("expected thread header, got nil")
	}
	if header.Title != "first thread" || header.Model != "gpt-5" {
		t.Errorf("unexpected header: %+v", header)
	}
}

func TestGetThreadWrongUserReturnsNil(t *testing.T) {
	log, userID := newTestLog(t)
	ctx := context.Background()

	threadID, err := log.CreateThread(ctx, userID, "private", "gpt-5", "")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	header, err := log.GetThread(ctx, "other-user", threadID)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if header != nil {
		t.Errorf("expected nil header for foreign user, got %+v", header)
	}
}

func TestAppendAndGetMessages(t *testing.T) {
	log, userID := newTestLog(t)
	ctx := context.Background()

	threadID, err := log.CreateThread(ctx, userID, "chat", "gpt-5", "")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	ok, err := log.AppendMessage(ctx, userID, threadID, models.RoleUser, models.MessageText, "hello", "", "")
	if err != nil || !ok {
		t.Fatalf("append message: ok=%v err=%v", ok, err)
	}
	ok, err = log.AppendMessage(ctx, userID, threadID, models.RoleAssistant, models.MessageText, "hi there", "gpt-5", "")
	if err != nil || !ok {
		t.Fatalf("append message: ok=%v err=%v", ok, err)
	}

	msgs, err := log.GetMessages(ctx, userID, threadID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "hi there" {
		t.Errorf("unexpected message order/content: %+v", msgs)
	}
}

func TestAppendMessageToForeignThreadFails(t *testing.T) {
	log, userID := newTestLog(t)
	ctx := context.Background()

	threadID, err := log.CreateThread(ctx, userID, "chat", "gpt-5", "")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	ok, err := log.AppendMessage(ctx, "other-user", threadID, models.RoleUser, models.MessageText, "hi", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected append to a foreign thread to fail")
	}
}

func TestArchiveThread(t *testing.T) {
	log, userID := newTestLog(t)
	ctx := context.Background()

	threadID, err := log.CreateThread(ctx, userID, "to archive", "gpt-5", "")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	active, err := log.ListThreads(ctx, userID, false)
	if err != nil || len(active) != 1 {
		t.Fatalf("expected 1 active thread, got %d (err=%v)", len(active), err)
	}

	if err := log.ArchiveThread(ctx, userID, threadID); err != nil {
		t.Fatalf("archive thread: %v", err)
	}

	active, err = log.ListThreads(ctx, userID, false)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected 0 active threads after archive, got %d (err=%v)", len(active), err)
	}
	archived, err := log.ListThreads(ctx, userID, true)
	if err != nil || len(archived) != 1 {
		t.Fatalf("expected 1 archived thread, got %d (err=%v)", len(archived), err)
	}
}
