package history

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chirpling-ai/chirpling/pkg/call"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CHIRPLING_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CHIRPLING_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_ArchiveRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	started := time.Now().Add(-90 * time.Second).Truncate(time.Millisecond)
	ended := started.Add(90 * time.Second)
	id, err := store.Archive(ctx, ArchiveRequest{
		SessionID:   "sess-roundtrip",
		BotID:       "7372howl",
		StartedAt:   started,
		EndedAt:     ended,
		DurationSec: 90,
		EndReason:   "hangup",
		Messages: []call.Message{
			{Role: call.RoleAssistant, Text: "Hello!", Complete: true, CreatedAt: started},
			{Role: call.RoleUser, Text: "Hi there", Complete: true, CreatedAt: started.Add(2 * time.Second)},
		},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	msgs, err := store.Transcript(ctx, id)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages=%d", len(msgs))
	}
	if msgs[0].Role != call.RoleAssistant || msgs[0].Text != "Hello!" {
		t.Fatalf("msgs[0]=%+v", msgs[0])
	}
	if msgs[1].Role != call.RoleUser || msgs[1].Text != "Hi there" {
		t.Fatalf("msgs[1]=%+v", msgs[1])
	}

	records, err := store.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	found := false
	for _, rec := range records {
		if rec.ID == id {
			found = true
			if rec.DurationSec != 90 || rec.EndReason != "hangup" {
				t.Fatalf("record=%+v", rec)
			}
		}
	}
	if !found {
		t.Fatal("archived record not listed")
	}
}

func TestStore_TranscriptMissingRecord(t *testing.T) {
	store := testStore(t)

	_, err := store.Transcript(context.Background(), uuid.MustParse("00000000-0000-0000-0000-00000000dead"))
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("err=%v", err)
	}
}
