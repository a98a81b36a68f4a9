package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dedup_bot/internal/model"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustRecord(t *testing.T, s *SQLite, messageID, channelID int64, postIDs ...int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.RecordMessage(ctx, messageID, channelID); err != nil {
		t.Fatalf("record message %d: %v", messageID, err)
	}
	for _, postID := range postIDs {
		if _, err := s.RecordPost(ctx, postID, "someone"); err != nil {
			t.Fatalf("record post %d: %v", postID, err)
		}
		if _, err := s.RecordLink(ctx, messageID, postID); err != nil {
			t.Fatalf("record link %d->%d: %v", messageID, postID, err)
		}
	}
}

func TestRecordIdempotence(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name   string
		insert func() (bool, error)
	}{
		{
			name: "message",
			insert: func() (bool, error) {
				return s.RecordMessage(ctx, 100, 1)
			},
		},
		{
			name: "post",
			insert: func() (bool, error) {
				return s.RecordPost(ctx, 555, "alice")
			},
		},
		{
			name: "link",
			insert: func() (bool, error) {
				return s.RecordLink(ctx, 100, 555)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := tt.insert()
			if err != nil {
				t.Fatalf("first insert: %v", err)
			}
			if !created {
				t.Fatal("first insert: expected created=true")
			}

			created, err = tt.insert()
			if err != nil {
				t.Fatalf("second insert: %v", err)
			}
			if created {
				t.Fatal("second insert: expected created=false")
			}
		})
	}
}

func TestExistsAndLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	mustRecord(t, s, 100, 1, 10, 20)

	exists, err := s.PostExists(ctx, 10)
	if err != nil {
		t.Fatalf("post exists: %v", err)
	}
	if !exists {
		t.Error("expected post 10 to exist")
	}

	exists, err = s.PostExists(ctx, 999)
	if err != nil {
		t.Fatalf("post exists: %v", err)
	}
	if exists {
		t.Error("expected post 999 to not exist")
	}

	exists, err = s.MessageExists(ctx, 100)
	if err != nil {
		t.Fatalf("message exists: %v", err)
	}
	if !exists {
		t.Error("expected message 100 to exist")
	}

	got, err := s.LinksForMessage(ctx, 100)
	if err != nil {
		t.Fatalf("links for message: %v", err)
	}
	if diff := cmp.Diff([]int64{10, 20}, got); diff != "" {
		t.Errorf("LinksForMessage mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteMessageCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	// P1 (10) linked only from A (100), P2 (20) linked from A and B (200).
	mustRecord(t, s, 100, 1, 10, 20)
	mustRecord(t, s, 200, 1, 20)

	if err := s.DeleteMessageCascade(ctx, 100); err != nil {
		t.Fatalf("cascade delete: %v", err)
	}

	exists, err := s.MessageExists(ctx, 100)
	if err != nil {
		t.Fatalf("message exists: %v", err)
	}
	if exists {
		t.Error("expected message 100 to be deleted")
	}

	exists, err = s.PostExists(ctx, 10)
	if err != nil {
		t.Fatalf("post exists: %v", err)
	}
	if exists {
		t.Error("expected orphaned post 10 to be deleted")
	}

	exists, err = s.PostExists(ctx, 20)
	if err != nil {
		t.Fatalf("post exists: %v", err)
	}
	if !exists {
		t.Error("expected still-referenced post 20 to survive")
	}

	links, err := s.LinksForMessage(ctx, 200)
	if err != nil {
		t.Fatalf("links for message: %v", err)
	}
	if diff := cmp.Diff([]int64{20}, links); diff != "" {
		t.Errorf("surviving links mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteUntrackedMessageIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if err := s.DeleteMessageCascade(ctx, 12345); err != nil {
		t.Fatalf("cascade delete of unknown message: %v", err)
	}
}

func TestLastMessagePerChannel(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	mustRecord(t, s, 100, 1, 10)
	mustRecord(t, s, 150, 1, 11)
	mustRecord(t, s, 120, 2, 12)

	got, err := s.LastMessagePerChannel(ctx)
	if err != nil {
		t.Fatalf("last message per channel: %v", err)
	}

	want := map[int64]int64{1: 150, 2: 120}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LastMessagePerChannel mismatch (-want +got):\n%s", diff)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	mustRecord(t, s, 100, 1, 10)
	mustRecord(t, s, 200, 2, 20)

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}

	last, err := s.LastMessagePerChannel(ctx)
	if err != nil {
		t.Fatalf("last message per channel: %v", err)
	}
	if len(last) != 0 {
		t.Errorf("expected empty ledger, got %d channels", len(last))
	}
	for _, postID := range []int64{10, 20} {
		exists, err := s.PostExists(ctx, postID)
		if err != nil {
			t.Fatalf("post exists: %v", err)
		}
		if exists {
			t.Errorf("expected post %d to be wiped", postID)
		}
	}
}

func TestClearChannelSweepsOrphans(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	// Channel 1: message 100 -> posts 10, 20. Channel 2: message 200 -> post 20.
	mustRecord(t, s, 100, 1, 10, 20)
	mustRecord(t, s, 200, 2, 20)

	if err := s.ClearChannel(ctx, 1); err != nil {
		t.Fatalf("clear channel: %v", err)
	}

	exists, err := s.MessageExists(ctx, 100)
	if err != nil {
		t.Fatalf("message exists: %v", err)
	}
	if exists {
		t.Error("expected channel 1 message to be wiped")
	}

	exists, err = s.PostExists(ctx, 10)
	if err != nil {
		t.Fatalf("post exists: %v", err)
	}
	if exists {
		t.Error("expected orphaned post 10 to be swept")
	}

	exists, err = s.PostExists(ctx, 20)
	if err != nil {
		t.Fatalf("post exists: %v", err)
	}
	if !exists {
		t.Error("expected post 20, still linked from channel 2, to survive")
	}
}

func TestInTxRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	sentinel := errors.New("abort")
	err := s.InTx(ctx, func(tx Ledger) error {
		if _, err := tx.RecordMessage(ctx, 100, 1); err != nil {
			return err
		}
		if _, err := tx.RecordPost(ctx, 10, "alice"); err != nil {
			return err
		}
		if _, err := tx.RecordLink(ctx, 100, 10); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	exists, err := s.MessageExists(ctx, 100)
	if err != nil {
		t.Fatalf("message exists: %v", err)
	}
	if exists {
		t.Error("expected rolled-back message to be absent")
	}
	exists, err = s.PostExists(ctx, 10)
	if err != nil {
		t.Fatalf("post exists: %v", err)
	}
	if exists {
		t.Error("expected rolled-back post to be absent")
	}
}

func TestInTxCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	err := s.InTx(ctx, func(tx Ledger) error {
		if _, err := tx.RecordMessage(ctx, 100, 1); err != nil {
			return err
		}
		_, err := tx.RecordPost(ctx, 10, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("in tx: %v", err)
	}

	exists, err := s.MessageExists(ctx, 100)
	if err != nil {
		t.Fatalf("message exists: %v", err)
	}
	if !exists {
		t.Error("expected committed message to exist")
	}
}

func TestPolicyDefaultsAndUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	p, configured, err := s.Policy(ctx, 42)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if configured {
		t.Fatal("expected unconfigured channel")
	}
	want := model.ChannelPolicy{ChannelID: 42, AllowHistoryBackfill: true}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("default policy mismatch (-want +got):\n%s", diff)
	}

	if err := s.SetPolicy(ctx, 42, model.PolicyCheckDuplicates, true); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	if err := s.SetPolicy(ctx, 42, model.PolicyRecordNew, true); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	if err := s.SetPolicy(ctx, 42, model.PolicyAllowHistory, false); err != nil {
		t.Fatalf("set policy: %v", err)
	}

	p, configured, err = s.Policy(ctx, 42)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if !configured {
		t.Fatal("expected configured channel")
	}
	want = model.ChannelPolicy{ChannelID: 42, CheckDuplicates: true, RecordNew: true}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("updated policy mismatch (-want +got):\n%s", diff)
	}

	// Flipping one flag must not disturb the others.
	if err := s.SetPolicy(ctx, 42, model.PolicyCheckDuplicates, false); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	p, _, err = s.Policy(ctx, 42)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if p.CheckDuplicates || !p.RecordNew {
		t.Errorf("unexpected policy after single-flag update: %+v", p)
	}
}

func TestSetPolicyUnknownField(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if err := s.SetPolicy(ctx, 1, model.PolicyField("drop_table"), true); err == nil {
		t.Fatal("expected error for unknown policy field")
	}
}

// Ensure the Store interface is satisfied.
var _ Store = (*SQLite)(nil)
