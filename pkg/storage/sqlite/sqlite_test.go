package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestStoreRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, WithJournalMode("wal"), WithSynchronous("normal"))
	base := time.UnixMilli(1_700_000_000_000)

	records := []Ceremony{
		{Origin: "native:bridge", ID: "01A", Type: "CredentialCreationRequest", RPID: "example.com", Decision: DecisionApproved, ReceivedAt: base, AnsweredAt: base.Add(time.Second)},
		{Origin: "native:bridge", ID: "01B", Type: "CredentialGetRequest", Decision: DecisionAnswered, ReceivedAt: base.Add(2 * time.Second), AnsweredAt: base.Add(2 * time.Second)},
		{Origin: "https://example.com", ID: "01A", Type: "CredentialCreationRequest", RPID: "example.com", Decision: DecisionDenied, ReceivedAt: base.Add(3 * time.Second), AnsweredAt: base.Add(3 * time.Second)},
	}
	for _, c := range records {
		if err := store.Record(ctx, c); err != nil {
			t.Fatalf("record %s/%s: %v", c.Origin, c.ID, err)
		}
	}
	n, err := store.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 ceremonies, got %d (%v)", n, err)
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Origin != "https://example.com" || got[1].ID != "01B" {
		t.Fatalf("unexpected order %+v", got)
	}
	if !got[0].ReceivedAt.Equal(base.Add(3 * time.Second)) {
		t.Fatalf("timestamp not preserved: %s", got[0].ReceivedAt)
	}
}

func TestStoreRecordReplacesOnAbort(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	now := time.UnixMilli(1_700_000_000_000)
	first := Ceremony{Origin: "native:bridge", ID: "01A", Type: "CredentialCreationRequest", RPID: "example.com", Decision: DecisionApproved, ReceivedAt: now, AnsweredAt: now}
	if err := store.Record(ctx, first); err != nil {
		t.Fatalf("record: %v", err)
	}
	abort := Ceremony{Origin: "native:bridge", ID: "01A", Type: "CredentialCreationRequest", Decision: DecisionAborted, ReceivedAt: now, AnsweredAt: now.Add(time.Second)}
	if err := store.Record(ctx, abort); err != nil {
		t.Fatalf("record abort: %v", err)
	}
	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].Decision != DecisionAborted || got[0].RPID != "example.com" {
		t.Fatalf("expected one aborted ceremony keeping its rp id, got %+v", got)
	}
}

func TestOpenRejectsUnknownPragmaValues(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "a.db"), WithJournalMode("wal; DROP TABLE meta")); err == nil {
		t.Fatal("expected error for unknown journal mode")
	}
}
