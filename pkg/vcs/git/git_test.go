package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCommitSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := Open(dir, Options{AuthorName: "tester", AuthorEmail: "tester@localhost"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	write := func(body string) {
		if err := os.WriteFile(filepath.Join(dir, "audit.json"), []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	write(`[]`)
	st, err := repo.Commit(ctx, "audit: 0 ceremonies", "audit.json")
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if !st.Committed || st.Pending || st.Hash == "" {
		t.Fatalf("unexpected status %+v", st)
	}

	again, err := repo.Commit(ctx, "audit: unchanged", "audit.json")
	if err != nil {
		t.Fatalf("clean commit: %v", err)
	}
	if again.Committed || again.Pending {
		t.Fatalf("clean tree produced %+v", again)
	}

	write(`[{"id":"01A"}]`)
	next, err := repo.Commit(ctx, "audit: 1 ceremony", "audit.json")
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if !next.Committed || next.Hash == st.Hash {
		t.Fatalf("expected a new commit, got %+v", next)
	}

	reopened, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	head, err := reopened.repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Hash().String() != next.Hash || head.Name().Short() != "main" {
		t.Fatalf("unexpected head %s on %s", head.Hash(), head.Name())
	}
}
