// Package git commits audit snapshots to a local repository.
package git

import (
	"context"
	"errors"
	"fmt"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Status represents Git state following a commit attempt.
type Status struct {
	Committed bool
	Pending   bool
	Hash      string
}

// Options configure a snapshot repository.
type Options struct {
	Branch      string
	AuthorName  string
	AuthorEmail string
}

// Repo is a non-bare repository on the local filesystem.
type Repo struct {
	Path string
	repo *gogit.Repository
	opts Options
}

// Open opens the repository at path, initialising it on the configured
// branch when none exists.
func Open(path string, opts Options) (*Repo, error) {
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "credrelay"
	}
	repo, err := gogit.PlainOpen(path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainInitWithOptions(path, &gogit.PlainInitOptions{
			InitOptions: gogit.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(opts.Branch)},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &Repo{Path: path, repo: repo, opts: opts}, nil
}

// Commit stages files, given relative to the repository root, and records a
// commit when they changed.
func (r *Repo) Commit(ctx context.Context, message string, files ...string) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return Status{}, err
	}
	for _, f := range files {
		if _, err := wt.Add(f); err != nil {
			return Status{}, fmt.Errorf("stage %s: %w", f, err)
		}
	}
	st, err := wt.Status()
	if err != nil {
		return Status{}, err
	}
	if !staged(st) {
		return Status{Pending: !st.IsClean()}, nil
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: r.opts.AuthorName, Email: r.opts.AuthorEmail, When: time.Now()},
	})
	if err != nil {
		return Status{Pending: true}, fmt.Errorf("commit: %w", err)
	}
	after, err := wt.Status()
	if err != nil {
		return Status{Committed: true, Hash: hash.String()}, err
	}
	return Status{Committed: true, Pending: !after.IsClean(), Hash: hash.String()}, nil
}

func staged(st gogit.Status) bool {
	for _, fs := range st {
		if fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
			return true
		}
	}
	return false
}
