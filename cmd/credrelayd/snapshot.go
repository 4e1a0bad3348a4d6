package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	historyDir    = "history"
	snapshotFile  = "audit.json"
	snapshotLimit = 1000
)

// commitSnapshot writes the most recent ceremonies to the history
// repository and commits them. It returns the new commit hash, or "" when
// nothing changed.
func (d *daemon) commitSnapshot(ctx context.Context) (string, error) {
	d.snapshotMu.Lock()
	defer d.snapshotMu.Unlock()

	ceremonies, err := d.store.Recent(ctx, snapshotLimit)
	if err != nil {
		return "", err
	}
	if err := writeSnapshot(d.repo.Path, ceremonies); err != nil {
		return "", err
	}
	status, err := d.repo.Commit(ctx, fmt.Sprintf("audit: %d ceremonies", len(ceremonies)), snapshotFile)
	if err != nil {
		return "", err
	}
	return status.Hash, nil
}

func writeSnapshot(dir string, v any) error {
	path := filepath.Join(dir, snapshotFile)
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
