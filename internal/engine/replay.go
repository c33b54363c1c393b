package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/petal/internal/ir"
)

// batchFileSuffix is the extension of materialized batches.
const batchFileSuffix = ".json"

// WriteBatch materializes b as canonical JSON under dir, named
// <label>_<rand>.json, and records the path in b.Filename. The file is
// written to a temp name and renamed so readers never see a partial batch.
func WriteBatch(dir string, b *ir.Batch) (string, error) {
	path := filepath.Join(dir, b.DefaultFilename())
	b.Filename = path

	doc, err := ir.MarshalCanonical(b)
	if err != nil {
		return "", fmt.Errorf("encode batch %s: %w", b.UUID, err)
	}

	tmp, err := os.CreateTemp(dir, ".batch-*")
	if err != nil {
		return "", fmt.Errorf("write batch %s: %w", b.UUID, err)
	}
	if _, err := tmp.Write(append(doc, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write batch %s: %w", b.UUID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write batch %s: %w", b.UUID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write batch %s: %w", b.UUID, err)
	}
	return path, nil
}

// ReadBatch loads a materialized batch. Numbers in entity data are kept as
// json.Number so they re-encode exactly.
func ReadBatch(path string) (*ir.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var b ir.Batch
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", path, err)
	}
	if b.UUID == "" || b.Label == "" {
		return nil, fmt.Errorf("decode batch %s: missing uuid or label", path)
	}
	b.Filename = path
	return &b, nil
}

// BatchFiles lists materialized batches in dir, oldest first. Files with
// equal modification times are ordered by name.
func BatchFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	type file struct {
		path string
		mod  int64
	}
	var files []file
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, batchFileSuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("list batches: %w", err)
		}
		files = append(files, file{path: filepath.Join(dir, name), mod: info.ModTime().UnixNano()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].mod != files[j].mod {
			return files[i].mod < files[j].mod
		}
		return files[i].path < files[j].path
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// Replay pushes every materialized batch in dir onto q.
//
// Replay relies on the same idempotency as normal operation: batches keep
// their uuids, entities keep theirs, and the store merges rather than
// inserts, so replaying batches that were already persisted changes
// nothing. Unreadable files are logged and skipped. Returns the number of
// batches queued.
func Replay(ctx context.Context, dir string, q *Queue) (int, error) {
	paths, err := BatchFiles(dir)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return queued, err
		}
		b, err := ReadBatch(path)
		if err != nil {
			slog.Warn("skipping unreadable batch file", "file", path, "error", err)
			continue
		}
		if !q.Push(b) {
			return queued, fmt.Errorf("replay %s: queue closed", path)
		}
		queued++
	}

	slog.Info("batches replayed", "dir", dir, "count", queued)
	return queued, nil
}
