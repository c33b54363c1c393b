package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// WorkDirs are the working directories kept under the data root.
var WorkDirs = []string{"logs", "profiles", "batches", "images"}

// placeholder marks a working directory as intentionally empty.
const placeholder = ".placeholder"

// Clean deletes and recreates every working directory under root, each
// holding only an empty placeholder file. Other content of root is left
// alone.
func Clean(root string) error {
	for _, name := range WorkDirs {
		dir := filepath.Join(root, name)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
		if err := os.WriteFile(filepath.Join(dir, placeholder), nil, 0o644); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureDirs creates any missing working directory without touching
// existing content.
func EnsureDirs(root string) error {
	for _, name := range WorkDirs {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
