package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"metrocli/pkg/contracts/domain"
)

// currentPointer is the file naming the snapshot consumers should read.
const currentPointer = "CURRENT"

// Manifest records what a snapshot contains and when it was produced.
type Manifest struct {
	RunID            string    `json:"run_id"`
	CreatedAt        time.Time `json:"created_at"`
	DerivedFactRows  int       `json:"derived_fact_rows"`
	CategoryFactRows int       `json:"category_fact_rows"`
}

// WriteSnapshot materializes a full snapshot under baseDir and atomically
// repoints the CURRENT marker at it. Each run writes a fresh
// uuid-named directory, so a consumer following CURRENT always sees
// a complete snapshot: the pointer swap is a rename, never a partial write.
// Returns the snapshot directory path.
func WriteSnapshot(ctx context.Context, logger *slog.Logger, baseDir string, derived []domain.DerivedFact, category []domain.CategoryFact) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	runID := uuid.NewString()
	dir := filepath.Join(baseDir, "snapshot-"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	if err := WriteDerivedFacts(ctx, logger, filepath.Join(dir, "derived_facts.csv"), derived); err != nil {
		return "", err
	}
	if err := WriteCategoryFacts(ctx, logger, filepath.Join(dir, "category_facts.csv"), category); err != nil {
		return "", err
	}

	manifest := Manifest{
		RunID:            runID,
		CreatedAt:        time.Now().UTC(),
		DerivedFactRows:  len(derived),
		CategoryFactRows: len(category),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot manifest: %w", err)
	}

	// Write-then-rename so readers of CURRENT never observe a torn pointer.
	pointer := filepath.Join(baseDir, currentPointer)
	tmp := pointer + ".tmp"
	if err := os.WriteFile(tmp, []byte(filepath.Base(dir)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write snapshot pointer: %w", err)
	}
	if err := os.Rename(tmp, pointer); err != nil {
		return "", fmt.Errorf("swap snapshot pointer: %w", err)
	}

	logger.InfoContext(ctx, "published snapshot",
		slog.String("run_id", runID),
		slog.String("dir", dir),
		slog.Int("derived_rows", len(derived)),
		slog.Int("category_rows", len(category)))

	return dir, nil
}

// CurrentSnapshot resolves the CURRENT pointer to a snapshot directory.
func CurrentSnapshot(baseDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, currentPointer))
	if err != nil {
		return "", fmt.Errorf("read snapshot pointer: %w", err)
	}
	name := string(data)
	for len(name) > 0 && (name[len(name)-1] == '\n' || name[len(name)-1] == '\r') {
		name = name[:len(name)-1]
	}
	if name == "" {
		return "", fmt.Errorf("snapshot pointer is empty")
	}
	return filepath.Join(baseDir, name), nil
}
