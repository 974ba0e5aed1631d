package report

// ============================================================================
// Build report
// 1. Serialize a finished RunResult to a JSON file
// 2. Atomic write (temp file + rename) so readers never see a partial report
// 3. Verify the schema version on load
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ChuLiYu/fontmake-mp/pkg/types"
)

// SchemaVersion is the only report layout Load accepts.
const SchemaVersion = 1

var (
	ErrCorruptedReport     = errors.New("build report is corrupted")
	ErrIncompatibleVersion = errors.New("build report schema version is incompatible")
	ErrReportNotFound      = errors.New("build report not found")
)

// Document is the on-disk layout of a build report.
type Document struct {
	SchemaVer   int             `json:"schema_ver"`
	GeneratedAt time.Time       `json:"generated_at"`
	Failed      int             `json:"failed"`
	ExitCode    int             `json:"exit_code"`
	Run         types.RunResult `json:"run"`
}

// Writer writes the report at a single path.
type Writer struct {
	path string
	mu   sync.Mutex
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write replaces the report with result.
//
// Flow:
//  1. Marshal with indentation for people reading it by hand
//  2. Write <path>.tmp
//  3. Rename over <path>
func (w *Writer) Write(result types.RunResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	doc := Document{
		SchemaVer:   SchemaVersion,
		GeneratedAt: time.Now().UTC(),
		Failed:      result.Failed(),
		ExitCode:    result.ExitCode(),
		Run:         result,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	tmpPath := w.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp report: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename report: %w", err)
	}
	return nil
}

// Load reads the report at path and checks its schema version.
func Load(path string) (Document, error) {
	var doc Document

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, fmt.Errorf("%w: %s", ErrReportNotFound, path)
		}
		return doc, fmt.Errorf("failed to read report: %w", err)
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrCorruptedReport, err)
	}
	if doc.SchemaVer != SchemaVersion {
		return doc, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, doc.SchemaVer, SchemaVersion)
	}
	return doc, nil
}

