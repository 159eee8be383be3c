// Package report implements the reporting tail of both pipelines: a durable
// action log appended after every run and a machine-readable pool summary
// descriptor rewritten after successful pool builds.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/desertwitch/poolsmith/internal/schema"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type osProvider interface {
	MkdirAll(path string, perm os.FileMode) error
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

// PoolSummary is the durable descriptor of a built storage pool.
type PoolSummary struct {
	Name        string    `yaml:"name"`
	Level       string    `yaml:"level"`
	GroupNode   string    `yaml:"groupNode"`
	Members     []string  `yaml:"members"`
	VolumeGroup string    `yaml:"volumeGroup"`
	DataVolume  string    `yaml:"dataVolume"`
	Cached      bool      `yaml:"cached"`
	Filesystem  string    `yaml:"filesystem"`
	UUID        string    `yaml:"uuid"`
	Mountpoint  string    `yaml:"mountpoint"`
	RawBytes    uint64    `yaml:"rawBytes"`
	RawSize     string    `yaml:"rawSize"`
	BuiltAt     time.Time `yaml:"builtAt"`
}

// Handler is the principal implementation of the reporting tail.
type Handler struct {
	osHandler osProvider

	actionLogFile string
	summaryFile   string
}

// NewHandler returns a pointer to a new reporting [Handler] writing to the
// given action log and summary descriptor paths.
func NewHandler(osHandler osProvider, actionLogFile string, summaryFile string) *Handler {
	return &Handler{
		osHandler:     osHandler,
		actionLogFile: actionLogFile,
		summaryFile:   summaryFile,
	}
}

// AppendActions appends one timestamped line per stage outcome to the action
// log, creating it (and its directory) on first use. The log is append-only;
// it is the operator's audit trail across runs.
func (h *Handler) AppendActions(subject string, outcomes []schema.Outcome) error {
	if err := h.osHandler.MkdirAll(filepath.Dir(h.actionLogFile), 0o755); err != nil {
		return fmt.Errorf("(report) failed to create log directory: %w", err)
	}

	file, err := h.osHandler.OpenFile(h.actionLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("(report) failed to open %s: %w", h.actionLogFile, err)
	}
	defer file.Close()

	timestamp := time.Now().Format(time.RFC3339)

	for _, outcome := range outcomes {
		line := fmt.Sprintf("%s [%s] %s %s", timestamp, outcome.Status, subject, outcome.Stage)
		if outcome.Reason != "" {
			line += ": " + outcome.Reason
		}
		if outcome.Err != nil {
			line += fmt.Sprintf(" (%v)", outcome.Err)
		}

		if _, err := file.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("(report) failed to append to %s: %w", h.actionLogFile, err)
		}
	}

	return nil
}

// WriteSummary rewrites the pool summary descriptor atomically via a
// temporary sibling file. The descriptor always reflects the most recently
// built pool.
func (h *Handler) WriteSummary(summary *PoolSummary) (err error) {
	summary.RawSize = humanize.IBytes(summary.RawBytes)

	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("(report) failed to render summary: %w", err)
	}

	if err := h.osHandler.MkdirAll(filepath.Dir(h.summaryFile), 0o755); err != nil {
		return fmt.Errorf("(report) failed to create summary directory: %w", err)
	}

	var written bool

	tmpPath := h.summaryFile + ".poolsmith"
	defer func() {
		if !written {
			h.osHandler.Remove(tmpPath) //nolint:errcheck
		}
	}()

	file, err := h.osHandler.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("(report) failed to open %s: %w", tmpPath, err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()

		return fmt.Errorf("(report) failed to write %s: %w", tmpPath, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()

		return fmt.Errorf("(report) failed to sync %s: %w", tmpPath, err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("(report) failed to close %s: %w", tmpPath, err)
	}

	if err := h.osHandler.Rename(tmpPath, h.summaryFile); err != nil {
		return fmt.Errorf("(report) failed to rename %s: %w", tmpPath, err)
	}
	written = true

	return nil
}
