package wal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/leadhook/internal/domain"
)

const (
	segmentPrefix = "segment-"
	segmentSuffix = ".log"
	filePerm      = 0644
	maxLineSize   = 1 << 20
)

// ErrFull is returned when a write would exceed the configured disk budget.
var ErrFull = errors.New("WAL max total size exceeded")

// WALRepository is a file-based write-ahead log of leads, one JSON document
// per line, split into size-bounded segments.
type WALRepository struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu             sync.Mutex
	currentSegment *os.File
	currentPath    string
	currentSize    int64
	totalSize      int64
	seq            int64
	// Segments drained by the last Replay; Truncate deletes exactly these.
	replayed []string
}

// NewWALRepository opens the WAL in dir, creating it if needed.
func NewWALRepository(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*WALRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory %s: %w", dir, err)
	}

	w := &WALRepository{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "wal_repository"),
	}

	existing, err := w.listSegments()
	if err != nil {
		return nil, err
	}
	total := totalSize(existing)
	w.totalSize = total

	if err := w.openLatestSegment(); err != nil {
		return nil, err
	}
	if total > 0 {
		w.logger.Warn("WAL contains leads from a previous run", "bytes", total)
	}

	return w, nil
}

// Write appends a lead to the current segment and syncs it to disk.
func (w *WALRepository) Write(ctx context.Context, lead domain.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("failed to marshal lead for WAL: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.totalSize+int64(len(data)) > w.maxTotalSize {
		return fmt.Errorf("%w (%d + %d > %d)", ErrFull, w.totalSize, len(data), w.maxTotalSize)
	}

	if w.currentSegment == nil {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	n, err := w.currentSegment.Write(data)
	w.currentSize += int64(n)
	w.totalSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write to WAL segment: %w", err)
	}
	if err := w.currentSegment.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL segment: %w", err)
	}

	if w.currentSize >= w.maxSegmentSize {
		if err := w.rotate(); err != nil {
			w.logger.Error("failed to rotate WAL segment", "error", err)
		}
	}

	return nil
}

// Replay calls handler for every lead in the segments present when it
// starts, oldest first. Writes made during the replay go to a new segment
// and are kept by the following Truncate.
func (w *WALRepository) Replay(ctx context.Context, handler func(lead domain.Lead) error) error {
	w.mu.Lock()
	existing, err := w.listSegments()
	if err == nil {
		err = w.rotate()
	}
	w.replayed = nil
	w.mu.Unlock()
	if err != nil {
		return err
	}
	segments := segmentPaths(existing)

	if len(segments) == 0 {
		w.logger.Info("WAL is empty, nothing to replay")
		return nil
	}
	w.logger.Info("starting WAL replay", "segment_count", len(segments))

	for _, segmentPath := range segments {
		if err := replaySegment(ctx, segmentPath, handler, w.logger); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.replayed = segments
	w.mu.Unlock()

	w.logger.Info("WAL replay completed")
	return nil
}

func replaySegment(ctx context.Context, path string, handler func(lead domain.Lead) error, logger *slog.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var lead domain.Lead
		if err := json.Unmarshal(scanner.Bytes(), &lead); err != nil {
			// A torn final line after a crash is expected.
			logger.Warn("failed to unmarshal lead from WAL, skipping", "error", err, "segment", filepath.Base(path))
			continue
		}
		if err := handler(lead); err != nil {
			return fmt.Errorf("replay handler failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

// Truncate removes the segments drained by the last successful Replay, or
// every segment if there was none.
func (w *WALRepository) Truncate(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	targets := w.replayed
	w.replayed = nil
	if targets == nil {
		if w.currentSegment != nil {
			w.currentSegment.Close()
			w.currentSegment = nil
		}
		all, err := w.listSegments()
		if err != nil {
			return err
		}
		targets = segmentPaths(all)
	}

	for _, segmentPath := range targets {
		if segmentPath == w.currentPath && w.currentSegment != nil {
			continue
		}
		if err := os.Remove(segmentPath); err != nil && !os.IsNotExist(err) {
			w.logger.Error("failed to remove WAL segment", "path", segmentPath, "error", err)
		}
	}

	remaining, err := w.listSegments()
	if err != nil {
		return err
	}
	total := totalSize(remaining)
	w.totalSize = total

	w.logger.Info("WAL truncated", "removed_segments", len(targets), "remaining_bytes", total)
	if w.currentSegment == nil {
		return w.openLatestSegment()
	}
	return nil
}

// Size returns the bytes currently held by the WAL.
func (w *WALRepository) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalSize
}

func (w *WALRepository) rotate() error {
	if w.currentSegment != nil {
		if err := w.currentSegment.Sync(); err != nil {
			w.logger.Error("failed to sync WAL segment before rotating", "error", err)
		}
		if err := w.currentSegment.Close(); err != nil {
			w.logger.Error("failed to close WAL segment before rotating", "error", err)
		}
		w.currentSegment = nil
	}

	// The sequence keeps names ordered when two rotations share a timestamp.
	w.seq++
	segmentName := fmt.Sprintf("%s%020d-%06d%s", segmentPrefix, time.Now().UnixNano(), w.seq%1000000, segmentSuffix)
	path := filepath.Join(w.dir, segmentName)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create new WAL segment %s: %w", path, err)
	}

	w.currentSegment = f
	w.currentPath = path
	w.currentSize = 0
	w.logger.Debug("rotated to new WAL segment", "path", path)
	return nil
}

// openLatestSegment appends to the newest segment unless it is full.
func (w *WALRepository) openLatestSegment() error {
	segments, err := w.listSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return w.rotate()
	}

	latest := segments[len(segments)-1]
	if latest.size >= w.maxSegmentSize {
		return w.rotate()
	}

	f, err := os.OpenFile(latest.path, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latest.path, err)
	}

	w.currentSegment = f
	w.currentPath = latest.path
	w.currentSize = latest.size
	return nil
}

type segment struct {
	path string
	size int64
}

// listSegments returns the segment files in write order.
func (w *WALRepository) listSegments() ([]segment, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAL directory: %w", err)
	}

	var segments []segment
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat WAL segment %s: %w", name, err)
		}
		segments = append(segments, segment{path: filepath.Join(w.dir, name), size: info.Size()})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].path < segments[j].path })
	return segments, nil
}

func totalSize(segments []segment) int64 {
	var total int64
	for _, s := range segments {
		total += s.size
	}
	return total
}

func segmentPaths(segments []segment) []string {
	paths := make([]string, len(segments))
	for i, s := range segments {
		paths[i] = s.path
	}
	return paths
}

// Close closes the current segment.
func (w *WALRepository) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentSegment == nil {
		return nil
	}
	err := w.currentSegment.Close()
	w.currentSegment = nil
	return err
}
