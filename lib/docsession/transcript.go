// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docsession

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/quill/lib/clock"
	"github.com/bureau-foundation/quill/lib/streamjson"
)

// Compression selects how a transcript is stored.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression parses a compression name. The empty string means
// zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("unknown transcript compression %q", name)
	}
}

// extension returns the file-name suffix for the compression.
func (c Compression) extension() string {
	switch c {
	case CompressionZstd:
		return ".jsonl.zst"
	case CompressionLZ4:
		return ".jsonl.lz4"
	default:
		return ".jsonl"
	}
}

// Transcript entry kinds.
const (
	EntryLine         = "line"
	EntryStderr       = "stderr"
	EntryNotification = "notification"
	EntrySummary      = "summary"
)

// TranscriptEntry is one JSONL record of a transcript.
type TranscriptEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`

	// Line is set for EntryLine and EntryStderr: the raw text as
	// received from the process.
	Line string `json:"line,omitempty"`

	// EventKind is the decoded kind of an EntryLine.
	EventKind streamjson.Kind `json:"event_kind,omitempty"`

	Notification *streamjson.Notification `json:"notification,omitempty"`
	Summary      *TranscriptSummary       `json:"summary,omitempty"`
}

// TranscriptSummary aggregates a transcript.
type TranscriptSummary struct {
	LineCount         int64         `json:"line_count"`
	StderrLineCount   int64         `json:"stderr_line_count"`
	NotificationCount int64         `json:"notification_count"`
	UnrecognizedCount int64         `json:"unrecognized_count"`
	ToolActivityCount int64         `json:"tool_activity_count"`
	InputTokens       int64         `json:"input_tokens"`
	OutputTokens      int64         `json:"output_tokens"`
	CacheReadTokens   int64         `json:"cache_read_tokens"`
	CacheWriteTokens  int64         `json:"cache_write_tokens"`
	CostUSD           float64       `json:"cost_usd"`
	Duration          time.Duration `json:"duration"`
}

// TranscriptWriter records one run's raw output and notifications as
// JSONL, optionally compressed. It is safe for concurrent use.
type TranscriptWriter struct {
	path       string
	file       *os.File
	compressor io.WriteCloser
	encoder    *json.Encoder
	clock      clock.Clock

	mutex     sync.Mutex
	closed    bool
	startTime time.Time
	summary   TranscriptSummary
}

// CreateTranscript starts a new transcript in the session directory's
// transcripts/ subdirectory. File names sort chronologically.
func (s *Store) CreateTranscript(directory string, compression Compression) (*TranscriptWriter, error) {
	transcripts := filepath.Join(directory, TranscriptDirectory)
	if err := os.MkdirAll(transcripts, 0o755); err != nil {
		return nil, &PersistenceError{Operation: "creating transcript directory", Path: transcripts, Err: err}
	}
	stamp := "transcript-" + s.clock().Now().UTC().Format("20060102T150405.000000000Z")
	name := stamp + compression.extension()
	for attempt := 1; ; attempt++ {
		writer, err := NewTranscriptWriter(filepath.Join(transcripts, name), compression, s.clock())
		if !errors.Is(err, fs.ErrExist) || attempt > maxTranscriptCollisions {
			return writer, err
		}
		// "_" sorts after ".", so a suffixed name stays after the
		// unsuffixed one with the same timestamp.
		name = fmt.Sprintf("%s_%03d%s", stamp, attempt, compression.extension())
	}
}

// maxTranscriptCollisions bounds the suffixes tried for transcripts
// started at the same instant.
const maxTranscriptCollisions = 999

// NewTranscriptWriter creates a transcript at path. It fails with an
// error wrapping fs.ErrExist if path already exists.
func NewTranscriptWriter(path string, compression Compression, clk clock.Clock) (*TranscriptWriter, error) {
	if clk == nil {
		clk = clock.Real()
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &PersistenceError{Operation: "creating transcript", Path: path, Err: err}
	}

	writer := &TranscriptWriter{
		path:      path,
		file:      file,
		clock:     clk,
		startTime: clk.Now(),
	}

	var sink io.Writer = file
	switch compression {
	case CompressionZstd:
		encoder, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			file.Close()
			return nil, &PersistenceError{Operation: "creating zstd encoder", Path: path, Err: err}
		}
		writer.compressor = encoder
		sink = encoder
	case CompressionLZ4:
		encoder := lz4.NewWriter(file)
		writer.compressor = encoder
		sink = encoder
	}

	writer.encoder = json.NewEncoder(sink)
	// One compact JSON object per line.
	writer.encoder.SetEscapeHTML(false)
	return writer, nil
}

// Path returns the transcript file path.
func (w *TranscriptWriter) Path() string { return w.path }

func (w *TranscriptWriter) write(entry TranscriptEntry) error {
	if w.closed {
		return errors.New("transcript is closed")
	}
	entry.Timestamp = w.clock.Now().UTC()
	if err := w.encoder.Encode(entry); err != nil {
		return fmt.Errorf("encoding transcript entry: %w", err)
	}
	return nil
}

// WriteLine records one stdout line and the event it decoded to, and
// updates the summary counters.
func (w *TranscriptWriter) WriteLine(line string, event streamjson.Event) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if err := w.write(TranscriptEntry{Kind: EntryLine, Line: line, EventKind: event.Kind}); err != nil {
		return err
	}
	w.summary.LineCount++

	switch event.Kind {
	case streamjson.KindUnrecognized:
		w.summary.UnrecognizedCount++
	case streamjson.KindToolActivity:
		w.summary.ToolActivityCount++
	case streamjson.KindResult:
		if usage := event.Result.Usage; usage != nil {
			w.summary.InputTokens += usage.InputTokens
			w.summary.OutputTokens += usage.OutputTokens
			w.summary.CacheReadTokens += usage.CacheReadTokens
			w.summary.CacheWriteTokens += usage.CacheWriteTokens
		}
		w.summary.CostUSD += event.Result.CostUSD
	}
	return nil
}

// WriteStderr records one stderr line.
func (w *TranscriptWriter) WriteStderr(line string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if err := w.write(TranscriptEntry{Kind: EntryStderr, Line: line}); err != nil {
		return err
	}
	w.summary.StderrLineCount++
	return nil
}

// WriteNotification records a notification delivered to the caller.
func (w *TranscriptWriter) WriteNotification(notification streamjson.Notification) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if err := w.write(TranscriptEntry{Kind: EntryNotification, Notification: &notification}); err != nil {
		return err
	}
	w.summary.NotificationCount++
	return nil
}

// Summary returns the counters so far.
func (w *TranscriptWriter) Summary() TranscriptSummary {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.summaryLocked()
}

func (w *TranscriptWriter) summaryLocked() TranscriptSummary {
	summary := w.summary
	summary.Duration = w.clock.Now().Sub(w.startTime)
	return summary
}

// Close appends the summary entry, flushes the compressor and closes
// the file. Close is idempotent.
func (w *TranscriptWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return nil
	}

	summary := w.summaryLocked()
	summaryErr := w.write(TranscriptEntry{Kind: EntrySummary, Summary: &summary})
	w.closed = true

	var compressorErr error
	if w.compressor != nil {
		compressorErr = w.compressor.Close()
	}
	fileErr := w.file.Close()

	if err := errors.Join(summaryErr, compressorErr, fileErr); err != nil {
		return &PersistenceError{Operation: "closing transcript", Path: w.path, Err: err}
	}
	return nil
}

// ReadTranscript decodes the transcript at path, choosing the
// decompressor by file extension.
func ReadTranscript(path string) ([]TranscriptEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	switch {
	case strings.HasSuffix(path, ".zst"):
		decoder, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer decoder.Close()
		reader = decoder
	case strings.HasSuffix(path, ".lz4"):
		reader = lz4.NewReader(file)
	}

	var entries []TranscriptEntry
	decoder := json.NewDecoder(bufio.NewReader(reader))
	for {
		var entry TranscriptEntry
		err := decoder.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("decoding transcript %s entry %d: %w", path, len(entries), err)
		}
		entries = append(entries, entry)
	}
}

// ListTranscripts returns the transcript paths in directory, oldest
// first.
func ListTranscripts(directory string) ([]string, error) {
	transcripts := filepath.Join(directory, TranscriptDirectory)
	entries, err := os.ReadDir(transcripts)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasPrefix(entry.Name(), "transcript-") {
			paths = append(paths, filepath.Join(transcripts, entry.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// PruneTranscripts deletes all but the newest keep transcripts.
func (s *Store) PruneTranscripts(directory string, keep int) error {
	paths, err := ListTranscripts(directory)
	if err != nil {
		return &PersistenceError{Operation: "pruning transcripts", Path: directory, Err: err}
	}
	if len(paths) <= keep {
		return nil
	}
	var errs []error
	for _, path := range paths[:len(paths)-keep] {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return &PersistenceError{Operation: "pruning transcripts", Path: directory, Err: err}
	}
	return nil
}
