// Package journal persists a session's transcript and audio to disk (and,
// optionally, to a PostgreSQL session index) as four artifacts per session:
// a structured JSON record, a plain-text final-only render, a raw
// interim+final stream log, and a session-info summary written on close.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opsframe/meetbridge/pkg/types"
)

const (
	structuredFile = "transcript.json"
	finalTextFile  = "transcript.txt"
	rawLogFile     = "raw_logs.txt"
	summaryFile    = "session_info.txt"
)

// jsonRecord is one line of transcript.json: a TranscriptEvent flattened to
// JSON-friendly types.
type jsonRecord struct {
	Text       string    `json:"text"`
	IsFinal    bool      `json:"isFinal"`
	ReceivedAt time.Time `json:"receivedAt"`
	Speaker    string    `json:"speaker,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
}

// Index receives a session summary once journaling finishes, for the
// optional PostgreSQL session index. nil means no index is configured.
type Index interface {
	RecordSession(ctx context.Context, summary Summary) error
}

// Summary describes a completed session, written to session_info.txt and
// forwarded to the optional Index.
type Summary struct {
	SessionID    string
	ProviderID   string
	StartedAt    time.Time
	EndedAt      time.Time
	FinalCount   int
	InterimCount int
	DroppedCount int
}

// Writer implements sink.Journal: it appends every TranscriptEvent to the
// raw log and structured JSON record as it arrives, accumulates final text
// for the plain-text render, and writes the session summary on Close.
//
// Append never blocks on disk I/O for long: each call runs synchronously
// against buffered writers, and a single mutex serializes the four files
// so interleaved Append calls don't tear lines.
type Writer struct {
	dir        string
	sessionID  string
	providerID string
	startedAt  time.Time
	index      Index

	mu           sync.Mutex
	structured   *bufio.Writer
	structuredF  *os.File
	rawLog       *bufio.Writer
	rawLogF      *os.File
	finalTexts   []string
	finalCount   int
	interimCount int
	droppedCount int
}

// Config constructs a Writer.
type Config struct {
	// BaseDir is the root directory session journals are written under.
	BaseDir    string
	SessionID  string
	ProviderID string
	StartedAt  time.Time
	Index      Index // optional
}

// New creates the session's journal directory
// (sessions/<YYYYMMDD_HHMMSS>_<uuid>/) and opens its structured and raw log
// files for append.
func New(cfg Config) (*Writer, error) {
	dirName := fmt.Sprintf("%s_%s", cfg.StartedAt.UTC().Format("20060102_150405"), uuid.NewString())
	dir := filepath.Join(cfg.BaseDir, "sessions", dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create session dir: %w", err)
	}

	structuredF, err := os.Create(filepath.Join(dir, structuredFile))
	if err != nil {
		return nil, fmt.Errorf("journal: create %s: %w", structuredFile, err)
	}
	rawLogF, err := os.Create(filepath.Join(dir, rawLogFile))
	if err != nil {
		structuredF.Close()
		return nil, fmt.Errorf("journal: create %s: %w", rawLogFile, err)
	}

	return &Writer{
		dir:         dir,
		sessionID:   cfg.SessionID,
		providerID:  cfg.ProviderID,
		startedAt:   cfg.StartedAt,
		index:       cfg.Index,
		structured:  bufio.NewWriter(structuredF),
		structuredF: structuredF,
		rawLog:      bufio.NewWriter(rawLogF),
		rawLogF:     rawLogF,
	}, nil
}

// Dir returns the session's journal directory.
func (w *Writer) Dir() string { return w.dir }

// Append implements internal/sink.Journal. It appends one newline-delimited
// JSON record and one raw log line, in that order, and accumulates the
// text into the final-only render when IsFinal is true.
func (w *Writer) Append(evt types.TranscriptEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	speaker := ""
	if evt.Speaker != nil {
		speaker = evt.Speaker.Name
	}

	rec := jsonRecord{
		Text:       evt.Text,
		IsFinal:    evt.IsFinal,
		ReceivedAt: evt.ReceivedAt,
		Speaker:    speaker,
		Confidence: evt.Confidence,
	}
	if line, err := json.Marshal(rec); err == nil {
		w.structured.Write(line)
		w.structured.WriteByte('\n')
	}

	kind := "interim"
	if evt.IsFinal {
		kind = "final"
		w.finalCount++
		w.finalTexts = append(w.finalTexts, evt.Text)
	} else {
		w.interimCount++
	}
	fmt.Fprintf(w.rawLog, "[%s] %s: %s\n", evt.ReceivedAt.UTC().Format(time.RFC3339Nano), kind, evt.Text)

	// Flush eagerly: journal durability must not depend on a later Close,
	// since a fatal error can terminate the process before teardown.
	w.structured.Flush()
	w.rawLog.Flush()
}

// RecordDroppedFrame notes a gate-closed or pre-open PCM frame drop for the
// session summary. Safe for concurrent use.
func (w *Writer) RecordDroppedFrame() {
	w.mu.Lock()
	w.droppedCount++
	w.mu.Unlock()
}

// Close writes the plain-text final render and the session-info summary,
// forwards the summary to the optional Index (best-effort — a failure here
// never blocks or fails session teardown), and closes the open files.
func (w *Writer) Close(ctx context.Context, endedAt time.Time) error {
	w.mu.Lock()
	finalText := strings.Join(w.finalTexts, " ")
	summary := Summary{
		SessionID:    w.sessionID,
		ProviderID:   w.providerID,
		StartedAt:    w.startedAt,
		EndedAt:      endedAt,
		FinalCount:   w.finalCount,
		InterimCount: w.interimCount,
		DroppedCount: w.droppedCount,
	}
	w.mu.Unlock()

	if err := os.WriteFile(filepath.Join(w.dir, finalTextFile), []byte(finalText), 0o644); err != nil {
		return fmt.Errorf("journal: write %s: %w", finalTextFile, err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, summaryFile), []byte(renderSummary(summary)), 0o644); err != nil {
		return fmt.Errorf("journal: write %s: %w", summaryFile, err)
	}

	w.mu.Lock()
	w.structured.Flush()
	w.rawLog.Flush()
	structuredErr := w.structuredF.Close()
	rawLogErr := w.rawLogF.Close()
	w.mu.Unlock()

	if w.index != nil {
		if err := w.index.RecordSession(ctx, summary); err != nil {
			fmt.Fprintf(os.Stderr, "journal: postgres index: %v\n", err)
		}
	}

	if structuredErr != nil {
		return structuredErr
	}
	return rawLogErr
}

func renderSummary(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session_id: %s\n", s.SessionID)
	fmt.Fprintf(&b, "provider: %s\n", s.ProviderID)
	fmt.Fprintf(&b, "started_at: %s\n", s.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "ended_at: %s\n", s.EndedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "duration: %s\n", s.EndedAt.Sub(s.StartedAt))
	fmt.Fprintf(&b, "final_count: %d\n", s.FinalCount)
	fmt.Fprintf(&b, "interim_count: %d\n", s.InterimCount)
	fmt.Fprintf(&b, "dropped_frames: %d\n", s.DroppedCount)
	return b.String()
}
