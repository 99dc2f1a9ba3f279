package journal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opsframe/meetbridge/pkg/types"
)

type fakeIndex struct {
	summaries []Summary
}

func (f *fakeIndex) RecordSession(ctx context.Context, s Summary) error {
	f.summaries = append(f.summaries, s)
	return nil
}

func newTestWriter(t *testing.T, idx Index) *Writer {
	t.Helper()
	w, err := New(Config{
		BaseDir:    t.TempDir(),
		SessionID:  "sess-1",
		ProviderID: "deepgram",
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Index:      idx,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestWriter_DirNameFormat(t *testing.T) {
	w := newTestWriter(t, nil)
	base := filepath.Base(w.Dir())
	if !strings.HasPrefix(base, "20260102_030405_") {
		t.Errorf("dir name = %q, want prefix 20260102_030405_", base)
	}
}

func TestWriter_FinalTextIsSpaceJoinedFinalsInOrder(t *testing.T) {
	w := newTestWriter(t, nil)
	w.Append(types.TranscriptEvent{Text: "hello", IsFinal: false})
	w.Append(types.TranscriptEvent{Text: "hello there", IsFinal: true})
	w.Append(types.TranscriptEvent{Text: "general", IsFinal: false})
	w.Append(types.TranscriptEvent{Text: "general kenobi", IsFinal: true})

	if err := w.Close(context.Background(), time.Now()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(w.Dir(), finalTextFile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if want := "hello there general kenobi"; string(data) != want {
		t.Errorf("final text = %q, want %q", data, want)
	}
}

func TestWriter_StructuredRecordsOneLinePerEvent(t *testing.T) {
	w := newTestWriter(t, nil)
	w.Append(types.TranscriptEvent{Text: "a", IsFinal: false})
	w.Append(types.TranscriptEvent{Text: "b", IsFinal: true})
	w.Close(context.Background(), time.Now())

	data, err := os.ReadFile(filepath.Join(w.Dir(), structuredFile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}

func TestWriter_SummaryCountsAndIndexForwarding(t *testing.T) {
	idx := &fakeIndex{}
	w := newTestWriter(t, idx)
	w.Append(types.TranscriptEvent{Text: "a", IsFinal: false})
	w.Append(types.TranscriptEvent{Text: "b", IsFinal: true})
	w.Append(types.TranscriptEvent{Text: "c", IsFinal: true})
	w.RecordDroppedFrame()

	ended := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)
	if err := w.Close(context.Background(), ended); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(idx.summaries) != 1 {
		t.Fatalf("index got %d summaries, want 1", len(idx.summaries))
	}
	s := idx.summaries[0]
	if s.FinalCount != 2 || s.InterimCount != 1 || s.DroppedCount != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.SessionID != "sess-1" || s.ProviderID != "deepgram" {
		t.Errorf("summary identity = %+v", s)
	}

	data, err := os.ReadFile(filepath.Join(w.Dir(), summaryFile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "final_count: 2") {
		t.Errorf("summary file missing final_count: %s", data)
	}
}
