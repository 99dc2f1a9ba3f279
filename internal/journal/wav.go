package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	wavHeaderSize  = 44
	wavBitsPerSamp = 16
	wavFormatPCM   = 1
)

// WAVWriter appends raw 16-bit PCM samples to a .wav file and rewrites the
// RIFF header with the final data length on Close. The header is a fixed
// 44-byte canonical PCM header: a 12-byte RIFF/WAVE preamble, a 24-byte
// "fmt " sub-chunk, and an 8-byte "data" sub-chunk header, written up front with a zero length and
// patched once the final size is known.
type WAVWriter struct {
	f            *os.File
	w            *bufio.Writer
	sampleRateHz int
	channels     int
	dataLen      uint32
}

// NewWAVWriter creates dir if needed and opens recording_<timestamp>.wav for
// writing, where timestamp is the session start time formatted as RFC3339
// with ':' and '.' replaced by '-' so the name is filesystem-safe.
func NewWAVWriter(dir string, startedAt time.Time, sampleRateHz, channels int) (*WAVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create recording dir: %w", err)
	}

	name := fmt.Sprintf("recording_%s.wav", sanitizeTimestamp(startedAt))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("journal: create wav file: %w", err)
	}

	w := &WAVWriter{f: f, w: bufio.NewWriter(f), sampleRateHz: sampleRateHz, channels: channels}
	if err := w.writeHeader(0); err != nil {
		f.Close()
		return nil, err
	}
	// writeHeader uses WriteAt, which does not move the file's write cursor.
	// Seek past the header so buffered PCM writes land after it instead of
	// overwriting it.
	if _, err := f.Seek(wavHeaderSize, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: seek past wav header: %w", err)
	}
	return w, nil
}

func sanitizeTimestamp(t time.Time) string {
	s := t.UTC().Format(time.RFC3339)
	s = strings.ReplaceAll(s, ":", "-")
	s = strings.ReplaceAll(s, ".", "-")
	return s
}

// Write appends pcm (signed 16-bit little-endian samples) to the file.
func (w *WAVWriter) Write(pcm []byte) error {
	if _, err := w.w.Write(pcm); err != nil {
		return fmt.Errorf("journal: write pcm: %w", err)
	}
	w.dataLen += uint32(len(pcm))
	return nil
}

// Close flushes buffered audio, patches the RIFF header with the final data
// length, and closes the underlying file.
func (w *WAVWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("journal: flush wav: %w", err)
	}
	if err := w.writeHeader(w.dataLen); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func (w *WAVWriter) writeHeader(dataLen uint32) error {
	var header [wavHeaderSize]byte

	byteRate := uint32(w.sampleRateHz*w.channels) * 2
	blockAlign := uint16(w.channels * 2)

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataLen)
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(w.sampleRateHz))
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], wavBitsPerSamp)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataLen)

	if _, err := w.f.WriteAt(header[:], 0); err != nil {
		return fmt.Errorf("journal: write wav header: %w", err)
	}
	return nil
}
