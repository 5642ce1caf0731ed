package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghalamif/TelemetryLogger/internal/domain"
	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

// CSVSink appends one row per record to a flat file. The header is written
// only when the file is empty, so it appears once across restarts.
type CSVSink struct {
	path string
	file *os.File
	out  io.Writer
	size int64
	sync bool
}

// NewCSVSink opens path for appending, creating parent directories. When
// sync is true every row is fsynced before Write returns.
func NewCSVSink(path string, sync bool) (*CSVSink, error) {
	if path == "" {
		return nil, fmt.Errorf("csv sink: path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("csv sink: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv sink: %w", err)
	}

	s := &CSVSink{
		path: path,
		file: f,
		out:  f,
		sync: sync,
	}
	if err := s.repairTail(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := s.ensureHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *CSVSink) Name() string { return "csv" }

// Path returns the file backing the sink.
func (s *CSVSink) Path() string { return s.path }

// repairTail drops a row left without its newline, so the next append
// starts on a line of its own.
func (s *CSVSink) repairTail() error {
	stat, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("csv sink: %w", err)
	}
	end := stat.Size()
	if end == 0 {
		return nil
	}

	var last [1]byte
	if _, err := s.file.ReadAt(last[:], end-1); err != nil {
		return fmt.Errorf("csv sink: %w", err)
	}
	if last[0] == '\n' {
		s.size = end
		return nil
	}

	keep, err := lastLineEnd(s.file, end)
	if err != nil {
		return fmt.Errorf("csv sink: %w", err)
	}
	if err := s.file.Truncate(keep); err != nil {
		return fmt.Errorf("csv sink: truncate torn row: %w", err)
	}
	s.size = keep
	return nil
}

// lastLineEnd returns the offset just past the last newline before end,
// or zero when there is none.
func lastLineEnd(r io.ReaderAt, end int64) (int64, error) {
	buf := make([]byte, 4096)
	for end > 0 {
		n := int64(len(buf))
		if n > end {
			n = end
		}
		chunk := buf[:n]
		if _, err := r.ReadAt(chunk, end-n); err != nil && err != io.EOF {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return end - n + int64(i) + 1, nil
		}
		end -= n
	}
	return 0, nil
}

func (s *CSVSink) ensureHeader() error {
	want := strings.Join(domain.Columns, ",")

	if s.size == 0 {
		return s.writeRow(domain.Columns)
	}

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("csv sink: %w", err)
	}
	first, err := bufio.NewReader(s.file).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("csv sink: read header: %w", err)
	}
	if got := strings.TrimRight(first, "\r\n"); got != want {
		return fmt.Errorf("csv sink: %s has header %q, want %q", s.path, got, want)
	}
	return nil
}

func (s *CSVSink) Write(_ context.Context, r domain.TelemetryRecord) error {
	return s.writeRow(r.Row())
}

// writeRow encodes the row in memory and appends it in one write. On any
// failure the file is cut back to where the row started so a retry neither
// duplicates nor tears it.
func (s *CSVSink) writeRow(row []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := s.out.Write(buf.Bytes()); err != nil {
		return s.rollback(err)
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			return s.rollback(err)
		}
	}
	s.size += int64(buf.Len())
	return nil
}

func (s *CSVSink) rollback(cause error) error {
	if err := s.file.Truncate(s.size); err != nil {
		return errors.Join(cause, fmt.Errorf("csv sink: rollback: %w", err))
	}
	return cause
}

func (s *CSVSink) Close() error {
	return s.file.Close()
}

var _ ports.Sink = (*CSVSink)(nil)
