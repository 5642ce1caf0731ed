package deadletter

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/renameio"

	"github.com/ghalamif/TelemetryLogger/internal/ports"
)

const recordHeaderLen = 12

// FileLog keeps records that a sink could not persist so they can be
// replayed later. Entries are fsynced on append; the replay high-water
// mark lives in a separate meta file.
type FileLog struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	out       io.Writer
	nextID    ports.EntryID
	committed ports.EntryID
	sizeBytes int64
}

func Open(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "deadletter.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	l := &FileLog{
		path:     path,
		metaPath: filepath.Join(dir, "deadletter.meta"),
		file:     f,
		out:      f,
	}
	if err := l.bootstrap(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

func (l *FileLog) bootstrap() error {
	if err := l.scanExisting(); err != nil {
		return err
	}
	if err := l.loadCommitted(); err != nil {
		return err
	}
	if l.nextID < l.committed {
		l.nextID = l.committed
	}
	_, err := l.file.Seek(0, io.SeekEnd)
	return err
}

// scanExisting finds the last complete entry and truncates a torn tail
// left by a crash mid-append.
func (l *FileLog) scanExisting() error {
	stat, err := l.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.EntryID
	)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("deadletter scan header: %w", err)
		}
		id := ports.EntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])

		if length > 0 {
			if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					break
				}
				return fmt.Errorf("deadletter scan body: %w", err)
			}
		}
		offset += recordHeaderLen + int64(length)
		lastID = id
	}

	if offset < stat.Size() {
		if err := l.file.Truncate(offset); err != nil {
			return err
		}
	}
	l.sizeBytes = offset
	l.nextID = lastID
	return nil
}

func (l *FileLog) loadCommitted() error {
	data, err := os.ReadFile(l.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("deadletter meta parse: %w", err)
	}
	l.committed = ports.EntryID(u)
	return nil
}

func (l *FileLog) Append(e ports.DeadLetterEntry) (ports.EntryID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID + 1

	b, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}

	// entry format: [8 bytes id][4 bytes len][len bytes json]
	buf := make([]byte, recordHeaderLen, recordHeaderLen+len(b))
	binary.BigEndian.PutUint64(buf[0:8], uint64(id))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(b)))
	buf = append(buf, b...)

	if _, err := l.out.Write(buf); err != nil {
		return 0, l.rollback(err)
	}
	if err := l.file.Sync(); err != nil {
		return 0, l.rollback(err)
	}

	l.nextID = id
	l.sizeBytes += int64(len(buf))
	return id, nil
}

// rollback cuts a partially written entry so the next append starts at
// an entry boundary.
func (l *FileLog) rollback(cause error) error {
	if err := l.file.Truncate(l.sizeBytes); err != nil {
		return errors.Join(cause, fmt.Errorf("deadletter rollback: %w", err))
	}
	return cause
}

// Iterate calls fn for every entry with id >= from, in append order.
func (l *FileLog) Iterate(from ports.EntryID, fn func(id ports.EntryID, e ports.DeadLetterEntry) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("deadletter iterate truncated header: %w", err)
		}
		id := ports.EntryID(binary.BigEndian.Uint64(hdr[0:8]))
		n := binary.BigEndian.Uint32(hdr[8:12])

		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("corrupt dead-letter log: %w", err)
		}
		if id < from {
			continue
		}

		var e ports.DeadLetterEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return fmt.Errorf("corrupt dead-letter entry %d: %w", id, err)
		}
		if err := fn(id, e); err != nil {
			return err
		}
	}
}

func (l *FileLog) Commit(upto ports.EntryID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if upto <= l.committed {
		return nil
	}
	l.committed = upto
	return renameio.WriteFile(l.metaPath, []byte(fmt.Sprintf("%d\n", l.committed)), 0o644)
}

func (l *FileLog) Stats() ports.DeadLetterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ports.DeadLetterStats{
		OldestUncommitted: l.committed + 1,
		LatestAppended:    l.nextID,
		SizeBytes:         l.sizeBytes,
	}
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

var _ ports.DeadLetter = (*FileLog)(nil)
