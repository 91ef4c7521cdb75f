package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DayLayout keys the ledger by calendar day.
const DayLayout = time.DateOnly

// Ledger remembers the days whose report has already been delivered.
type Ledger interface {
	AlreadySent(day time.Time) bool
	MarkSent(day time.Time, to []string) error
	Snapshot() Snapshot
}

type Snapshot struct {
	Sent int
	Last string
}

func dayKey(day time.Time) string {
	if day.IsZero() {
		return ""
	}
	return day.Format(DayLayout)
}

type MemoryLedger struct {
	mu   sync.RWMutex
	sent map[string][]string
	last string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{sent: make(map[string][]string)}
}

func (m *MemoryLedger) AlreadySent(day time.Time) bool {
	key := dayKey(day)
	if key == "" {
		return false
	}

	m.mu.RLock()
	_, ok := m.sent[key]
	m.mu.RUnlock()
	return ok
}

// record stores key and reports whether it was new.
func (m *MemoryLedger) record(key string, to []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sent[key]; exists {
		return false
	}
	m.sent[key] = append([]string(nil), to...)
	if key > m.last {
		m.last = key
	}
	return true
}

func (m *MemoryLedger) MarkSent(day time.Time, to []string) error {
	if key := dayKey(day); key != "" {
		m.record(key, to)
	}
	return nil
}

func (m *MemoryLedger) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Sent: len(m.sent), Last: m.last}
}

// FileLedger persists delivered report days as JSON lines so later runs,
// including a restarted schedule, skip them.
type FileLedger struct {
	*MemoryLedger
	path    string
	writeMu sync.Mutex
}

type fileRecord struct {
	Day    string    `json:"day"`
	To     []string  `json:"to"`
	SentAt time.Time `json:"sent_at"`
}

func NewFileLedger(stateDir string) (*FileLedger, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	ledger := &FileLedger{
		MemoryLedger: NewMemoryLedger(),
		path:         filepath.Join(stateDir, "reports.jsonl"),
	}
	if err := ledger.load(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// Path returns the ledger file.
func (f *FileLedger) Path() string {
	return f.path
}

func (f *FileLedger) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		if record.Day == "" {
			continue
		}
		f.record(record.Day, record.To)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	return nil
}

// MarkSent records day and appends it to the file. A day already present is
// not written again.
func (f *FileLedger) MarkSent(day time.Time, to []string) error {
	key := dayKey(day)
	if key == "" || !f.record(key, to) {
		return nil
	}

	data, err := json.Marshal(fileRecord{Day: key, To: to, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open state file for append: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		file.Close()
		return fmt.Errorf("write state record: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	return nil
}
