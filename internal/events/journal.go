package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/msageha/agentsync/internal/model"
)

// Direction of a journaled envelope relative to this client.
type Direction string

const (
	DirectionInbound  Direction = "in"
	DirectionOutbound Direction = "out"
)

// JournalEntry is one line of the envelope trace.
type JournalEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	ID        string            `json:"id"`
	Session   string            `json:"session,omitempty"`
	Direction Direction         `json:"direction"`
	Type      model.MessageType `json:"type"`
	TaskID    string            `json:"task_id,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Checksum  string            `json:"checksum,omitempty"`
}

// Journal appends envelopes as JSONL. Rotation is by size.
type Journal struct {
	mu      sync.Mutex
	w       io.WriteCloser
	session string
}

// OpenJournal creates the trace file directory and opens a rotating journal.
func OpenJournal(cfg model.TraceConfig, session string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	return NewJournal(&lumberjack.Logger{
		Filename: cfg.Path,
		MaxSize:  cfg.MaxSizeMB,
	}, session), nil
}

// NewJournal writes entries to w.
func NewJournal(w io.WriteCloser, session string) *Journal {
	return &Journal{w: w, session: session}
}

// Record writes one envelope. Nil journals are valid and record nothing.
func (j *Journal) Record(dir Direction, env model.Envelope) error {
	if j == nil {
		return nil
	}
	entry := JournalEntry{
		Timestamp: time.Now().UTC(),
		ID:        uuid.NewString(),
		Session:   j.session,
		Direction: dir,
		Type:      env.Type,
		TaskID:    env.TaskID(),
		Data:      env.Data,
	}
	entry.Checksum = checksum(&entry)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(data); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Close()
}

func checksum(entry *JournalEntry) string {
	c := *entry
	c.Checksum = ""
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", simpleHash(data))
}

// simpleHash is djb2.
func simpleHash(data []byte) uint64 {
	var hash uint64 = 5381
	for _, b := range data {
		hash = ((hash << 5) + hash) + uint64(b)
	}
	return hash
}

// ReadJournal returns the entries of a trace file in order, verifying checksums.
// Malformed lines and checksum mismatches are counted as invalid and skipped.
func ReadJournal(path string) ([]JournalEntry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	var entries []JournalEntry
	invalid := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			invalid++
			continue
		}
		if entry.Checksum != "" && entry.Checksum != checksum(&entry) {
			invalid++
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, invalid, fmt.Errorf("failed to scan journal: %w", err)
	}
	return entries, invalid, nil
}

// Envelope rebuilds the recorded envelope.
func (e JournalEntry) Envelope() model.Envelope {
	return model.Envelope{Type: e.Type, Data: e.Data}
}
