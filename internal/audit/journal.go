// Package audit keeps an append-only journal of administrative actions and retention
// sweeps, one JSON object per line.
package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Baaaki/postboard/pkg/logger"
	"go.uber.org/zap"
)

const (
	ActionApprove     = "user.approve"
	ActionApproveBulk = "user.approve_bulk"
	ActionRestore     = "post.restore"
	ActionDeleteUser  = "user.delete"
	ActionSweep       = "post.sweep"
)

// Entry is a single journal line. ActorID is zero for actions the system takes on its own.
type Entry struct {
	Action    string    `json:"action"`
	ActorID   uint      `json:"actor_id"`
	TargetIDs []uint    `json:"target_ids,omitempty"`
	Affected  int64     `json:"affected"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder is what services write audit entries through.
type Recorder interface {
	Record(entry Entry) error
}

type discard struct{}

func (discard) Record(Entry) error { return nil }

// Discard drops every entry.
var Discard Recorder = discard{}

// Journal is a file-backed Recorder.
type Journal struct {
	filePath string
	file     *os.File
	mu       sync.Mutex
}

func Open(filePath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &Journal{
		filePath: filePath,
		file:     file,
	}, nil
}

// OpenOrDiscard opens the journal for callers that must keep working without it. When the
// file cannot be opened the failure is logged and entries are dropped.
func OpenOrDiscard(filePath string) (Recorder, func() error) {
	j, err := Open(filePath)
	if err != nil {
		logger.Log.Warn("Audit journal unavailable, entries will be dropped",
			zap.String("path", filePath),
			zap.Error(err),
		)
		return Discard, func() error { return nil }
	}
	return j, j.Close
}

// Record appends entry and syncs it to disk before returning.
func (j *Journal) Record(entry Entry) error {
	start := time.Now()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = start.UTC()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		logger.Log.Error("Audit: failed to marshal entry",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
		return err
	}

	if _, err := j.file.Write(append(data, '\n')); err != nil {
		logger.Log.Error("Audit: failed to write entry",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
		return err
	}

	syncStart := time.Now()
	if err := j.file.Sync(); err != nil {
		logger.Log.Error("Audit: failed to sync to disk",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
		return err
	}

	logger.Log.Debug("Audit: entry recorded",
		zap.String("action", entry.Action),
		zap.Uint("actor_id", entry.ActorID),
		zap.Int64("affected", entry.Affected),
		zap.Duration("sync_duration", time.Since(syncStart)),
		zap.Duration("total_duration", time.Since(start)),
	)
	return nil
}

// ReadAll returns every readable entry in write order. Corrupt lines are skipped.
func (j *Journal) ReadAll() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	entries := []Entry{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			logger.Log.Warn("Audit: skipping corrupt line", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
