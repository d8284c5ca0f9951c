package httpapi

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/alfredchat/alfred/pkg/logger"
)

// Audit events shown on the admin page.
const (
	auditLogin          = "login"
	auditLoginFailed    = "login_failed"
	auditLogout         = "logout"
	auditUserSaved      = "user_saved"
	auditUserRejected   = "user_rejected"
	auditSettingsSaved  = "settings_saved"
	auditHistoryCleared = "history_cleared"
)

// AuditEntry is one security-relevant action.
type AuditEntry struct {
	Time       time.Time `json:"time"`
	User       string    `json:"user"`
	Event      string    `json:"event"`
	Target     string    `json:"target,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

type auditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	max     int
	sink    AuditSink
	log     *logger.Logger
}

// AuditSink persists audit entries beyond the in-memory window.
type AuditSink interface {
	Write(entry AuditEntry) error
}

func newAuditLog(max int, sink AuditSink, log *logger.Logger) *auditLog {
	if max <= 0 {
		max = 200
	}
	return &auditLog{max: max, sink: sink, log: log}
}

func (l *auditLog) add(entry AuditEntry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	l.mu.Unlock()

	if l.log != nil {
		l.log.WithField("event", entry.Event).WithField("user", entry.User).WithField("target", entry.Target).Info("audit")
	}
	if l.sink != nil {
		if err := l.sink.Write(entry); err != nil && l.log != nil {
			l.log.WithError(err).Warn("audit sink write failed")
		}
	}
}

func (l *auditLog) list() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// recent returns up to limit entries, newest first.
func (l *auditLog) recent(limit int) []AuditEntry {
	if limit <= 0 || limit > l.max {
		limit = l.max
	}
	all := l.list()
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all
}

// FileAuditSink appends audit entries as JSONL.
type FileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileAuditSink opens path for appending. An empty path disables the sink.
func NewFileAuditSink(path string) (*FileAuditSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &FileAuditSink{file: f}, nil
}

func (s *FileAuditSink) Write(entry AuditEntry) error {
	if s == nil || s.file == nil {
		return nil
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}

func (s *FileAuditSink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}
