package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Notification is a rendered message ready for a transport.
type Notification struct {
	Queue         string
	ParticipantID uint64
	Email         string
	Phone         string
	Subject       string
	Body          string
	SMS           string
}

// Deliverer hands a rendered notification to a transport.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// FileDeliverer appends one line per notification to a log file.  It
// stands in for mail and SMS transports.
type FileDeliverer struct {
	path string
	mu   sync.Mutex
}

// NewFileDeliverer returns a FileDeliverer writing to path, e.g.
// logs/notifications.log.  Parent directories are created on first write.
func NewFileDeliverer(path string) *FileDeliverer {
	return &FileDeliverer{path: path}
}

func (d *FileDeliverer) Deliver(_ context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | participant_id=%d | to=%q | sms_to=%q | subject=%q | body=%q | sms=%q\n",
		time.Now().UTC().Format(time.RFC3339), n.Queue, n.ParticipantID, n.Email, n.Phone,
		n.Subject, oneLine(n.Body), oneLine(n.SMS))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
