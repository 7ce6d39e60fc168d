package email

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const fileEntryEnd = "--- end ---"

// FileEmailSender appends every email to a local log, one entry per email:
// a "--- <time> <kind> to <addrs> ---" line, the raw message, and an end marker.
type FileEmailSender struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewFileEmailSender creates the log directory and returns the sender.
func NewFileEmailSender(path string) (*FileEmailSender, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("email log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create email log directory for %s: %w", path, err)
	}
	return &FileEmailSender{path: path, now: time.Now}, nil
}

func (s *FileEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open email log: %w", err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "--- %s %s to %s ---\n", s.now().UTC().Format(time.RFC3339Nano), KindOf(subject), strings.Join(to, ","))
	w.Write(rawMessage)
	if len(rawMessage) > 0 && rawMessage[len(rawMessage)-1] != '\n' {
		w.WriteByte('\n')
	}
	w.WriteString(fileEntryEnd + "\n\n")
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write email log: %w", err)
	}
	return f.Close()
}
