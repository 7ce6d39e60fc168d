package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const mockEmailTTL = 5 * time.Minute

// MockEmailKey is where RedisSender stores the last email of kind sent to addr.
func MockEmailKey(addr, kind string) string {
	return fmt.Sprintf("mockemail:%s:%s", addr, kind)
}

// RedisSender stores emails in Redis instead of sending them, so end-to-end
// tests can read them back.
type RedisSender struct {
	client *redis.Client
	kind   func(subject string) string
}

// NewRedisSender creates a RedisSender. kind maps a subject to the key
// suffix; nil means KindOf.
func NewRedisSender(client *redis.Client, kind func(subject string) string) *RedisSender {
	if kind == nil {
		kind = KindOf
	}
	return &RedisSender{client: client, kind: kind}
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if len(to) == 0 {
		return fmt.Errorf("email has no recipients")
	}
	kind := s.kind(subject)
	emailData := map[string]interface{}{
		"to":      to,
		"subject": subject,
		"body":    string(rawMessage),
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
		"kind":    kind,
	}
	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := MockEmailKey(to[0], kind)
	if err := s.client.Set(ctx, key, jsonData, mockEmailTTL).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}
	log.Debug().Str("key", key).Str("subject", subject).Msg("mock email stored in Redis")
	return nil
}

// Take returns and deletes the stored email of kind sent to addr. Nil, nil
// when there is none.
func (s *RedisSender) Take(ctx context.Context, addr, kind string) (map[string]interface{}, error) {
	key := MockEmailKey(addr, kind)
	data, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mock email %s: %w", key, err)
	}
	var email map[string]interface{}
	if err := json.Unmarshal(data, &email); err != nil {
		return nil, fmt.Errorf("failed to parse mock email %s: %w", key, err)
	}
	return email, nil
}
