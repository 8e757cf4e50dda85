// Package conversation keeps per-session chat history in redis lists.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultSessionID    = "default-session"
	DefaultHistoryLimit = 10

	RoleUser      = "user"
	RoleAssistant = "assistant"

	emptyHistory = "No previous conversation history."
)

var ErrEmptySession = errors.New("conversation: empty session id")

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store appends messages to one list per session. Each write refreshes the
// session's expiry.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func New(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix + "conversation:", ttl: ttl, now: time.Now}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) AddMessage(ctx context.Context, sessionID, role, content string) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	data, err := json.Marshal(Message{Role: role, Content: content, Timestamp: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("fail to marshal message: %w", err)
	}
	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail to store message for %s: %w", sessionID, err)
	}
	return nil
}

// History returns the last limit messages, oldest first.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	raw, err := s.client.LRange(ctx, s.key(sessionID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("fail to read history for %s: %w", sessionID, err)
	}
	msgs := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("fail to unmarshal message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("fail to clear history for %s: %w", sessionID, err)
	}
	return nil
}

// Format renders history as "User: ..." and "Assistant: ..." lines.
func Format(msgs []Message) string {
	if len(msgs) == 0 {
		return emptyHistory
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		role := "Assistant"
		if m.Role == RoleUser {
			role = "User"
		}
		lines[i] = role + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}
