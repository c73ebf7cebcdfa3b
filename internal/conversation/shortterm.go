package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HistoryEntry is a single message in the short-term session window.
type HistoryEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ShortTermStore keeps the most recent messages of each session in a Redis list.
type ShortTermStore struct {
	client redis.Cmdable
}

// NewShortTermStore creates a new short-term history store.
func NewShortTermStore(client redis.Cmdable) *ShortTermStore {
	return &ShortTermStore{client: client}
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("chat:history:%s", sessionID)
}

// GetRecentMessages returns the last `limit` entries of a session, oldest first.
func (s *ShortTermStore) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]HistoryEntry, error) {
	key := historyKey(sessionID)

	vals, err := s.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	entries := make([]HistoryEntry, 0, len(vals))
	for _, v := range vals {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// AppendMessage adds an entry, trims the list to maxMsgs and refreshes the TTL.
func (s *ShortTermStore) AppendMessage(ctx context.Context, sessionID string, entry HistoryEntry, maxMsgs int, ttl time.Duration) error {
	key := historyKey(sessionID)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, string(data))
	pipe.LTrim(ctx, key, int64(-maxMsgs), -1)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

// ClearSession deletes the short-term history of a session.
func (s *ShortTermStore) ClearSession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, historyKey(sessionID)).Err()
}
