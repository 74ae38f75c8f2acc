package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMirror copies the live-visitor roster into a Redis hash per business
// so operational tooling can answer "who is online" without reaching into
// the process. Strictly best-effort: mirror failures are logged and never
// affect presence itself.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisMirror builds a mirror writing to the given client.
func NewRedisMirror(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisMirror {
	return &RedisMirror{client: client, ttl: ttl, logger: logger}
}

func rosterKey(businessID string) string {
	return fmt.Sprintf("livechat:business:%s:visitors", businessID)
}

// VisitorOnline writes the visitor entry under the business roster hash.
func (m *RedisMirror) VisitorOnline(businessID string, visitor Visitor) {
	ctx := context.Background()
	data, err := json.Marshal(visitor)
	if err != nil {
		m.logger.Warn("marshal visitor entry", zap.Error(err))
		return
	}
	key := rosterKey(businessID)
	if err := m.client.HSet(ctx, key, visitor.SID, data).Err(); err != nil {
		m.logger.Warn("mirror visitor online", zap.Error(err), zap.String("business_id", businessID))
		return
	}
	m.client.Expire(ctx, key, m.ttl)
}

// VisitorOffline removes the visitor entry from the roster hash.
func (m *RedisMirror) VisitorOffline(businessID, sid string) {
	ctx := context.Background()
	if err := m.client.HDel(ctx, rosterKey(businessID), sid).Err(); err != nil {
		m.logger.Warn("mirror visitor offline", zap.Error(err), zap.String("business_id", businessID))
	}
}
