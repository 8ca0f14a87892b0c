// Package realtime 基于 Redis 维护在线状态并在多个 API 实例间转发聊天事件。
//
// 每个用户对应一个频道 chat:user:<id>，所有连接额外订阅 chat:presence。
// 在线状态是一个 Redis Hash，字段为用户 ID，值为该用户当前的连接数。
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"hirehub/internal/metrics"
)

// 事件类型。
const (
	EventMessageNew     = "message:new"
	EventMessageRead    = "message:read"
	EventPresenceOnline = "presence:online"
	EventTyping         = "typing"
	EventError          = "error"
)

const (
	presenceKey     = "chat:presence:counts"
	PresenceChannel = "chat:presence"
)

// UserChannel 返回用户的 Pub/Sub 频道名。
func UserChannel(userID uint) string {
	return fmt.Sprintf("chat:user:%d", userID)
}

// Event 是推送给客户端的帧。
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// PresencePayload 是 presence:online 事件的数据。
type PresencePayload struct {
	UserIDs []uint `json:"user_ids"`
}

// ReadPayload 是 message:read 事件的数据。
type ReadPayload struct {
	ReaderID uint  `json:"reader_id"`
	Count    int64 `json:"count"`
}

// TypingPayload 是转发给对端的 typing 事件数据。
type TypingPayload struct {
	From   uint `json:"from"`
	Typing bool `json:"typing"`
}

// Notifier 向指定用户的所有连接推送事件。
type Notifier interface {
	SendToUser(ctx context.Context, userID uint, eventType string, data any) error
}

// 连接数减到 0 时删除字段，避免并发连接间的竞态。
var decrPresence = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
end
return n
`)

// Hub 负责在线状态与事件发布。
type Hub struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewHub 构造 Hub。
func NewHub(rdb *redis.Client, logger *slog.Logger) *Hub {
	return &Hub{rdb: rdb, logger: logger}
}

// Connect 记录一条新连接；用户由离线变为在线时广播在线列表。
func (h *Hub) Connect(ctx context.Context, userID uint) error {
	n, err := h.rdb.HIncrBy(ctx, presenceKey, strconv.FormatUint(uint64(userID), 10), 1).Result()
	if err != nil {
		return errors.Wrap(err, "incr presence")
	}
	metrics.ChatConnections.Inc()
	if n == 1 {
		return h.broadcastPresence(ctx)
	}
	return nil
}

// Disconnect 移除一条连接；最后一条连接断开时广播在线列表。
func (h *Hub) Disconnect(ctx context.Context, userID uint) error {
	metrics.ChatConnections.Dec()
	n, err := decrPresence.Run(ctx, h.rdb, []string{presenceKey}, strconv.FormatUint(uint64(userID), 10)).Int64()
	if err != nil {
		return errors.Wrap(err, "decr presence")
	}
	if n <= 0 {
		return h.broadcastPresence(ctx)
	}
	return nil
}

// OnlineUsers 返回当前在线的用户 ID，升序。
func (h *Hub) OnlineUsers(ctx context.Context) ([]uint, error) {
	counts, err := h.rdb.HGetAll(ctx, presenceKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read presence")
	}
	ids := make([]uint, 0, len(counts))
	for field, val := range counts {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		id, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// SendToUser 发布事件到用户频道，所有实例上该用户的连接都会收到。
func (h *Hub) SendToUser(ctx context.Context, userID uint, eventType string, data any) error {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if err := h.rdb.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		return errors.Wrapf(err, "publish %s", eventType)
	}
	metrics.ChatEvents.WithLabelValues("out", eventType).Inc()
	return nil
}

// Subscribe 订阅用户频道与在线状态频道。
func (h *Hub) Subscribe(ctx context.Context, userID uint) *redis.PubSub {
	return h.rdb.Subscribe(ctx, UserChannel(userID), PresenceChannel)
}

func (h *Hub) broadcastPresence(ctx context.Context) error {
	ids, err := h.OnlineUsers(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Event{Type: EventPresenceOnline, Data: PresencePayload{UserIDs: ids}})
	if err != nil {
		return errors.Wrap(err, "encode presence")
	}
	if err := h.rdb.Publish(ctx, PresenceChannel, payload).Err(); err != nil {
		return errors.Wrap(err, "publish presence")
	}
	h.logger.Debug("presence broadcast", slog.Int("online", len(ids)))
	return nil
}
