package service

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"hirehub/internal/database"
)

const (
	defaultMessagePage = 50
	maxMessagePage     = 200
)

// Conversation 汇总与某个用户的最近一条消息与未读数。
type Conversation struct {
	Peer        database.User
	LastMessage database.Message
	Unread      int64
}

// MessageService 管理聊天消息的持久化。
type MessageService struct {
	db *gorm.DB
}

// NewMessageService 构造 MessageService。
func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// Send 保存一条消息，文本与图片至少其一。
func (s *MessageService) Send(ctx context.Context, senderID, receiverID uint, text, imageKey string) (*database.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && imageKey == "" {
		return nil, invalid("message must contain text or an image")
	}
	if senderID == receiverID {
		return nil, invalid("you cannot message yourself")
	}

	db := s.db.WithContext(ctx)
	if _, err := loadUser(db, receiverID); err != nil {
		return nil, err
	}

	msg := database.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		ImageKey:   imageKey,
	}
	if err := db.Create(&msg).Error; err != nil {
		return nil, errors.Wrap(err, "create message")
	}
	return &msg, nil
}

// EnsureReceiver 在上传图片之前确认接收者存在。
func (s *MessageService) EnsureReceiver(ctx context.Context, senderID, receiverID uint) error {
	if senderID == receiverID {
		return invalid("you cannot message yourself")
	}
	_, err := loadUser(s.db.WithContext(ctx), receiverID)
	return err
}

// History 返回双方会话，按时间升序；beforeID 非零时只取更早的消息。
func (s *MessageService) History(ctx context.Context, userID, peerID, beforeID uint, limit int) ([]database.Message, error) {
	if limit <= 0 {
		limit = defaultMessagePage
	}
	if limit > maxMessagePage {
		limit = maxMessagePage
	}

	query := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userID, peerID, peerID, userID)
	if beforeID != 0 {
		query = query.Where("id < ?", beforeID)
	}

	var msgs []database.Message
	if err := query.Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, errors.Wrap(err, "load conversation")
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead 将 peer 发给 user 的未读消息标记为已读，返回更新条数。
func (s *MessageService) MarkRead(ctx context.Context, userID, peerID uint) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&database.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read = ?", peerID, userID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "mark messages read")
	}
	return result.RowsAffected, nil
}

// Conversations 列出与当前用户有过往来的所有人，最近联系优先。
func (s *MessageService) Conversations(ctx context.Context, userID uint) ([]Conversation, error) {
	db := s.db.WithContext(ctx)

	type lastRow struct {
		PeerID uint
		LastID uint
	}
	var rows []lastRow
	if err := db.Model(&database.Message{}).
		Select("CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS peer_id, MAX(id) AS last_id", userID).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Group("peer_id").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "aggregate conversations")
	}
	if len(rows) == 0 {
		return []Conversation{}, nil
	}

	peerIDs := make([]uint, 0, len(rows))
	lastIDs := make([]uint, 0, len(rows))
	for _, r := range rows {
		peerIDs = append(peerIDs, r.PeerID)
		lastIDs = append(lastIDs, r.LastID)
	}

	var peers []database.User
	if err := db.Where("id IN ?", peerIDs).Find(&peers).Error; err != nil {
		return nil, errors.Wrap(err, "load peers")
	}
	peerByID := make(map[uint]database.User, len(peers))
	for _, p := range peers {
		peerByID[p.ID] = p
	}

	var lasts []database.Message
	if err := db.Where("id IN ?", lastIDs).Find(&lasts).Error; err != nil {
		return nil, errors.Wrap(err, "load last messages")
	}
	lastByID := make(map[uint]database.Message, len(lasts))
	for _, m := range lasts {
		lastByID[m.ID] = m
	}

	type unreadRow struct {
		SenderID uint
		Count    int64
	}
	var unread []unreadRow
	if err := db.Model(&database.Message{}).
		Select("sender_id, COUNT(*) AS count").
		Where("receiver_id = ? AND read = ?", userID, false).
		Group("sender_id").
		Scan(&unread).Error; err != nil {
		return nil, errors.Wrap(err, "count unread")
	}
	unreadBy := make(map[uint]int64, len(unread))
	for _, u := range unread {
		unreadBy[u.SenderID] = u.Count
	}

	out := make([]Conversation, 0, len(rows))
	for _, r := range rows {
		peer, ok := peerByID[r.PeerID]
		if !ok {
			continue
		}
		out = append(out, Conversation{
			Peer:        peer,
			LastMessage: lastByID[r.LastID],
			Unread:      unreadBy[r.PeerID],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.ID > out[j].LastMessage.ID
	})
	return out, nil
}
