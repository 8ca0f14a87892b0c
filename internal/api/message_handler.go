package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hirehub/internal/api/middleware"
	"hirehub/internal/realtime"
	"hirehub/internal/service"
	"hirehub/internal/storage"
)

// MessageHandler 处理聊天消息的 REST 接口，实时推送交给 Notifier。
type MessageHandler struct {
	messages *service.MessageService
	storage  ObjectStorage
	uploads  *uploadGuard
	notifier realtime.Notifier
	presence presenceReader
}

func NewMessageHandler(
	messages *service.MessageService,
	store ObjectStorage,
	uploads *uploadGuard,
	notifier realtime.Notifier,
	presence presenceReader,
) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		storage:  store,
		uploads:  uploads,
		notifier: notifier,
		presence: presence,
	}
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"max=4000"`
}

// Send 支持 JSON 或 multipart（text 字段 + 可选 image 文件）。
func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	peerID, ok := uintParam(c, "userId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var (
		text     string
		imageKey string
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		text = c.PostForm("text")
		if len(text) > 4000 {
			BadRequest(c, "text too long")
			return
		}
		// 先确认接收者，避免为无效请求写入对象
		if err := h.messages.EnsureReceiver(ctx, userID, peerID); err != nil {
			respondServiceError(c, err)
			return
		}
		file, ok := h.uploads.accept(c, "image", imageMIMEs, false)
		if !ok {
			return
		}
		if file != nil {
			if imageKey, ok = storeUpload(c, h.storage, storage.PrefixChatImage, userID, file); !ok {
				return
			}
		}
	} else {
		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
		text = req.Text
	}

	msg, err := h.messages.Send(ctx, userID, peerID, text, imageKey)
	if err != nil {
		discardObject(c, h.storage, imageKey)
		respondServiceError(c, err)
		return
	}

	resp := toMessageResponse(c, h.storage, *msg)
	h.push(c, msg.ReceiverID, realtime.EventMessageNew, resp)
	// 发送方的其他设备同样需要同步
	h.push(c, msg.SenderID, realtime.EventMessageNew, resp)

	c.JSON(http.StatusCreated, gin.H{"message": resp})
}

// History 分页返回会话，before 为消息 ID 游标。
func (h *MessageHandler) History(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	peerID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	before, ok := uintQuery(c, "before")
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}

	msgs, err := h.messages.History(c.Request.Context(), userID, peerID, before, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(c, h.storage, m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// MarkRead 将对方发来的消息置为已读并通知对方。
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	peerID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	count, err := h.messages.MarkRead(c.Request.Context(), userID, peerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if count > 0 {
		h.push(c, peerID, realtime.EventMessageRead, realtime.ReadPayload{ReaderID: userID, Count: count})
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

type conversationResponse struct {
	Peer        userResponse    `json:"peer"`
	LastMessage messageResponse `json:"last_message"`
	Unread      int64           `json:"unread"`
}

func (h *MessageHandler) Conversations(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	convs, err := h.messages.Conversations(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	out := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conversationResponse{
			Peer:        toPublicUserResponse(c, h.storage, conv.Peer),
			LastMessage: toMessageResponse(c, h.storage, conv.LastMessage),
			Unread:      conv.Unread,
		})
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// Online 返回当前在线的用户 ID。
func (h *MessageHandler) Online(c *gin.Context) {
	ids, err := h.presence.OnlineUsers(c.Request.Context())
	if err != nil {
		middleware.LoggerFromContext(c).Error("load online users failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if ids == nil {
		ids = []uint{}
	}
	c.JSON(http.StatusOK, gin.H{"user_ids": ids})
}

// push 推送失败不影响已持久化的消息。
func (h *MessageHandler) push(c *gin.Context, userID uint, eventType string, data any) {
	if err := h.notifier.SendToUser(c.Request.Context(), userID, eventType, data); err != nil {
		middleware.LoggerFromContext(c).Warn("push realtime event failed",
			slog.String("event", eventType),
			slog.Uint64("target_user_id", uint64(userID)),
			slog.Any("error", err),
		)
	}
}
