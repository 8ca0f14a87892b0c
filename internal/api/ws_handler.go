package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"hirehub/internal/api/middleware"
	"hirehub/internal/auth"
	"hirehub/internal/errcode"
	"hirehub/internal/metrics"
	"hirehub/internal/realtime"
)

const (
	wsAuthTimeout   = 10 * time.Second
	wsPingInterval  = 30 * time.Second
	wsPongWait      = 60 * time.Second
	wsWriteWait     = 10 * time.Second
	wsMaxFrameBytes = 4096
	wsOutboundQueue = 32
)

// WsHandler 负责处理 WebSocket 鉴权、在线状态与事件转发。
type WsHandler struct {
	hub            *realtime.Hub
	authService    *auth.AuthService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
	eventsPerSec   float64
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(hub *realtime.Hub, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string, eventsPerSec float64) *WsHandler {
	if eventsPerSec <= 0 {
		eventsPerSec = 5
	}
	h := &WsHandler{
		hub:            hub,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		eventsPerSec:   eventsPerSec,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(h.allowedOrigins) == 0 {
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// clientFrame 是客户端上行帧。
type clientFrame struct {
	Type   string `json:"type"`
	To     uint   `json:"to"`
	Typing bool   `json:"typing"`
}

type errorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HandleConnection 负责升级连接并启动读写循环。
// 升级时携带有效 access_token Cookie 即视为已认证，否则首帧必须是 auth。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	userID := h.userFromRequest(c.Request)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxFrameBytes)

	baseLog := h.logger.With(
		slog.String("client_ip", c.ClientIP()),
	)

	if userID == 0 {
		userID, err = h.authenticate(conn)
		if err != nil {
			baseLog.Warn("websocket authentication failed", slog.Any("error", err))
			return
		}
	}
	userLog := baseLog.With(slog.Uint64("user_id", uint64(userID)))
	userLog.Info("websocket authenticated")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.hub.Subscribe(ctx, userID)
	defer pubsub.Close()
	// 等待订阅确认，保证上线广播与之后的事件不会丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		userLog.Error("subscribe realtime channels failed", slog.Any("error", err))
		writeClose(conn, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}

	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		if err := h.hub.Disconnect(dctx, userID); err != nil {
			userLog.Warn("presence disconnect failed", slog.Any("error", err))
		}
	}()
	if err := h.hub.Connect(ctx, userID); err != nil {
		userLog.Warn("presence connect failed", slog.Any("error", err))
	}

	errCh := make(chan error, 2)
	outbound := make(chan []byte, wsOutboundQueue)

	go h.writeLoop(ctx, conn, pubsub.Channel(), outbound, errCh, cancel)
	go h.readLoop(ctx, conn, userID, outbound, errCh, cancel, userLog)

	select {
	case <-ctx.Done():
		userLog.Info("websocket connection closed")
	case err := <-errCh:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			userLog.Info("websocket connection closed")
		} else {
			userLog.Info("websocket connection closed", slog.Any("error", err))
		}
	}
}

// userFromRequest 校验升级请求中的 access_token，失败返回 0。
func (h *WsHandler) userFromRequest(r *http.Request) uint {
	token := middleware.AccessTokenFromRequest(r)
	if token == "" {
		return 0
	}
	claims, err := h.authService.ValidateAccessToken(token)
	if err != nil || claims.MustChangePassword {
		return 0
	}
	return claims.UserID
}

// authenticate 读取首帧 {"type":"auth","token":...}。
func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	_, message, err := conn.ReadMessage()
	if err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "auth required")
		return 0, fmt.Errorf("read auth message: %w", err)
	}

	var authMsg wsAuthMessage
	if err := json.Unmarshal(message, &authMsg); err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "invalid auth payload")
		return 0, fmt.Errorf("decode auth payload: %w", err)
	}
	if authMsg.Type != "auth" || authMsg.Token == "" {
		writeClose(conn, websocket.ClosePolicyViolation, "auth required")
		return 0, fmt.Errorf("invalid auth message")
	}

	claims, err := h.authService.ValidateAccessToken(authMsg.Token)
	if err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "unauthorized")
		return 0, fmt.Errorf("validate token: %w", err)
	}
	if claims.MustChangePassword {
		writeClose(conn, websocket.ClosePolicyViolation, middleware.PasswordChangeRequiredMessage)
		return 0, fmt.Errorf("password change required")
	}
	return claims.UserID, nil
}

func (h *WsHandler) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	userID uint,
	outbound chan<- []byte,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	limiter := rate.NewLimiter(rate.Limit(h.eventsPerSec), max(1, int(h.eventsPerSec*2)))

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			report(errCh, err)
			cancel()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if !limiter.Allow() {
			metrics.ChatThrottled.Inc()
			queueFrame(outbound, errorFrame(errcode.RateLimited, "too many events"))
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Type == "" {
			queueFrame(outbound, errorFrame(errcode.MalformedFrame, "malformed frame"))
			continue
		}

		switch frame.Type {
		case realtime.EventTyping:
			if frame.To == 0 || frame.To == userID {
				queueFrame(outbound, errorFrame(errcode.InvalidTarget, "invalid target"))
				continue
			}
			metrics.ChatEvents.WithLabelValues("in", frame.Type).Inc()
			payload := realtime.TypingPayload{From: userID, Typing: frame.Typing}
			if err := h.hub.SendToUser(ctx, frame.To, realtime.EventTyping, payload); err != nil {
				log.Warn("relay typing failed", slog.Any("error", err))
				queueFrame(outbound, errorFrame(errcode.SystemError, "relay failed"))
			}
		case "auth":
			// 已认证，重复的 auth 帧直接忽略
		default:
			queueFrame(outbound, errorFrame(errcode.UnknownEvent, "unknown event "+frame.Type))
		}
	}
}

// writeLoop 是连接上唯一的写者。
func (h *WsHandler) writeLoop(
	ctx context.Context,
	conn *websocket.Conn,
	events <-chan *redis.Message,
	outbound <-chan []byte,
	errCh chan<- error,
	cancel context.CancelFunc,
) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	write := func(data []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			report(errCh, fmt.Errorf("write message: %w", err))
			cancel()
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				report(errCh, fmt.Errorf("pubsub channel closed"))
				cancel()
				return
			}
			if !write([]byte(msg.Payload)) {
				return
			}
		case frame := <-outbound:
			if !write(frame) {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				report(errCh, fmt.Errorf("write ping: %w", err))
				cancel()
				return
			}
		}
	}
}

func errorFrame(code int, msg string) []byte {
	data, _ := json.Marshal(realtime.Event{
		Type: realtime.EventError,
		Data: errorPayload{Code: code, Message: msg},
	})
	return data
}

// queueFrame 队列已满时丢弃，避免慢客户端阻塞读循环。
func queueFrame(outbound chan<- []byte, frame []byte) {
	select {
	case outbound <- frame:
	default:
	}
}

func report(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}
