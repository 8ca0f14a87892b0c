package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/hibiken/asynq"

	"hirehub/internal/mail"
	"hirehub/internal/tasks"
)

// EmailTaskHandler 消费 email:send 任务。
type EmailTaskHandler struct {
	renderer *mail.Renderer
	sender   mail.Sender
	logger   *slog.Logger
}

// NewEmailTaskHandler 创建邮件任务处理器。
func NewEmailTaskHandler(renderer *mail.Renderer, sender mail.Sender, logger *slog.Logger) *EmailTaskHandler {
	return &EmailTaskHandler{renderer: renderer, sender: sender, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *EmailTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.EmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal email payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("template", payload.Template),
	)

	msg, err := h.renderer.Render(payload.Template, payload.To, payload.Data)
	if err != nil {
		log.Error("render email failed", slog.Any("error", err))
		if errors.Is(err, mail.ErrUnknownTemplate) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	defer func() {
		if retErr != nil && isFinalAttempt(ctx) {
			log.Error("email delivery exhausted retries", slog.Any("error", retErr))
		}
	}()

	if err := h.sender.Send(ctx, msg); err != nil {
		log.Warn("send email failed", slog.Any("error", err))
		return err
	}
	log.Info("email sent")
	return nil
}

func isFinalAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
