package worker

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// WithdrawnPurger 删除过期的撤回投递。
type WithdrawnPurger interface {
	PurgeExpiredWithdrawn(ctx context.Context) (int64, error)
}

// PurgeTaskHandler 消费 application:purge_withdrawn 任务。
type PurgeTaskHandler struct {
	purger WithdrawnPurger
	logger *slog.Logger
}

// NewPurgeTaskHandler 创建清理任务处理器。
func NewPurgeTaskHandler(purger WithdrawnPurger, logger *slog.Logger) *PurgeTaskHandler {
	return &PurgeTaskHandler{purger: purger, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *PurgeTaskHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	n, err := h.purger.PurgeExpiredWithdrawn(ctx)
	if err != nil {
		h.logger.Error("purge withdrawn applications failed", slog.Any("error", err))
		return err
	}
	if n > 0 {
		h.logger.Info("purged withdrawn applications", slog.Int64("count", n))
	}
	return nil
}
