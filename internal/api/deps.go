package api

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"hirehub/internal/api/middleware"
	"hirehub/internal/storage"
	"hirehub/internal/tasks"
)

// ObjectStorage 是处理器依赖的对象存储能力，由 storage.Client 实现。
type ObjectStorage interface {
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	GeneratePresignedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// TaskEnqueuer 由 asynq.Client 实现。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// presenceReader 由 realtime.Hub 实现。
type presenceReader interface {
	OnlineUsers(ctx context.Context) ([]uint, error)
}

const presignTTL = 15 * time.Minute

// presign 为对象键生成下载链接；空键或失败时返回空串。
func presign(c *gin.Context, store ObjectStorage, key string) string {
	if key == "" || store == nil {
		return ""
	}
	u, err := store.GeneratePresignedURL(c.Request.Context(), key, presignTTL)
	if err != nil {
		middleware.LoggerFromContext(c).Warn("presign object failed",
			slog.String("object_key", key),
			slog.Any("error", err),
		)
		return ""
	}
	return u
}

// enqueueEmail 投递邮件任务；失败只记录日志，不影响主流程。
func enqueueEmail(c *gin.Context, q TaskEnqueuer, to, template string, data map[string]string) {
	task, err := tasks.NewEmailTask(tasks.EmailPayload{
		To:            to,
		Template:      template,
		Data:          data,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	log := middleware.LoggerFromContext(c).With(slog.String("template", template))
	if err != nil {
		log.Error("build email task failed", slog.Any("error", err))
		return
	}
	if _, err := q.EnqueueContext(c.Request.Context(), task); err != nil {
		log.Error("enqueue email task failed", slog.Any("error", err))
		return
	}
	log.Info("email task enqueued")
}

// storeUpload 将校验过的文件写入 prefix/ownerID 下；失败时已写入响应。
func storeUpload(c *gin.Context, store ObjectStorage, prefix string, ownerID uint, f *uploadedFile) (string, bool) {
	key := storage.ObjectKey(prefix, ownerID, f.Filename)
	if err := store.UploadFile(c.Request.Context(), key, f.Reader(), f.Size(), f.ContentType); err != nil {
		middleware.LoggerFromContext(c).Error("upload object failed",
			slog.String("object_key", key),
			slog.Any("error", err),
		)
		Internal(c, "failed to store file")
		return "", false
	}
	return key, true
}

// discardObject 删除被替换或回滚的对象，失败只记录日志。
func discardObject(c *gin.Context, store ObjectStorage, key string) {
	if key == "" {
		return
	}
	if err := store.DeleteObject(c.Request.Context(), key); err != nil {
		middleware.LoggerFromContext(c).Warn("delete object failed",
			slog.String("object_key", key),
			slog.Any("error", err),
		)
	}
}
