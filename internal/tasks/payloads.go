package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeEmailSend      = "email:send"
	TypePurgeWithdrawn = "application:purge_withdrawn"
)

// 邮件模板名称。
const (
	TemplateVerifyEmail       = "verify_email"
	TemplateResetPassword     = "reset_password"
	TemplateApplicationStatus = "application_status"
)

// EmailMaxRetry 是邮件任务的最大重试次数。
const EmailMaxRetry = 5

// EmailPayload 描述一封待发送的模板邮件。
type EmailPayload struct {
	To            string            `json:"to"`
	Template      string            `json:"template"`
	Data          map[string]string `json:"data"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// NewEmailTask 构造邮件发送任务。
func NewEmailTask(p EmailPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailSend, payload,
		asynq.MaxRetry(EmailMaxRetry),
		asynq.Timeout(30*time.Second),
	), nil
}

// NewPurgeWithdrawnTask 构造撤回投递清理任务，由调度器周期性投递。
func NewPurgeWithdrawnTask() *asynq.Task {
	return asynq.NewTask(TypePurgeWithdrawn, nil,
		asynq.MaxRetry(1),
		asynq.Unique(5*time.Minute),
	)
}
