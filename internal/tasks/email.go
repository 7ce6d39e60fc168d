package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"hama/estate/internal/config"
	"hama/estate/internal/email"
	"hama/estate/internal/metrics"
	"hama/estate/internal/models"
)

const (
	TypeEmailDelivery = "email:deliver"

	emailTaskName = "email_delivery"
	emailMaxRetry = 3
)

// EmailTaskPayload carries a new-inquiry notice to the mail worker.
type EmailTaskPayload struct {
	Notice models.InquiryNotice `json:"notice"`
}

// NewEmailDeliveryTask builds an email task for notice.
func NewEmailDeliveryTask(notice models.InquiryNotice) (*asynq.Task, error) {
	if notice.AgentEmail == "" {
		return nil, fmt.Errorf("notice %s has no recipient", notice.InquiryID)
	}
	payload, err := json.Marshal(EmailTaskPayload{Notice: notice})
	if err != nil {
		return nil, fmt.Errorf("failed to encode email payload: %w", err)
	}
	return asynq.NewTask(TypeEmailDelivery, payload, asynq.MaxRetry(emailMaxRetry), asynq.Queue(TaskQueue(TypeEmailDelivery))), nil
}

// AsynqInquiryNotifier queues agent notices for the background worker.
type AsynqInquiryNotifier struct {
	client Enqueuer
}

func NewAsynqInquiryNotifier(client Enqueuer) *AsynqInquiryNotifier {
	return &AsynqInquiryNotifier{client: client}
}

func (n *AsynqInquiryNotifier) NotifyNewInquiry(ctx context.Context, notice models.InquiryNotice) {
	task, err := NewEmailDeliveryTask(notice)
	if err == nil {
		_, err = n.client.EnqueueContext(context.WithoutCancel(ctx), task)
	}
	if err != nil {
		metrics.BestEffortFailures.WithLabelValues(emailTaskName).Inc()
		log.Warn().Err(err).Str("inquiry_id", notice.InquiryID).Msg("failed to enqueue inquiry notice")
	}
}

// LocalInquiryNotifier sends agent notices in-process on a Runner.
type LocalInquiryNotifier struct {
	runner *Runner
	sender email.Sender
	cfg    *config.Config
}

func NewLocalInquiryNotifier(runner *Runner, sender email.Sender, cfg *config.Config) *LocalInquiryNotifier {
	return &LocalInquiryNotifier{runner: runner, sender: sender, cfg: cfg}
}

func (n *LocalInquiryNotifier) NotifyNewInquiry(_ context.Context, notice models.InquiryNotice) {
	n.runner.Go(emailTaskName, func(ctx context.Context) error {
		return deliverNotice(ctx, n.sender, n.cfg, notice)
	})
}

// HandleEmailDeliveryTask renders and sends one new-inquiry notice.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	if p.sender == nil {
		return fmt.Errorf("no email sender configured: %w", asynq.SkipRetry)
	}
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Notice.AgentEmail == "" {
		return fmt.Errorf("email task has no recipient: %w", asynq.SkipRetry)
	}
	return deliverNotice(ctx, p.sender, p.cfg, payload.Notice)
}

func deliverNotice(ctx context.Context, sender email.Sender, cfg *config.Config, notice models.InquiryNotice) error {
	subject, body, err := email.RenderNewInquiry(cfg.AppName, notice)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	to := []string{notice.AgentEmail}
	raw := email.Compose(cfg.SmtpFromAddress, to, subject, body, time.Now())
	if err := sender.Send(ctx, to, subject, raw); err != nil {
		return fmt.Errorf("failed to send inquiry notice %s: %w", notice.InquiryID, err)
	}
	log.Info().Str("inquiry_id", notice.InquiryID).Str("to", notice.AgentEmail).Msg("inquiry notice sent")
	return nil
}
