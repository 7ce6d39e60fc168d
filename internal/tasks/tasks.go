package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"hama/estate/internal/config"
	"hama/estate/internal/email"
	"hama/estate/internal/metrics"
	"hama/estate/internal/services"
)

// TaskType defines the type of a background task.
const (
	TypeInquirySync = "inquiry:sync"
)

const syncTaskName = "inquiry_sync"

// Queue names. Mail is drained at a lower weight than syncs.
const (
	QueueDefault = "default"
	QueueMail    = "mail"
)

// Queues returns the queue weights the worker polls.
func Queues() map[string]int {
	return map[string]int{
		QueueDefault: 3,
		QueueMail:    1,
	}
}

// TaskQueue reports the queue a task type is enqueued on.
func TaskQueue(taskType string) string {
	if taskType == TypeEmailDelivery {
		return QueueMail
	}
	return QueueDefault
}

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// InquirySyncPayload identifies the conversation whose inquiry is refreshed.
type InquirySyncPayload struct {
	ConversationID string `json:"conversation_id"`
}

// NewInquirySyncTask builds an inquiry sync task. The task is not retried:
// the next message send repairs whatever a failed run left behind.
func NewInquirySyncTask(conversationID string) (*asynq.Task, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	payload, err := json.Marshal(InquirySyncPayload{ConversationID: conversationID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode inquiry sync payload: %w", err)
	}
	return asynq.NewTask(TypeInquirySync, payload, asynq.MaxRetry(0), asynq.Queue(TaskQueue(TypeInquirySync))), nil
}

// Enqueuer is the part of *asynq.Client the syncer needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqInquirySyncer hands inquiry syncs to the task queue.
type AsynqInquirySyncer struct {
	client Enqueuer
}

func NewAsynqInquirySyncer(client Enqueuer) *AsynqInquirySyncer {
	return &AsynqInquirySyncer{client: client}
}

// RequestSync enqueues a sync for conversationID. Enqueue failures are
// logged and counted only.
func (s *AsynqInquirySyncer) RequestSync(ctx context.Context, conversationID string) {
	task, err := NewInquirySyncTask(conversationID)
	if err == nil {
		_, err = s.client.EnqueueContext(context.WithoutCancel(ctx), task)
	}
	if err != nil {
		metrics.BestEffortFailures.WithLabelValues(syncTaskName).Inc()
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to enqueue inquiry sync")
	}
}

// LocalInquirySyncer runs inquiry syncs in-process on a Runner.
type LocalInquirySyncer struct {
	runner    *Runner
	inquiries services.IInquiryService
}

func NewLocalInquirySyncer(runner *Runner, inquiries services.IInquiryService) *LocalInquirySyncer {
	return &LocalInquirySyncer{runner: runner, inquiries: inquiries}
}

func (s *LocalInquirySyncer) RequestSync(_ context.Context, conversationID string) {
	s.runner.Go(syncTaskName, func(ctx context.Context) error {
		return s.inquiries.Sync(ctx, conversationID)
	})
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
type TaskProcessor struct {
	inquiries services.IInquiryService
	sender    email.Sender
	cfg       *config.Config
}

// NewTaskProcessor creates a TaskProcessor. sender may be nil, in which case
// email tasks are dropped.
func NewTaskProcessor(inquiries services.IInquiryService, sender email.Sender, cfg *config.Config) *TaskProcessor {
	return &TaskProcessor{inquiries: inquiries, sender: sender, cfg: cfg}
}

// SetupServer configures an Asynq server and the mux with all handlers
// registered. The caller starts it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: Queues(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				switch task.Type() {
				case TypeInquirySync:
					metrics.BestEffortFailures.WithLabelValues(syncTaskName).Inc()
				case TypeEmailDelivery:
					metrics.BestEffortFailures.WithLabelValues(emailTaskName).Inc()
				}
				log.Warn().Err(err).Str("type", task.Type()).Bytes("payload", task.Payload()).Msg("task failed")
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeInquirySync, processor.HandleInquirySyncTask)
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	log.Info().Msg("registered background task handlers")

	return srv, mux
}

// --- Task Handlers ---

// HandleInquirySyncTask refreshes the stored inquiry of one conversation.
func (p *TaskProcessor) HandleInquirySyncTask(ctx context.Context, t *asynq.Task) error {
	var payload InquirySyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal inquiry sync payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ConversationID == "" {
		return fmt.Errorf("inquiry sync payload has no conversation id: %w", asynq.SkipRetry)
	}

	if err := p.inquiries.Sync(ctx, payload.ConversationID); err != nil {
		return fmt.Errorf("inquiry sync for conversation %s: %w", payload.ConversationID, err)
	}
	log.Debug().Str("conversation_id", payload.ConversationID).Msg("inquiry synced")
	return nil
}
