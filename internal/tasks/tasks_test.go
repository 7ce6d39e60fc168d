package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hama/estate/internal/metrics"
	"hama/estate/internal/models"
	"hama/estate/internal/tasks"
)

// --- Mocks ---

// MockInquiryService
type MockInquiryService struct {
	mock.Mock
}

func (m *MockInquiryService) Aggregate(ctx context.Context, agentID string) ([]models.Inquiry, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) ListForAgent(ctx context.Context, agentID string) (*models.InquiryView, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InquiryView), args.Error(1)
}

func (m *MockInquiryService) Sync(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *MockInquiryService) CreateInquiry(ctx context.Context, propertyID, clientID, message string) (*models.Inquiry, error) {
	args := m.Called(ctx, propertyID, clientID, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) UpdateStatus(ctx context.Context, inquiryID, agentID string, status models.InquiryStatus) (*models.Inquiry, error) {
	args := m.Called(ctx, inquiryID, agentID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

// MockEnqueuer
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

func failures(task string) float64 {
	return testutil.ToFloat64(metrics.BestEffortFailures.WithLabelValues(task))
}

// --- Tests ---

func TestHandleInquirySyncTask_Success(t *testing.T) {
	svc := new(MockInquiryService)
	p := tasks.NewTaskProcessor(svc, nil, nil)

	task, err := tasks.NewInquirySyncTask("c1")
	require.NoError(t, err)

	svc.On("Sync", mock.Anything, "c1").Return(nil).Once()

	assert.NoError(t, p.HandleInquirySyncTask(context.Background(), task))
	svc.AssertExpectations(t)
}

func TestHandleInquirySyncTask_SyncError(t *testing.T) {
	svc := new(MockInquiryService)
	p := tasks.NewTaskProcessor(svc, nil, nil)
	task, _ := tasks.NewInquirySyncTask("c1")

	expected := errors.New("store down")
	svc.On("Sync", mock.Anything, "c1").Return(expected).Once()

	err := p.HandleInquirySyncTask(context.Background(), task)
	assert.ErrorIs(t, err, expected)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleInquirySyncTask_BadPayload(t *testing.T) {
	svc := new(MockInquiryService)
	p := tasks.NewTaskProcessor(svc, nil, nil)

	err := p.HandleInquirySyncTask(context.Background(), asynq.NewTask(tasks.TypeInquirySync, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	empty, _ := json.Marshal(tasks.InquirySyncPayload{})
	err = p.HandleInquirySyncTask(context.Background(), asynq.NewTask(tasks.TypeInquirySync, empty))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	svc.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
}

func TestNewInquirySyncTask(t *testing.T) {
	_, err := tasks.NewInquirySyncTask("")
	assert.Error(t, err)

	task, err := tasks.NewInquirySyncTask("c9")
	require.NoError(t, err)
	assert.Equal(t, tasks.TypeInquirySync, task.Type())

	var payload tasks.InquirySyncPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "c9", payload.ConversationID)
}

func TestQueues_ServeEveryTaskType(t *testing.T) {
	queues := tasks.Queues()
	used := map[string]bool{}
	for _, typ := range []string{tasks.TypeInquirySync, tasks.TypeEmailDelivery} {
		q := tasks.TaskQueue(typ)
		assert.Contains(t, queues, q, typ)
		used[q] = true
	}
	// Every polled queue has a task type routed to it.
	assert.Len(t, queues, len(used))
	assert.Equal(t, tasks.QueueMail, tasks.TaskQueue(tasks.TypeEmailDelivery))
	assert.Greater(t, queues[tasks.QueueDefault], queues[tasks.QueueMail])
}

func TestAsynqInquirySyncer_EnqueuesTask(t *testing.T) {
	q := new(MockEnqueuer)
	q.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		var p tasks.InquirySyncPayload
		return task.Type() == tasks.TypeInquirySync &&
			json.Unmarshal(task.Payload(), &p) == nil && p.ConversationID == "c1"
	})).Return(&asynq.TaskInfo{ID: "t1"}, nil).Once()

	tasks.NewAsynqInquirySyncer(q).RequestSync(context.Background(), "c1")
	q.AssertExpectations(t)
}

func TestAsynqInquirySyncer_SwallowsEnqueueError(t *testing.T) {
	q := new(MockEnqueuer)
	q.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, errors.New("redis down")).Once()

	before := failures("inquiry_sync")
	assert.NotPanics(t, func() {
		tasks.NewAsynqInquirySyncer(q).RequestSync(context.Background(), "c1")
	})
	assert.Equal(t, before+1, failures("inquiry_sync"))
}

func TestAsynqInquirySyncer_IgnoresCallerCancellation(t *testing.T) {
	q := new(MockEnqueuer)
	q.On("EnqueueContext", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(&asynq.TaskInfo{}, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tasks.NewAsynqInquirySyncer(q).RequestSync(ctx, "c1")
	q.AssertExpectations(t)
}

func TestLocalInquirySyncer_RunsDetached(t *testing.T) {
	svc := new(MockInquiryService)
	svc.On("Sync", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return ctx.Err() == nil && hasDeadline
	}), "c1").Return(nil).Once()

	runner := tasks.NewRunner(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tasks.NewLocalInquirySyncer(runner, svc).RequestSync(ctx, "c1")
	runner.Wait()

	svc.AssertExpectations(t)
}

func TestRunner_CountsFailuresAndPanics(t *testing.T) {
	runner := tasks.NewRunner(time.Second)
	before := failures("runner_test")

	runner.Go("runner_test", func(ctx context.Context) error { return errors.New("boom") })
	runner.Go("runner_test", func(ctx context.Context) error { panic("kaboom") })
	runner.Go("runner_test", func(ctx context.Context) error { return nil })
	runner.Wait()

	assert.Equal(t, before+2, failures("runner_test"))
}

func TestRunner_AppliesTimeout(t *testing.T) {
	runner := tasks.NewRunner(10 * time.Millisecond)
	var mu sync.Mutex
	var got error

	runner.Go("runner_timeout", func(ctx context.Context) error {
		<-ctx.Done()
		mu.Lock()
		got = ctx.Err()
		mu.Unlock()
		return ctx.Err()
	})
	runner.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, got, context.DeadlineExceeded)
}
