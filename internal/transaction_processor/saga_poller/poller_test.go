package saga_poller

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/exchange-bridge/internal/config"
	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestPoller_ProcessDueJobs(t *testing.T) {
	logger := slog.Default()
	cfg := &config.SagaJobsConfig{
		PollingInterval: time.Second,
		BatchSize:       10,
	}

	now := time.Now().UTC()
	job1 := sagajob.NewJob(uuid.New(), "corr-1", now)
	job2 := sagajob.NewJob(uuid.New(), "corr-2", now)
	job2.Status = shared.SagaJobStatusParked
	job2.Attempts = 2

	forJob := func(job *sagajob.Job) interface{} {
		return mock.MatchedBy(func(req *shared.SagaRequest) bool {
			return req.TransactionID == job.TransactionID && req.CorrelationID == job.CorrelationID
		})
	}

	tests := []struct {
		name          string
		setupMocks    func(jobs *MockJobRepo, sagas *MockSagaSubmitter)
		expectedError string
	}{
		{
			name: "submits every due job",
			setupMocks: func(jobs *MockJobRepo, sagas *MockSagaSubmitter) {
				jobs.On("GetRunnable", mock.Anything, mock.Anything, 10).Return([]*sagajob.Job{job1, job2}, nil).Once()
				sagas.On("Submit", mock.Anything, forJob(job1)).Return(nil).Once()
				sagas.On("Submit", mock.Anything, forJob(job2)).Return(nil).Once()
			},
		},
		{
			name: "error getting due jobs",
			setupMocks: func(jobs *MockJobRepo, sagas *MockSagaSubmitter) {
				jobs.On("GetRunnable", mock.Anything, mock.Anything, 10).Return(nil, errors.New("db error")).Once()
			},
			expectedError: "failed to get runnable saga jobs",
		},
		{
			name: "no due jobs",
			setupMocks: func(jobs *MockJobRepo, sagas *MockSagaSubmitter) {
				jobs.On("GetRunnable", mock.Anything, mock.Anything, 10).Return([]*sagajob.Job{}, nil).Once()
			},
		},
		{
			name: "stops the batch when the pool refuses work",
			setupMocks: func(jobs *MockJobRepo, sagas *MockSagaSubmitter) {
				jobs.On("GetRunnable", mock.Anything, mock.Anything, 10).Return([]*sagajob.Job{job1, job2}, nil).Once()
				sagas.On("Submit", mock.Anything, forJob(job1)).Return(errors.New("pool closed")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &MockJobRepo{}
			sagas := &MockSagaSubmitter{}
			poller := NewPoller(cfg, jobs, sagas, logger)

			tt.setupMocks(jobs, sagas)
			err := poller.processDueJobs(context.Background())

			if tt.expectedError != "" {
				assert.ErrorContains(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			jobs.AssertExpectations(t)
			sagas.AssertExpectations(t)
		})
	}
}

func TestPoller_Start(t *testing.T) {
	jobs := &MockJobRepo{}
	sagas := &MockSagaSubmitter{}
	cfg := &config.SagaJobsConfig{PollingInterval: 10 * time.Millisecond, BatchSize: 10}

	poller := NewPoller(cfg, jobs, sagas, slog.Default())
	jobs.On("GetRunnable", mock.Anything, mock.Anything, 10).Return([]*sagajob.Job{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
	jobs.AssertCalled(t, "GetRunnable", mock.Anything, mock.Anything, 10)
}
