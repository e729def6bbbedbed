// Package worker runs the asynq server consuming background tasks.
package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Sanket2004/text-sharing-app/internal/repository"
	"github.com/Sanket2004/text-sharing-app/internal/tasks"
)

// Server wraps the asynq worker server lifecycle.
type Server struct {
	server *asynq.Server
	log    *logrus.Entry
	repo   repository.MessageRepository
}

// NewServer creates a worker Server.
func NewServer(redisOpt asynq.RedisClientOpt, repo repository.MessageRepository, logger *logrus.Logger) *Server {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &Server{server: server, log: logEntry, repo: repo}
}

// Start runs the worker loop. Call from its own goroutine.
func (s *Server) Start() {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeMessagePrune, NewMessagePruneHandler(s.repo))

	s.log.Info("Worker server starting...")
	if err := s.server.Run(mux); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			s.log.Fatalf("Could not run worker server: %v", err)
		}
		s.log.Info("Worker server stopped")
	}
}

// Shutdown stops the worker gracefully.
func (s *Server) Shutdown() {
	s.log.Info("Shutting down worker server...")
	s.server.Shutdown()
}
