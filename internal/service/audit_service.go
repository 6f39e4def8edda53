package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/pkg/jobs"
)

type auditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditService hands audit events to the sink. Writes go through the
// background queue so a slow sink never stalls the request path; a lost
// append is logged, not surfaced.
type AuditService struct {
	repo   auditStore
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService constructs the audit service and its write queue. Call
// Start before use and Stop on shutdown.
func NewAuditService(repo auditStore, logger *zap.Logger, workers int) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("audit", s.handle, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start launches the queue workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues an audit entry. It never blocks request handling on sink
// availability.
func (s *AuditService) Record(ctx context.Context, log *models.AuditLog) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if err := s.queue.Enqueue(jobs.Job{ID: log.ID, Type: "audit_log", Payload: log}); err != nil {
		s.logger.Warn("failed to enqueue audit log", zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("audit job %s has unexpected payload", job.ID)
	}
	return s.repo.Create(ctx, log)
}
