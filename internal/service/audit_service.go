package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akademi/akademi-api/internal/models"
	"github.com/akademi/akademi-api/pkg/jobs"
)

type auditLogRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditService writes audit trail entries through a background queue so
// request handlers never wait on the audit table.
type AuditService struct {
	repo   auditLogRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// AuditQueueConfig sizes the background writer pool.
type AuditQueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// NewAuditService constructs the audit service and its queue. Start must be
// called before entries are recorded.
func NewAuditService(repo auditLogRepository, cfg AuditQueueConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("audit", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the background writers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the writers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues an audit entry. Entries are dropped with a log line when
// the queue is not running; auditing never fails the caller.
func (s *AuditService) Record(entry models.AuditLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      entry.ID,
		Type:    entry.Action,
		Payload: entry,
	})
	if err != nil {
		s.logger.Warn("audit entry dropped", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload type %T", job.Payload)
	}
	return s.repo.CreateAuditLog(ctx, &entry)
}
