package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/still-there/attendance-api/internal/models"
	"github.com/still-there/attendance-api/pkg/config"
	"github.com/still-there/attendance-api/pkg/jobs"
)

type legacyAttendanceRepository interface {
	Insert(ctx context.Context, record *models.LegacyAttendanceRecord) error
}

// LegacyMirrorService copies accepted attendance records into the pre-runs
// attendance table for consumers that have not migrated. Writes run off the
// request path through a worker queue; a dropped mirror write never affects
// the record of truth.
type LegacyMirrorService struct {
	repo   legacyAttendanceRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewLegacyMirrorService constructs the mirror and its backing queue. The
// queue is not started; call Start before serving traffic.
func NewLegacyMirrorService(repo legacyAttendanceRepository, cfg config.LegacyConfig, logger *zap.Logger) *LegacyMirrorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LegacyMirrorService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("legacy-mirror", s.handle, jobs.QueueConfig{
		Workers:    cfg.MirrorWorkers,
		MaxRetries: cfg.MirrorRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the mirror workers.
func (s *LegacyMirrorService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *LegacyMirrorService) Stop() {
	s.queue.Stop()
}

// Mirror enqueues one record for the compatibility table. Failures are
// logged and forgotten.
func (s *LegacyMirrorService) Mirror(record models.AttendanceLog) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      record.ID,
		Type:    "legacy-attendance",
		Payload: record,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue legacy mirror write",
			zap.String("record_id", record.ID),
			zap.Error(err),
		)
	}
}

func (s *LegacyMirrorService) handle(ctx context.Context, job jobs.Job) error {
	record, ok := job.Payload.(models.AttendanceLog)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	legacy := &models.LegacyAttendanceRecord{
		ID:          record.ID,
		SessionID:   record.SessionID,
		StudentName: record.StudentName,
		TimeIn:      record.SubmittedAt,
		ProofImage:  record.ProofURL,
	}
	return s.repo.Insert(ctx, legacy)
}
