package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ExpiredOfferPurger drops expired entries from an in-process offer cache
type ExpiredOfferPurger interface {
	PurgeExpired() int
}

// StaleSubmissionMarker flags submission claims left in_flight by a dead process
type StaleSubmissionMarker interface {
	MarkStaleSubmissionsAmbiguous(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditLogPruner deletes audit events older than a cutoff
type AuditLogPruner interface {
	CleanupOldAuditLogs(ctx context.Context, cutoff time.Time) (int64, error)
}

// CronConfig holds job schedules (cron format with seconds)
type CronConfig struct {
	PurgeSchedule        string
	StaleClaimSchedule   string
	StaleClaimAfter      time.Duration
	AuditCleanupSchedule string
	AuditRetention       time.Duration // zero keeps audit logs forever
}

// CronService manages scheduled background jobs
type CronService struct {
	cron   *cron.Cron
	purger ExpiredOfferPurger
	claims StaleSubmissionMarker
	audit  AuditLogPruner
	config CronConfig
	logger *logrus.Logger
	now    func() time.Time
}

// NewCronService creates a new CronService. purger is nil when offers live in Redis.
func NewCronService(purger ExpiredOfferPurger, claims StaleSubmissionMarker, audit AuditLogPruner, config CronConfig, logger *logrus.Logger) *CronService {
	if config.StaleClaimSchedule == "" {
		config.StaleClaimSchedule = "30 * * * * *"
	}
	if config.StaleClaimAfter <= 0 {
		config.StaleClaimAfter = 5 * time.Minute
	}
	if config.AuditCleanupSchedule == "" {
		config.AuditCleanupSchedule = "0 0 3 * * *"
	}

	return &CronService{
		cron:   cron.New(cron.WithSeconds()),
		purger: purger,
		claims: claims,
		audit:  audit,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if s.purger != nil && s.config.PurgeSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.PurgeSchedule, s.purgeExpiredOffersJob); err != nil {
			return fmt.Errorf("failed to schedule offer purge job: %w", err)
		}
		s.logger.WithField("schedule", s.config.PurgeSchedule).Info("✓ Scheduled: Purge expired offers")
	}

	if s.claims != nil {
		if _, err := s.cron.AddFunc(s.config.StaleClaimSchedule, s.markStaleSubmissionsJob); err != nil {
			return fmt.Errorf("failed to schedule stale submission job: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"schedule":    s.config.StaleClaimSchedule,
			"stale_after": s.config.StaleClaimAfter.String(),
		}).Info("✓ Scheduled: Flag stale booking submissions")
	}

	if s.audit != nil && s.config.AuditRetention > 0 {
		if _, err := s.cron.AddFunc(s.config.AuditCleanupSchedule, s.cleanupAuditLogsJob); err != nil {
			return fmt.Errorf("failed to schedule audit cleanup job: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"schedule":  s.config.AuditCleanupSchedule,
			"retention": s.config.AuditRetention.String(),
		}).Info("✓ Scheduled: Audit log retention")
	}

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

func (s *CronService) purgeExpiredOffersJob() {
	startTime := s.now()
	purged := s.purger.PurgeExpired()
	s.logger.WithFields(logrus.Fields{
		"purged":   purged,
		"duration": time.Since(startTime).String(),
	}).Debug("[CRON] Purged expired offers")
}

func (s *CronService) markStaleSubmissionsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := s.now().Add(-s.config.StaleClaimAfter)
	marked, err := s.claims.MarkStaleSubmissionsAmbiguous(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("[CRON ERROR] Failed to flag stale submissions")
		return
	}
	if marked > 0 {
		s.logger.WithField("count", marked).Warn("[CRON] Flagged stale booking submissions for support")
	}
}

func (s *CronService) cleanupAuditLogsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	deleted, err := s.audit.CleanupOldAuditLogs(ctx, s.now().Add(-s.config.AuditRetention))
	if err != nil {
		s.logger.WithError(err).Error("[CRON ERROR] Failed to clean up audit logs")
		return
	}
	s.logger.WithField("deleted", deleted).Info("[CRON] Audit log cleanup completed")
}

// RunNow runs every job once, synchronously
func (s *CronService) RunNow() {
	if s.purger != nil {
		s.purgeExpiredOffersJob()
	}
	if s.claims != nil {
		s.markStaleSubmissionsJob()
	}
	if s.audit != nil && s.config.AuditRetention > 0 {
		s.cleanupAuditLogsJob()
	}
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
