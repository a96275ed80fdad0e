// -----------------------------------------------------------------------
// Refresh Scheduler - periodic re-crawl of known knowledge sources
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service enqueues refresh jobs on a cron schedule. Refresh jobs carry
// skip_unchanged so sources whose fingerprint has not moved complete with
// zero chunks.
type Service struct {
	logger  arbor.ILogger
	config  *common.RefreshConfig
	jobSvc  interfaces.JobService
	jobs    interfaces.JobStorage
	crawls  interfaces.CrawlStorage
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewService creates the refresh scheduler
func NewService(
	logger arbor.ILogger,
	config *common.RefreshConfig,
	jobSvc interfaces.JobService,
	jobs interfaces.JobStorage,
	crawls interfaces.CrawlStorage,
) interfaces.SchedulerService {
	return &Service{
		logger: logger,
		config: config,
		jobSvc: jobSvc,
		jobs:   jobs,
		crawls: crawls,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start registers the refresh cycle with cron and begins scheduling
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if !s.config.Enabled {
		s.logger.Info().Msg("Refresh scheduler disabled by configuration")
		return nil
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "0 0 */6 * * *"
	}

	if _, err := s.cron.AddFunc(schedule, s.runRefreshCycle); err != nil {
		return fmt.Errorf("failed to register refresh schedule: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", schedule).Msg("Refresh scheduler started")
	return nil
}

// Stop halts the cron scheduler and waits for a running cycle
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Refresh scheduler stopped")
	return nil
}

// runRefreshCycle enqueues one refresh job per chatbot with crawl history
func (s *Service) runRefreshCycle() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Recovered from panic in refresh cycle")
		}
	}()

	start := time.Now()
	ctx := context.Background()

	chatbotIDs, err := s.crawls.ListChatbotIDs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enumerate chatbots for refresh")
		return
	}

	enqueued := 0
	for _, chatbotID := range chatbotIDs {
		if s.enqueueRefresh(ctx, chatbotID) {
			enqueued++
		}
	}

	s.logger.Info().
		Int("chatbots", len(chatbotIDs)).
		Int("jobs_enqueued", enqueued).
		Dur("duration", time.Since(start)).
		Msg("Refresh cycle completed")
}

// enqueueRefresh creates one refresh job for a chatbot's known URLs. Chatbots
// with an active job are skipped to avoid overlapping pipelines.
func (s *Service) enqueueRefresh(ctx context.Context, chatbotID string) bool {
	active, err := s.jobs.ListJobs(ctx, &interfaces.JobListOptions{ChatbotID: chatbotID, Limit: 5})
	if err != nil {
		s.logger.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("Failed to check active jobs")
		return false
	}

	tenantID := ""
	for _, job := range active {
		if !job.IsTerminal() {
			s.logger.Debug().
				Str("chatbot_id", chatbotID).
				Str("job_id", job.ID).
				Msg("Skipping refresh, chatbot has an active job")
			return false
		}
		if tenantID == "" {
			tenantID = job.TenantID
		}
	}

	records, err := s.crawls.ListByChatbot(ctx, chatbotID)
	if err != nil {
		s.logger.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("Failed to list crawl records")
		return false
	}
	if len(records) == 0 {
		return false
	}

	sources := make([]interfaces.SourceInput, 0, len(records))
	for _, record := range records {
		sources = append(sources, interfaces.SourceInput{
			Type: models.SourceTypeWebsite,
			URL:  record.URL,
		})
	}

	job, err := s.jobSvc.CreateJob(ctx, chatbotID, tenantID, models.JobTriggerRefresh, sources)
	if err != nil {
		s.logger.Error().Err(err).Str("chatbot_id", chatbotID).Msg("Failed to create refresh job")
		return false
	}

	s.logger.Info().
		Str("chatbot_id", chatbotID).
		Str("job_id", job.ID).
		Int("sources", len(sources)).
		Msg("Refresh job enqueued")
	return true
}
