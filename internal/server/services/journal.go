package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/api"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/tripkeeper/internal/server/ident"
	"github.com/dmitrijs2005/tripkeeper/internal/server/journal"
	"github.com/dmitrijs2005/tripkeeper/internal/server/models"
	"github.com/dmitrijs2005/tripkeeper/internal/server/photos"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
	"github.com/google/uuid"
)

// JobResult is what a single run of a journal job amounted to.
type JobResult string

const (
	JobResultDone    JobResult = "done"
	JobResultSkipped JobResult = "skipped"
)

const dueSweepActor = "scheduler:runDueJournalJobs"

// DueReport summarizes one due-job sweep.
type DueReport struct {
	Checked   int
	Processed int
	Failed    int
	Skipped   int
	Invalid   int
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	ScannedPlans int
	CreatedJobs  int
}

// JournalService enqueues journal jobs and runs them through the
// queued/running/done/failed/deadletter state machine.
type JournalService struct {
	store    docstore.Store
	clock    timex.Clock
	logger   logging.Logger
	photos   photos.Source
	opts     Options
	instance string
}

func NewJournalService(store docstore.Store, clock timex.Clock, logger logging.Logger, src photos.Source, opts Options) *JournalService {
	if src == nil {
		src = photos.NopSource{}
	}
	return &JournalService{
		store:    store,
		clock:    clock,
		logger:   logger.With("module", "journal_service"),
		photos:   src,
		opts:     opts.withDefaults(),
		instance: uuid.NewString(),
	}
}

func newJobData(planID, ownerUID, dateLocal string, phase models.JobPhase, timezone string, dueAt, now time.Time) docstore.Data {
	key := models.JobKey(planID, dateLocal, phase)
	return docstore.Data{
		models.FieldPlanID:         planID,
		models.FieldOwnerUID:       ownerUID,
		models.FieldDateLocal:      dateLocal,
		models.FieldPhase:          string(phase),
		models.FieldTimezone:       timezone,
		models.FieldDueAtUTC:       dueAt,
		models.FieldState:          string(models.JobQueued),
		models.FieldAttemptCount:   0,
		models.FieldNextRetryAt:    nil,
		models.FieldIdempotencyKey: key,
		models.FieldLockOwner:      nil,
		models.FieldLockAt:         nil,
		models.FieldLastError:      nil,
		models.FieldCreatedAt:      now,
		models.FieldUpdatedAt:      now,
		models.FieldUpdatedBy:      string(models.ActorSystem),
		models.FieldSource:         string(models.SourceJournal),
	}
}

// Enqueue creates the job for (plan, date, phase) unless it exists. The
// due time is the explicit override or the phase's default local hour in
// the job's timezone.
func (s *JournalService) Enqueue(ctx context.Context, uid string, req *api.EnqueueJournalJobRequest) (*api.EnqueueJournalJobResponse, error) {
	plan, err := assertPlanOwner(ctx, s.store, req.PlanID, uid)
	if err != nil {
		return nil, err
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = plan.PlanTimezone
	}
	if _, err := timex.LoadLocation(timezone); err != nil {
		return nil, err
	}
	phase := models.JobPhase(req.Phase)

	var dueAt time.Time
	if req.DueAtUTCMs != nil {
		dueAt = time.UnixMilli(*req.DueAtUTCMs).UTC()
	} else {
		dueAt, err = timex.DueTimeUTC(req.DateLocal, timex.DefaultDueHour(req.Phase), 0, timezone)
		if err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	key := models.JobKey(req.PlanID, req.DateLocal, phase)
	opID := ident.ResolveOpID(req.OpID, uid, key, ident.Millis(now.UnixMilli()))
	jobID := ident.DocID(key)

	data := newJobData(req.PlanID, uid, req.DateLocal, phase, timezone, dueAt, now)
	data[models.FieldLastOpID] = opID

	deduped, err := createOnce(ctx, s.store, models.JobPath(jobID), data)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "journal job enqueued", "job_id", jobID, "key", key, "due_at", dueAt, "deduped", deduped)
	return &api.EnqueueJournalJobResponse{JobID: jobID, Deduped: deduped}, nil
}

// RunJournalJob runs a job the caller owns right away.
func (s *JournalService) RunJournalJob(ctx context.Context, uid string, req *api.RunJournalJobRequest) (*api.RunJournalJobResponse, error) {
	doc, err := s.store.Get(ctx, models.JobPath(req.JobID))
	if err != nil {
		return nil, common.Internal("load journal job", err)
	}
	if doc == nil {
		return nil, common.NotFound("journal job not found.")
	}
	if models.String(doc.Data, models.FieldOwnerUID) != uid {
		return nil, common.PermissionDenied("journal job access denied.")
	}

	result, err := s.RunJob(ctx, req.JobID, "user:"+uid)
	if err != nil {
		return nil, err
	}
	return &api.RunJournalJobResponse{JobID: req.JobID, Result: string(result)}, nil
}

// lock moves a runnable job to running. It returns nil when the job is
// already running or finished.
func (s *JournalService) lock(ctx context.Context, jobID, actor string) (*models.JournalJob, error) {
	var locked *models.JournalJob
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		locked = nil
		path := models.JobPath(jobID)
		doc, err := tx.Get(ctx, path)
		if err != nil {
			return err
		}
		if doc == nil {
			return common.NotFound("journal job not found.")
		}
		job := models.DecodeJob(doc)
		if job.ShouldSkipForLock() {
			return nil
		}

		now := s.clock.Now()
		err = tx.Merge(ctx, path, models.With(models.Touch(now, models.ActorSystem, models.SourceJournal), docstore.Data{
			models.FieldState:     string(models.JobRunning),
			models.FieldLockOwner: actor,
			models.FieldLockAt:    now,
		}))
		if err != nil {
			return err
		}
		job.State = models.JobRunning
		job.LockOwner = actor
		job.LockAt = &now
		locked = &job
		return nil
	})
	if err != nil {
		return nil, txError("lock journal job", err)
	}
	return locked, nil
}

// RunJob locks, executes and completes one job. A job that is running or
// finished is skipped. An execution failure is recorded on the job, as a
// retry or a dead letter, and then returned.
func (s *JournalService) RunJob(ctx context.Context, jobID, actor string) (JobResult, error) {
	job, err := s.lock(ctx, jobID, actor)
	if err != nil {
		return "", err
	}
	if job == nil {
		return JobResultSkipped, nil
	}

	execErr := s.execute(ctx, job)
	if err := s.complete(ctx, job, execErr); err != nil {
		return "", err
	}
	if execErr != nil {
		return "", execErr
	}
	return JobResultDone, nil
}

func (s *JournalService) complete(ctx context.Context, job *models.JournalJob, execErr error) error {
	now := s.clock.Now()
	patch := models.With(models.Touch(now, models.ActorSystem, models.SourceJournal), docstore.Data{
		models.FieldLockOwner: nil,
		models.FieldLockAt:    nil,
	})

	logger := s.logger.With("job_id", job.ID, "phase", string(job.Phase), "date_local", job.DateLocal)
	if execErr == nil {
		patch[models.FieldState] = string(models.JobDone)
		logger.Info(ctx, "journal job done")
	} else {
		attempts := job.AttemptCount + 1
		patch[models.FieldAttemptCount] = attempts
		patch[models.FieldLastError] = errorMessage(execErr)
		if attempts >= s.opts.MaxAttempts {
			patch[models.FieldState] = string(models.JobDeadletter)
			patch[models.FieldNextRetryAt] = nil
			logger.Error(ctx, "journal job dead-lettered", "attempts", attempts, "error", execErr)
		} else {
			patch[models.FieldState] = string(models.JobFailed)
			patch[models.FieldNextRetryAt] = now.Add(s.opts.RetryDelay)
			logger.Warn(ctx, "journal job failed", "attempts", attempts, "error", execErr)
		}
	}

	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Merge(ctx, models.JobPath(job.ID), patch)
	})
	if err != nil {
		return common.Internal("complete journal job", err)
	}
	return nil
}

func errorMessage(err error) string {
	var ce *common.Error
	if errors.As(err, &ce) {
		return ce.Msg
	}
	return err.Error()
}

func (s *JournalService) execute(ctx context.Context, job *models.JournalJob) error {
	switch job.Phase {
	case models.PhaseGenerate, models.PhaseBackfill:
		return s.generate(ctx, job)
	case models.PhasePublish:
		return s.publish(ctx, job)
	}
	return fmt.Errorf("unknown journal phase %q", job.Phase)
}

func journalDayPath(planID, dateLocal string) string {
	return models.PlanChildPath(planID, models.CollectionJournalDays, dateLocal)
}

// composeInput gathers everything the composition policy looks at.
func (s *JournalService) composeInput(ctx context.Context, job *models.JournalJob) (journal.Input, []string, error) {
	planDoc, err := s.store.Get(ctx, models.PlanPath(job.PlanID))
	if err != nil {
		return journal.Input{}, nil, fmt.Errorf("load plan: %w", err)
	}
	if planDoc == nil {
		return journal.Input{}, nil, fmt.Errorf("plan %s not found", job.PlanID)
	}
	plan := models.DecodePlan(planDoc)

	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: models.PlanChildCollection(job.PlanID, models.CollectionEvents),
		Filters:    []docstore.Filter{{Field: models.FieldDateLocal, Op: docstore.OpEq, Value: job.DateLocal}},
	})
	if err != nil {
		return journal.Input{}, nil, fmt.Errorf("load events: %w", err)
	}
	candidates := make([]journal.Candidate, 0, len(docs))
	for _, d := range docs {
		e := models.DecodeEvent(d)
		if e.IsDeleted {
			continue
		}
		candidates = append(candidates, journal.FromEvent(e))
	}

	settings, err := s.store.Get(ctx, models.UserSettingsPath(job.OwnerUID))
	if err != nil {
		return journal.Input{}, nil, fmt.Errorf("load user settings: %w", err)
	}

	signal, err := s.photos.DaySignal(ctx, job.PlanID, job.DateLocal)
	if err != nil {
		s.logger.Warn(ctx, "photo signal unavailable", "plan_id", job.PlanID, "date_local", job.DateLocal, "error", err)
		signal = photos.Signal{}
	}

	return journal.Input{
		DateLocal:           job.DateLocal,
		PlanTitle:           plan.Title,
		Events:              candidates,
		PhotoCount:          signal.Count,
		TopLocationLabel:    journal.TopLocationLabel(journal.Rank(candidates, journal.MaxSelectedEvents)),
		GenerateWithoutData: models.GenerateWithoutData(settings),
	}, signal.Keys, nil
}

// generate writes the day's draft.
func (s *JournalService) generate(ctx context.Context, job *models.JournalJob) error {
	in, photoKeys, err := s.composeInput(ctx, job)
	if err != nil {
		return err
	}
	out := journal.Compose(in)

	publishAt, err := timex.DueTimeUTC(job.DateLocal, timex.DefaultDueHour(string(models.PhasePublish)), 0, job.Timezone)
	if err != nil {
		return err
	}
	if photoKeys == nil {
		photoKeys = []string{}
	}

	var failure any
	if out.State == journal.StateInsufficientData {
		failure = models.FailureInsufficientData
	}

	path := journalDayPath(job.PlanID, job.DateLocal)
	return s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		existing, err := tx.Get(ctx, path)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		fields := docstore.Data{
			models.FieldOwnerUID:            job.OwnerUID,
			models.FieldPlanID:              job.PlanID,
			models.FieldDateLocal:           job.DateLocal,
			models.FieldState:               string(models.DayDraft),
			models.FieldPublishAtUTC:        publishAt,
			models.FieldPublishedAt:         nil,
			models.FieldSummary:             out.Summary,
			models.FieldEntryText:           out.EntryText,
			models.FieldSelectedEventIDs:    out.SelectedEventIDs,
			models.FieldPhotoCount:          in.PhotoCount,
			models.FieldPhotoKeys:           photoKeys,
			models.FieldTopLocationLabel:    in.TopLocationLabel,
			models.FieldGenerationInputHash: journal.Fingerprint(job.PlanID, in, out),
			models.FieldFailureReasonCode:   failure,
		}
		if existing == nil {
			return tx.Set(ctx, path, models.With(models.NewAudit(now, models.ActorSystem, models.SourceJournal, ""), fields))
		}
		fields = models.With(fields, models.Touch(now, models.ActorSystem, models.SourceJournal))
		fields[models.FieldVersion] = models.NextVersion(existing.Data[models.FieldVersion])
		return tx.Merge(ctx, path, fields)
	})
}

// publish flips the day's draft to published, generating it first when
// there is none yet.
func (s *JournalService) publish(ctx context.Context, job *models.JournalJob) error {
	path := journalDayPath(job.PlanID, job.DateLocal)
	day, err := s.store.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("load journal day: %w", err)
	}
	if day == nil {
		if err := s.generate(ctx, job); err != nil {
			return err
		}
	}

	return s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		day, err := tx.Get(ctx, path)
		if err != nil {
			return err
		}
		if day == nil {
			return fmt.Errorf("journal day %s disappeared before publish", job.DateLocal)
		}
		now := s.clock.Now()
		return tx.Merge(ctx, path, models.With(models.Touch(now, models.ActorSystem, models.SourceJournal), docstore.Data{
			models.FieldState:             string(models.DayPublished),
			models.FieldPublishedAt:       now,
			models.FieldFailureReasonCode: nil,
			models.FieldVersion:           models.NextVersion(day.Data[models.FieldVersion]),
		}))
	})
}

// RunDueJobs runs up to DueBatchSize due jobs, oldest due time first. One
// job failing never stops the sweep.
func (s *JournalService) RunDueJobs(ctx context.Context) (DueReport, error) {
	now := s.clock.Now()
	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: models.CollectionJournalJobs,
		Filters: []docstore.Filter{
			{Field: models.FieldState, Op: docstore.OpIn, Value: []string{string(models.JobQueued), string(models.JobFailed)}},
			{Field: models.FieldDueAtUTC, Op: docstore.OpLte, Value: now},
		},
		OrderBy: models.FieldDueAtUTC,
		Limit:   s.opts.DueBatchSize,
	})
	if err != nil {
		return DueReport{}, common.Internal("query due journal jobs", err)
	}

	report := DueReport{Checked: len(docs)}
	actor := dueSweepActor + "/" + s.instance
	for _, doc := range docs {
		job := models.DecodeJob(doc)
		if job.DueAtUTC == nil {
			report.Invalid++
			continue
		}
		if !job.ShouldProcess(now) {
			report.Skipped++
			continue
		}
		result, err := s.RunJob(ctx, job.ID, actor)
		switch {
		case err != nil:
			report.Failed++
		case result == JobResultDone:
			report.Processed++
		default:
			report.Skipped++
		}
	}

	s.logger.Info(ctx, "runDueJournalJobs", "checked", report.Checked, "processed", report.Processed,
		"failed", report.Failed, "skipped", report.Skipped, "invalid", report.Invalid)
	return report, nil
}

// ReconcileJobs makes sure every journal-enabled plan has a generate and a
// publish job for today in the plan's own timezone.
func (s *JournalService) ReconcileJobs(ctx context.Context) (ReconcileReport, error) {
	now := s.clock.Now()
	var report ReconcileReport
	after := ""

	for {
		page, err := s.store.Query(ctx, docstore.Query{
			Collection: models.CollectionPlans,
			Filters: []docstore.Filter{
				{Field: models.FieldIsDeleted, Op: docstore.OpEq, Value: false},
				{Field: models.FieldJournalEnabledAt, Op: docstore.OpNotNull},
			},
			Limit:        s.opts.ReconcilePageSize,
			StartAfterID: after,
		})
		if err != nil {
			return report, common.Internal("query journal plans", err)
		}
		report.ScannedPlans += len(page)

		for _, doc := range page {
			created, err := s.reconcilePlan(ctx, models.DecodePlan(doc), now)
			report.CreatedJobs += created
			if err != nil {
				return report, err
			}
		}

		if len(page) < s.opts.ReconcilePageSize {
			break
		}
		after = page[len(page)-1].ID()
	}

	s.logger.Info(ctx, "reconcileMissingJournalJobs", "scannedPlans", report.ScannedPlans, "createdJobs", report.CreatedJobs)
	return report, nil
}

func (s *JournalService) reconcilePlan(ctx context.Context, plan models.Plan, now time.Time) (int, error) {
	timezone := plan.PlanTimezone
	loc, err := timex.LoadLocation(timezone)
	if err != nil {
		s.logger.Warn(ctx, "plan timezone unusable, using UTC", "plan_id", plan.ID, "timezone", timezone)
		timezone, loc = "UTC", time.UTC
	}
	today := timex.LocalDate(now, loc)

	created := 0
	for _, phase := range []models.JobPhase{models.PhaseGenerate, models.PhasePublish} {
		dueAt, err := timex.DueTimeUTC(today, timex.DefaultDueHour(string(phase)), 0, timezone)
		if err != nil {
			return created, err
		}
		jobID := ident.DocID(models.JobKey(plan.ID, today, phase))
		data := newJobData(plan.ID, plan.OwnerUID, today, phase, timezone, dueAt, now)
		deduped, err := createOnce(ctx, s.store, models.JobPath(jobID), data)
		if err != nil {
			return created, err
		}
		if !deduped {
			created++
		}
	}
	return created, nil
}
