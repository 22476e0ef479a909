package models

import (
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
)

type JobPhase string

const (
	PhaseGenerate JobPhase = "generate"
	PhasePublish  JobPhase = "publish"
	PhaseBackfill JobPhase = "backfill"
)

func (p JobPhase) Valid() bool {
	switch p {
	case PhaseGenerate, PhasePublish, PhaseBackfill:
		return true
	}
	return false
}

type JobState string

const (
	JobQueued     JobState = "queued"
	JobRunning    JobState = "running"
	JobDone       JobState = "done"
	JobFailed     JobState = "failed"
	JobDeadletter JobState = "deadletter"
)

// Journal job field names.
const (
	FieldDateLocal      = "dateLocal"
	FieldPhase          = "phase"
	FieldTimezone       = "timezone"
	FieldDueAtUTC       = "dueAtUtc"
	FieldAttemptCount   = "attemptCount"
	FieldNextRetryAt    = "nextRetryAt"
	FieldIdempotencyKey = "idempotencyKey"
	FieldLockOwner      = "lockOwner"
	FieldLockAt         = "lockAt"
	FieldLastError      = "lastError"
)

// JobKey is the natural idempotency key of a journal job.
func JobKey(planID, dateLocal string, phase JobPhase) string {
	return planID + "|" + dateLocal + "|" + string(phase)
}

func JobPath(jobID string) string {
	return docstore.Join(CollectionJournalJobs, jobID)
}

type JournalJob struct {
	ID             string
	PlanID         string
	OwnerUID       string
	DateLocal      string
	Phase          JobPhase
	Timezone       string
	DueAtUTC       *time.Time
	State          JobState
	AttemptCount   int
	NextRetryAt    *time.Time
	IdempotencyKey string
	LockOwner      string
	LockAt         *time.Time
	LastError      string
}

func DecodeJob(doc *docstore.Doc) JournalJob {
	d := doc.Data
	return JournalJob{
		ID:             doc.ID(),
		PlanID:         String(d, FieldPlanID),
		OwnerUID:       String(d, FieldOwnerUID),
		DateLocal:      String(d, FieldDateLocal),
		Phase:          JobPhase(String(d, FieldPhase)),
		Timezone:       StringOr(d, FieldTimezone, "UTC"),
		DueAtUTC:       Time(d, FieldDueAtUTC),
		State:          JobState(String(d, FieldState)),
		AttemptCount:   Int(d, FieldAttemptCount, 0),
		NextRetryAt:    Time(d, FieldNextRetryAt),
		IdempotencyKey: String(d, FieldIdempotencyKey),
		LockOwner:      String(d, FieldLockOwner),
		LockAt:         Time(d, FieldLockAt),
		LastError:      String(d, FieldLastError),
	}
}

// ShouldSkipForLock reports whether a runner must leave the job alone.
func (j JournalJob) ShouldSkipForLock() bool {
	switch j.State {
	case JobDone, JobDeadletter, JobRunning:
		return true
	}
	return false
}

// ShouldProcess reports whether a due sweep at now may run the job. Jobs
// without a parseable due time are never processed.
func (j JournalJob) ShouldProcess(now time.Time) bool {
	if j.DueAtUTC == nil || j.DueAtUTC.After(now) {
		return false
	}
	switch j.State {
	case JobQueued:
		return true
	case JobFailed:
		return j.NextRetryAt == nil || !j.NextRetryAt.After(now)
	}
	return false
}

type DayState string

const (
	DayDraft     DayState = "draft"
	DayPublished DayState = "published"
)

// Journal day field names.
const (
	FieldSummary             = "summary"
	FieldEntryText           = "entryText"
	FieldSelectedEventIDs    = "selectedEventIds"
	FieldPhotoCount          = "photoCount"
	FieldPhotoKeys           = "photoKeys"
	FieldTopLocationLabel    = "topLocationLabel"
	FieldGenerationInputHash = "generationInputHash"
	FieldFailureReasonCode   = "failureReasonCode"
	FieldPublishAtUTC        = "publishAtUtc"
	FieldPublishedAt         = "publishedAt"
)

// FailureInsufficientData marks a day generated without enough signal.
const FailureInsufficientData = "insufficient_data"

type JournalDay struct {
	PlanID            string
	DateLocal         string
	State             DayState
	Summary           string
	EntryText         string
	SelectedEventIDs  []string
	FailureReasonCode string
	PublishedAt       *time.Time
	Version           any
}

func DecodeJournalDay(doc *docstore.Doc) JournalDay {
	d := doc.Data
	return JournalDay{
		PlanID:            String(d, FieldPlanID),
		DateLocal:         StringOr(d, FieldDateLocal, doc.ID()),
		State:             DayState(String(d, FieldState)),
		Summary:           String(d, FieldSummary),
		EntryText:         String(d, FieldEntryText),
		SelectedEventIDs:  Strings(d, FieldSelectedEventIDs),
		FailureReasonCode: String(d, FieldFailureReasonCode),
		PublishedAt:       Time(d, FieldPublishedAt),
		Version:           d[FieldVersion],
	}
}
