// Package api is the wire contract of tripkeeper.v1.TripService: request and
// response messages, the JSON codec they travel in, the gRPC service
// descriptor, and a small client.
//
// Every request validates its own shape. Validate is called by the server
// before any side effect, so a malformed request never touches the store.
package api

import (
	"regexp"
	"strings"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/server/models"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return common.InvalidArgument("%s is required", field)
	}
	return nil
}

func localDate(field, value string) error {
	if !dateRe.MatchString(value) {
		return common.InvalidArgument("%s must be YYYY-MM-DD", field)
	}
	return nil
}

// dateOrder rejects a range that ends before it starts. YYYY-MM-DD dates
// order correctly as strings.
func dateOrder(start, end string) error {
	if start > end {
		return common.InvalidArgument("startDateLocal must not be after endDateLocal")
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

type CreatePlanRequest struct {
	OpID           string `json:"opId,omitempty"`
	Title          string `json:"title"`
	Destination    string `json:"destination"`
	StartDateLocal string `json:"startDateLocal"`
	EndDateLocal   string `json:"endDateLocal"`
	PlanTimezone   string `json:"planTimezone"`
	IsForeign      bool   `json:"isForeign,omitempty"`
}

func (r *CreatePlanRequest) Validate() error {
	return firstError(
		required("title", r.Title),
		required("destination", r.Destination),
		localDate("startDateLocal", r.StartDateLocal),
		localDate("endDateLocal", r.EndDateLocal),
		dateOrder(r.StartDateLocal, r.EndDateLocal),
		required("planTimezone", r.PlanTimezone),
	)
}

type CreatePlanResponse struct {
	PlanID  string `json:"planId"`
	Deduped bool   `json:"deduped"`
}

type AppendMessageRequest struct {
	OpID             string   `json:"opId,omitempty"`
	PlanID           string   `json:"planId"`
	Role             string   `json:"role"`
	Text             *string  `json:"text,omitempty"`
	ImagePaths       []string `json:"imagePaths,omitempty"`
	LinkedProposalID *string  `json:"linkedProposalId,omitempty"`
}

func (r *AppendMessageRequest) Validate() error {
	if err := required("planId", r.PlanID); err != nil {
		return err
	}
	if !models.Role(r.Role).Valid() {
		return common.InvalidArgument("role must be one of user, assistant, system")
	}
	return nil
}

type AppendMessageResponse struct {
	MessageID string `json:"messageId"`
	Deduped   bool   `json:"deduped"`
}

type RequestChangeProposalRequest struct {
	OpID         string             `json:"opId,omitempty"`
	PlanID       string             `json:"planId"`
	ProposalType string             `json:"proposalType"`
	BundleID     *string            `json:"bundleId,omitempty"`
	Operations   []models.Operation `json:"operations"`
}

func (r *RequestChangeProposalRequest) Validate() error {
	if err := required("planId", r.PlanID); err != nil {
		return err
	}
	if !models.OpType(r.ProposalType).Valid() {
		return common.InvalidArgument("proposalType must be one of create, update, delete")
	}
	if len(r.Operations) == 0 {
		return common.InvalidArgument("operations must not be empty")
	}
	for i, op := range r.Operations {
		if err := op.Validate(); err != nil {
			return common.InvalidArgument("operations[%d]: %v", i, err)
		}
	}
	return nil
}

type RequestChangeProposalResponse struct {
	ProposalID string `json:"proposalId"`
	Deduped    bool   `json:"deduped"`
}

// ApproveChangeRequest is also used for rejection.
type ApproveChangeRequest struct {
	OpID       string `json:"opId,omitempty"`
	PlanID     string `json:"planId"`
	ProposalID string `json:"proposalId"`
}

func (r *ApproveChangeRequest) Validate() error {
	return firstError(required("planId", r.PlanID), required("proposalId", r.ProposalID))
}

type ApproveChangeResponse struct {
	ProposalID    string `json:"proposalId"`
	ApprovalState string `json:"approvalState"`
}

type DeleteToTrashRequest struct {
	OpID       string `json:"opId,omitempty"`
	PlanID     string `json:"planId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId,omitempty"`
}

func (r *DeleteToTrashRequest) Validate() error {
	if err := required("planId", r.PlanID); err != nil {
		return err
	}
	t := models.EntityType(r.EntityType)
	if !t.Valid() {
		return common.InvalidArgument("entityType must be one of plan, event, dayMemo, journalDay, journalEntry")
	}
	if _, ok := models.EntityPath(r.PlanID, t, r.EntityID); !ok {
		return common.InvalidArgument("entityId is required for %s", t)
	}
	return nil
}

type DeleteToTrashResponse struct {
	TrashID string `json:"trashId"`
	Deduped bool   `json:"deduped"`
}

type RestoreFromTrashRequest struct {
	OpID    string `json:"opId,omitempty"`
	TrashID string `json:"trashId"`
}

func (r *RestoreFromTrashRequest) Validate() error {
	return required("trashId", r.TrashID)
}

type RestoreFromTrashResponse struct {
	Restored bool `json:"restored"`
	Deduped  bool `json:"deduped"`
}

type EnqueueJournalJobRequest struct {
	OpID       string `json:"opId,omitempty"`
	PlanID     string `json:"planId"`
	DateLocal  string `json:"dateLocal"`
	Phase      string `json:"phase"`
	Timezone   string `json:"timezone,omitempty"`
	DueAtUTCMs *int64 `json:"dueAtUtcMs,omitempty"`
}

func (r *EnqueueJournalJobRequest) Validate() error {
	if err := firstError(required("planId", r.PlanID), localDate("dateLocal", r.DateLocal)); err != nil {
		return err
	}
	if !models.JobPhase(r.Phase).Valid() {
		return common.InvalidArgument("phase must be one of generate, publish, backfill")
	}
	if r.DueAtUTCMs != nil && *r.DueAtUTCMs < 0 {
		return common.InvalidArgument("dueAtUtcMs must not be negative")
	}
	return nil
}

type EnqueueJournalJobResponse struct {
	JobID   string `json:"jobId"`
	Deduped bool   `json:"deduped"`
}

type RunJournalJobRequest struct {
	JobID string `json:"jobId"`
}

func (r *RunJournalJobRequest) Validate() error {
	return required("jobId", r.JobID)
}

type RunJournalJobResponse struct {
	JobID  string `json:"jobId"`
	Result string `json:"result"`
}

// UpdateJournalSettingsRequest changes the caller's journal preferences.
// When PlanID is set, JournalEnabled switches journaling for that plan.
type UpdateJournalSettingsRequest struct {
	GenerateWithoutData *bool  `json:"generateWithoutData,omitempty"`
	PlanID              string `json:"planId,omitempty"`
	JournalEnabled      *bool  `json:"journalEnabled,omitempty"`
}

func (r *UpdateJournalSettingsRequest) Validate() error {
	if r.JournalEnabled != nil && strings.TrimSpace(r.PlanID) == "" {
		return common.InvalidArgument("planId is required with journalEnabled")
	}
	if r.GenerateWithoutData == nil && r.JournalEnabled == nil {
		return common.InvalidArgument("nothing to update")
	}
	return nil
}

type UpdateJournalSettingsResponse struct {
	GenerateWithoutData bool `json:"generateWithoutData"`
	Updated             bool `json:"updated"`
}
