package models

import (
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
)

const (
	CollectionPlans          = "plans"
	CollectionEvents         = "events"
	CollectionDayMemos       = "dayMemos"
	CollectionMessages       = "messages"
	CollectionProposals      = "changeProposals"
	CollectionJournalDays    = "journalDays"
	CollectionJournalEntries = "journalEntries"
	CollectionTrash          = "trash"
	CollectionJournalJobs    = "journalJobs"
	CollectionUserSettings   = "userSettings"
)

// Plan field names.
const (
	FieldTitle            = "title"
	FieldDestination      = "destination"
	FieldStartDateLocal   = "startDateLocal"
	FieldEndDateLocal     = "endDateLocal"
	FieldPlanTimezone     = "planTimezone"
	FieldIsForeign        = "isForeign"
	FieldJournalEnabledAt = "journalEnabledAt"
)

func PlanPath(planID string) string {
	return docstore.Join(CollectionPlans, planID)
}

// PlanChildCollection is the path of a collection nested under a plan.
func PlanChildCollection(planID, collection string) string {
	return docstore.Join(CollectionPlans, planID, collection)
}

func PlanChildPath(planID, collection, id string) string {
	return docstore.Join(CollectionPlans, planID, collection, id)
}

type Plan struct {
	ID               string
	OwnerUID         string
	Title            string
	Destination      string
	StartDateLocal   string
	EndDateLocal     string
	PlanTimezone     string
	IsForeign        bool
	JournalEnabledAt *time.Time
	IsDeleted        bool
	Version          int
}

func DecodePlan(doc *docstore.Doc) Plan {
	d := doc.Data
	return Plan{
		ID:               doc.ID(),
		OwnerUID:         String(d, FieldOwnerUID),
		Title:            String(d, FieldTitle),
		Destination:      String(d, FieldDestination),
		StartDateLocal:   String(d, FieldStartDateLocal),
		EndDateLocal:     String(d, FieldEndDateLocal),
		PlanTimezone:     StringOr(d, FieldPlanTimezone, "UTC"),
		IsForeign:        Bool(d, FieldIsForeign),
		JournalEnabledAt: Time(d, FieldJournalEnabledAt),
		IsDeleted:        Bool(d, FieldIsDeleted),
		Version:          Int(d, FieldVersion, 1),
	}
}

// Message roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// UserSettingsPath is the per-user settings document.
func UserSettingsPath(uid string) string {
	return docstore.Join(CollectionUserSettings, uid)
}

// FieldGenerateWithoutData lives in the user settings document.
const FieldGenerateWithoutData = "journalGenerateWithoutData"

// GenerateWithoutData reads the setting, defaulting to true when the
// document or the field is missing.
func GenerateWithoutData(doc *docstore.Doc) bool {
	if doc == nil {
		return true
	}
	b, ok := doc.Data[FieldGenerateWithoutData].(bool)
	if !ok {
		return true
	}
	return b
}
