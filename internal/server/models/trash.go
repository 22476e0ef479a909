package models

import (
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
)

type EntityType string

const (
	EntityPlan         EntityType = "plan"
	EntityEvent        EntityType = "event"
	EntityDayMemo      EntityType = "dayMemo"
	EntityJournalDay   EntityType = "journalDay"
	EntityJournalEntry EntityType = "journalEntry"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityPlan, EntityEvent, EntityDayMemo, EntityJournalDay, EntityJournalEntry:
		return true
	}
	return false
}

func (e EntityType) collection() string {
	switch e {
	case EntityEvent:
		return CollectionEvents
	case EntityDayMemo:
		return CollectionDayMemos
	case EntityJournalDay:
		return CollectionJournalDays
	case EntityJournalEntry:
		return CollectionJournalEntries
	}
	return ""
}

// EntityPath locates a trashable entity. ok is false when entityID is
// required but empty.
func EntityPath(planID string, t EntityType, entityID string) (string, bool) {
	if t == EntityPlan {
		return PlanPath(planID), true
	}
	if entityID == "" {
		return "", false
	}
	return PlanChildPath(planID, t.collection(), entityID), true
}

type TrashState string

const (
	TrashInTrash  TrashState = "in_trash"
	TrashRestored TrashState = "restored"
)

// Trash field names.
const (
	FieldEntityType = "entityType"
	FieldEntityPath = "entityPath"
	FieldState      = "state"
	FieldSnapshot   = "snapshot"
	FieldPurgeAt    = "purgeAt"
	FieldRestoredAt = "restoredAt"
)

func TrashPath(trashID string) string {
	return docstore.Join(CollectionTrash, trashID)
}

type TrashItem struct {
	ID         string
	OwnerUID   string
	PlanID     string
	EntityType EntityType
	EntityPath string
	State      TrashState
	Snapshot   map[string]any
	DeletedAt  *time.Time
	PurgeAt    *time.Time
	RestoredAt *time.Time
}

func DecodeTrashItem(doc *docstore.Doc) TrashItem {
	d := doc.Data
	snap, _ := Map(d, FieldSnapshot)
	return TrashItem{
		ID:         doc.ID(),
		OwnerUID:   String(d, FieldOwnerUID),
		PlanID:     String(d, FieldPlanID),
		EntityType: EntityType(String(d, FieldEntityType)),
		EntityPath: String(d, FieldEntityPath),
		State:      TrashState(String(d, FieldState)),
		Snapshot:   snap,
		DeletedAt:  Time(d, FieldDeletedAt),
		PurgeAt:    Time(d, FieldPurgeAt),
		RestoredAt: Time(d, FieldRestoredAt),
	}
}

// IsPurgeTarget reports whether the item may be physically removed at now.
func (t TrashItem) IsPurgeTarget(now time.Time) bool {
	return t.State == TrashInTrash && t.PurgeAt != nil && !t.PurgeAt.After(now)
}
