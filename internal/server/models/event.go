package models

import "github.com/dmitrijs2005/tripkeeper/internal/server/docstore"

// Event status values. A missing status is kept as "".
const (
	EventStatusTemporary = "temporary"
	EventStatusConfirmed = "confirmed"
	EventStatusCompleted = "completed"
)

const (
	EventCategoryTransport = "transport"
	EventCategoryStay      = "stay"
)

// Event is the subset of an event document the journal reads.
type Event struct {
	ID              string
	Title           string
	Status          string
	Category        string
	DateLocal       string
	StartTimeLocal  string
	LocationName    string
	ImportanceScore *float64
	IsDeleted       bool
}

func DecodeEvent(doc *docstore.Doc) Event {
	d := doc.Data
	e := Event{
		ID:             doc.ID(),
		Title:          String(d, "title"),
		Status:         String(d, "status"),
		Category:       String(d, "category"),
		DateLocal:      String(d, "dateLocal"),
		StartTimeLocal: String(d, "startTimeLocal"),
		LocationName:   String(d, "locationName"),
		IsDeleted:      Bool(d, FieldIsDeleted),
	}
	if n, ok := Number(d["importanceScore"]); ok {
		e.ImportanceScore = &n
	}
	return e
}
