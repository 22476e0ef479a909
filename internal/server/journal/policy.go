// Package journal holds the pure rules that turn a day's events and photos
// into journal content: event ranking and text composition.
package journal

import (
	"sort"

	"github.com/dmitrijs2005/tripkeeper/internal/server/models"
)

// MaxSelectedEvents caps how many ranked events a journal day keeps.
const MaxSelectedEvents = 5

// Candidate is an event considered for a journal day.
type Candidate struct {
	ID              string
	Title           string
	Status          string
	Category        string
	StartTimeLocal  string
	LocationName    string
	ImportanceScore *float64
}

// FromEvent builds a candidate from a stored event.
func FromEvent(e models.Event) Candidate {
	return Candidate{
		ID:              e.ID,
		Title:           e.Title,
		Status:          e.Status,
		Category:        e.Category,
		StartTimeLocal:  e.StartTimeLocal,
		LocationName:    e.LocationName,
		ImportanceScore: e.ImportanceScore,
	}
}

// Eligible reports whether an event with status may appear in a journal.
func Eligible(status string) bool {
	return status != models.EventStatusTemporary
}

func statusBase(status string) float64 {
	switch status {
	case models.EventStatusCompleted:
		return 80
	case models.EventStatusConfirmed:
		return 60
	case "":
		return 40
	}
	return 0
}

func categoryBonus(category string) float64 {
	if category == models.EventCategoryTransport || category == models.EventCategoryStay {
		return 5
	}
	return 0
}

// Score is the ranking score of c.
func Score(c Candidate) float64 {
	var importance float64
	if c.ImportanceScore != nil {
		importance = *c.ImportanceScore
	}
	var timeBonus float64
	if c.StartTimeLocal != "" {
		timeBonus = 2
	}
	return importance + statusBase(c.Status) + categoryBonus(c.Category) + timeBonus
}

// Rank drops ineligible candidates, orders the rest by descending score
// with ties broken by ascending id, and keeps at most max.
func Rank(candidates []Candidate, max int) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if Eligible(c.Status) {
			ranked = append(ranked, c)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := Score(ranked[i]), Score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})
	if max >= 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}

// SelectTopEventIDs returns the ids of Rank(candidates, max).
func SelectTopEventIDs(candidates []Candidate, max int) []string {
	ranked := Rank(candidates, max)
	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.ID
	}
	return ids
}

// TopLocationLabel is the most frequent non-empty location among ranked
// events. Ties go to the label that appears first.
func TopLocationLabel(ranked []Candidate) string {
	counts := map[string]int{}
	best, bestCount := "", 0
	for _, c := range ranked {
		if c.LocationName == "" {
			continue
		}
		counts[c.LocationName]++
		if n := counts[c.LocationName]; n > bestCount {
			best, bestCount = c.LocationName, n
		}
	}
	return best
}
