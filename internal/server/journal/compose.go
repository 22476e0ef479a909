package journal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/tripkeeper/internal/server/ident"
)

type State string

const (
	StateReady            State = "ready"
	StateInsufficientData State = "insufficient_data"
)

// InsufficientText is used as both summary and entry when there is nothing
// to write about.
const InsufficientText = "정보가 부족해 일지를 만들지 못 했어요"

const leadTitleCount = 3

type Input struct {
	DateLocal           string
	PlanTitle           string
	Events              []Candidate
	PhotoCount          int
	TopLocationLabel    string
	GenerateWithoutData bool
}

type Output struct {
	State            State
	Summary          string
	EntryText        string
	SelectedEventIDs []string
}

func photoText(n int) string {
	if n <= 0 {
		return "사진은 연결되지 않았어요."
	}
	return fmt.Sprintf("사진 %d장을 함께 묶었어요.", n)
}

func joinClauses(clauses ...string) string {
	kept := clauses[:0]
	for _, c := range clauses {
		if c = strings.TrimSpace(c); c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, " ")
}

// Compose builds a journal day's content from in.
func Compose(in Input) Output {
	ranked := Rank(in.Events, MaxSelectedEvents)
	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.ID
	}

	if len(ranked) == 0 && !in.GenerateWithoutData {
		return Output{
			State:            StateInsufficientData,
			Summary:          InsufficientText,
			EntryText:        InsufficientText,
			SelectedEventIDs: ids,
		}
	}

	if len(ranked) == 0 {
		return Output{
			State:   StateReady,
			Summary: "일정 계획 기반으로 일지를 만들었어요.",
			EntryText: joinClauses(
				fmt.Sprintf("%s의 %s 계획을 기준으로 일지를 생성했어요.", in.PlanTitle, in.DateLocal),
				photoText(in.PhotoCount),
			),
			SelectedEventIDs: ids,
		}
	}

	lead := ranked
	if len(lead) > leadTitleCount {
		lead = lead[:leadTitleCount]
	}
	titles := make([]string, len(lead))
	for i, c := range lead {
		titles[i] = c.Title
	}

	var location string
	if in.TopLocationLabel != "" {
		location = fmt.Sprintf("주요 동선은 %s 중심으로 정리됐어요.", in.TopLocationLabel)
	}

	return Output{
		State:   StateReady,
		Summary: fmt.Sprintf("핵심 일정 %d개를 반영해 일지를 만들었어요.", len(ranked)),
		EntryText: joinClauses(
			fmt.Sprintf("%s에는 %s 중심으로 움직였어요.", in.DateLocal, strings.Join(titles, ", ")),
			location,
			photoText(in.PhotoCount),
		),
		SelectedEventIDs: ids,
	}
}

// Fingerprint identifies what a journal day was generated from and what was
// written, so a regenerated day carries the same hash only when both the
// inputs and the composed text are unchanged.
func Fingerprint(planID string, in Input, out Output) string {
	return ident.DocID(
		planID,
		in.DateLocal,
		"journal-input",
		strings.Join(out.SelectedEventIDs, ","),
		strconv.Itoa(in.PhotoCount),
		in.TopLocationLabel,
		strconv.FormatBool(in.GenerateWithoutData),
		string(out.State),
		out.Summary,
		out.EntryText,
	)
}
