// Package sanitize strips proposal payloads down to the fields a caller is
// allowed to change. Keys outside the per-type whitelist are dropped
// silently; ownership, audit and version fields are never writable.
package sanitize

import (
	"sort"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/server/models"
	"google.golang.org/protobuf/types/known/structpb"
)

var mutableFields = map[models.TargetType]map[string]struct{}{
	models.TargetPlan: set(
		"title", "destination", "startDateLocal", "endDateLocal",
		"planTimezone", "isForeign", "journalEnabledAt",
	),
	models.TargetEvent: set(
		"title", "status", "category", "dateLocal", "startTimeLocal", "endTimeLocal",
		"timezone", "memo", "locationName", "lat", "lng", "colorId", "importanceScore",
		"departAtLocal", "departTz", "arriveAtLocal", "arriveTz",
	),
	models.TargetDayMemo: set("dateLocal", "memo"),
}

func set(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// Sanitize returns the whitelisted subset of in. A nil input or an unknown
// target type yields an empty map.
func Sanitize(t models.TargetType, in map[string]any) map[string]any {
	allowed := mutableFields[t]
	out := make(map[string]any, len(in))
	for k, v := range in {
		if _, ok := allowed[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Fields lists the mutable fields of t in sorted order.
func Fields(t models.TargetType) []string {
	out := make([]string, 0, len(mutableFields[t]))
	for k := range mutableFields[t] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Normalize converts a payload to plain JSON values, rejecting anything
// that has no JSON representation.
func Normalize(in map[string]any) (map[string]any, error) {
	if in == nil {
		return nil, nil
	}
	s, err := structpb.NewStruct(in)
	if err != nil {
		return nil, common.InvalidArgument("payload is not a JSON object: %v", err)
	}
	return s.AsMap(), nil
}

// Payload normalizes and then sanitizes a proposal payload.
func Payload(t models.TargetType, in map[string]any) (map[string]any, error) {
	norm, err := Normalize(in)
	if err != nil {
		return nil, err
	}
	if norm == nil {
		return nil, nil
	}
	return Sanitize(t, norm), nil
}
