package models

import (
	"math"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
)

// SchemaVersion is stamped on every document this service creates.
const SchemaVersion = 1

// Common field names shared by every entity.
const (
	FieldOwnerUID      = "ownerUid"
	FieldPlanID        = "planId"
	FieldCreatedAt     = "createdAt"
	FieldUpdatedAt     = "updatedAt"
	FieldCreatedBy     = "createdBy"
	FieldUpdatedBy     = "updatedBy"
	FieldSource        = "source"
	FieldSchemaVersion = "schemaVersion"
	FieldIsDeleted     = "isDeleted"
	FieldDeletedAt     = "deletedAt"
	FieldDeletedBy     = "deletedBy"
	FieldVersion       = "version"
	FieldLastOpID      = "lastOpId"
)

// Actor records who performed a write.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorSystem Actor = "system"
)

// Source records which product surface a write came from.
type Source string

const (
	SourceChat     Source = "chat"
	SourceCalendar Source = "calendar"
	SourceTrash    Source = "trash"
	SourceJournal  Source = "journal"
	SourceSettings Source = "settings"
)

// NewAudit returns the audit, soft-delete and versioning fields of a
// freshly created document.
func NewAudit(now time.Time, actor Actor, source Source, opID string) docstore.Data {
	d := docstore.Data{
		FieldCreatedAt:     now,
		FieldUpdatedAt:     now,
		FieldCreatedBy:     string(actor),
		FieldUpdatedBy:     string(actor),
		FieldSource:        string(source),
		FieldSchemaVersion: SchemaVersion,
		FieldIsDeleted:     false,
		FieldDeletedAt:     nil,
		FieldDeletedBy:     nil,
		FieldVersion:       1,
	}
	if opID != "" {
		d[FieldLastOpID] = opID
	}
	return d
}

// Touch returns the fields every write must set.
func Touch(now time.Time, actor Actor, source Source) docstore.Data {
	return docstore.Data{
		FieldUpdatedAt: now,
		FieldUpdatedBy: string(actor),
		FieldSource:    string(source),
	}
}

// With copies base and sets the given key/value pairs on the copy.
func With(base docstore.Data, kv docstore.Data) docstore.Data {
	out := make(docstore.Data, len(base)+len(kv))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range kv {
		out[k] = v
	}
	return out
}

// NextVersion returns the version a document moves to on update. A missing,
// non-numeric or sub-1 stored version restarts the sequence at 2.
func NextVersion(current any) int {
	n, ok := Number(current)
	if !ok || n < 1 {
		return 2
	}
	return int(math.Floor(n)) + 1
}

// String reads a string field, "" if absent or not a string.
func String(d docstore.Data, key string) string {
	s, _ := d[key].(string)
	return s
}

// StringOr reads a non-empty string field or returns def.
func StringOr(d docstore.Data, key, def string) string {
	if s := String(d, key); s != "" {
		return s
	}
	return def
}

// OptString reads a nullable string field.
func OptString(d docstore.Data, key string) *string {
	s, ok := d[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// Bool reads a boolean field, false if absent or not a bool.
func Bool(d docstore.Data, key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Number reads a finite numeric value.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int reads an integer field, def if absent or not numeric.
func Int(d docstore.Data, key string, def int) int {
	n, ok := Number(d[key])
	if !ok {
		return def
	}
	return int(n)
}

// Time reads a stored instant. It returns nil when the field is absent,
// null or unparseable.
func Time(d docstore.Data, key string) *time.Time {
	switch v := d[key].(type) {
	case string:
		t, err := docstore.ParseTime(v)
		if err != nil {
			return nil
		}
		return &t
	case time.Time:
		return &v
	}
	return nil
}

// Map reads a nested object field.
func Map(d docstore.Data, key string) (map[string]any, bool) {
	m, ok := d[key].(map[string]any)
	return m, ok
}

// Strings reads a list of strings, skipping non-string elements.
func Strings(d docstore.Data, key string) []string {
	var out []string
	switch v := d[key].(type) {
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	}
	return out
}
