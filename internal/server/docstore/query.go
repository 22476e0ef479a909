package docstore

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

type Op string

const (
	OpEq      Op = "=="
	OpNe      Op = "!="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpIn      Op = "in"
	OpNotNull Op = "not-null"
)

// Filter compares a top-level field. A missing field reads as null. Range
// comparisons only match values of the same JSON type as Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents directly inside Collection. Results are ordered
// by OrderBy ascending (ties and the default by document id). StartAfterID
// skips ids up to and including it, for paging by id.
type Query struct {
	Collection   string
	Filters      []Filter
	OrderBy      string
	Limit        int
	StartAfterID string
}

var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (q Query) validate() (Query, error) {
	if q.Collection == "" || strings.HasPrefix(q.Collection, "/") || strings.HasSuffix(q.Collection, "/") {
		return q, fmt.Errorf("invalid collection %q", q.Collection)
	}
	if q.OrderBy != "" && !fieldNameRe.MatchString(q.OrderBy) {
		return q, fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	if q.Limit < 0 {
		return q, fmt.Errorf("invalid limit %d", q.Limit)
	}

	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		if !fieldNameRe.MatchString(f.Field) {
			return q, fmt.Errorf("invalid filter field %q", f.Field)
		}
		v, err := NormalizeValue(f.Value)
		if err != nil {
			return q, err
		}
		switch f.Op {
		case OpEq, OpNe, OpNotNull:
		case OpLt, OpLte, OpGt, OpGte:
			switch v.(type) {
			case string, float64:
			default:
				return q, fmt.Errorf("range filter on %q needs a string or number", f.Field)
			}
		case OpIn:
			if _, ok := v.([]any); !ok {
				return q, fmt.Errorf("in filter on %q needs a list", f.Field)
			}
		default:
			return q, fmt.Errorf("unsupported operator %q", f.Op)
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}
	q.Filters = filters
	return q, nil
}

func (f Filter) matches(data Data) bool {
	got, present := data[f.Field]
	switch f.Op {
	case OpEq:
		return reflect.DeepEqual(got, f.Value)
	case OpNe:
		return present && !reflect.DeepEqual(got, f.Value)
	case OpNotNull:
		return got != nil
	case OpIn:
		for _, v := range f.Value.([]any) {
			if reflect.DeepEqual(got, v) {
				return true
			}
		}
		return false
	}

	c, ok := compare(got, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	}
	return false
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func sortDocs(docs []*Doc, orderBy string) {
	sort.SliceStable(docs, func(i, j int) bool {
		if orderBy != "" {
			a, b := docs[i].Data[orderBy], docs[j].Data[orderBy]
			aok, bok := a != nil, b != nil
			switch {
			case aok && !bok:
				return true
			case !aok && bok:
				return false
			}
			if c, ok := compare(a, b); ok && c != 0 {
				return c < 0
			}
		}
		return docs[i].ID() < docs[j].ID()
	})
}
