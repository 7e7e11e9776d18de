package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownKind is returned for a data kind without a schema.
	ErrUnknownKind = errors.New("unknown data kind")

	// ErrMissingRepository is returned when a data kind has no repository.
	ErrMissingRepository = errors.New("missing repository")
)

// Kind names a record schema.
type Kind string

const (
	KindPlayers  Kind = "players"
	KindTeams    Kind = "teams"
	KindMatches  Kind = "matches"
	KindArticles Kind = "articles"
)

// Kinds returns every data kind in sorted order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(schemas))
	for k := range schemas {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseKind validates a data kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := schemas[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Destination is where a kind's records are written.
type Destination string

const (
	DestinationRelational Destination = "db"
	DestinationVector     Destination = "vector"
)

// FieldType is the value type of a schema field.
type FieldType int

const (
	// FieldString is trimmed with inner whitespace collapsed.
	FieldString FieldType = iota
	// FieldText is trimmed only.
	FieldText
	FieldInt
	// FieldDate is normalized to YYYY-MM-DD.
	FieldDate
)

// Field is one column of a schema.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema describes the records of one kind.
type Schema struct {
	Kind        Kind
	Fields      []Field
	Destination Destination
}

var schemas = map[Kind]Schema{
	KindPlayers: {Kind: KindPlayers, Destination: DestinationRelational, Fields: []Field{
		{Name: "name", Required: true},
		{Name: "team", Required: true},
		{Name: "position", Required: true},
		{Name: "age", Type: FieldInt},
	}},
	KindTeams: {Kind: KindTeams, Destination: DestinationRelational, Fields: []Field{
		{Name: "name", Required: true},
		{Name: "city", Required: true},
		{Name: "founded", Type: FieldInt},
	}},
	KindMatches: {Kind: KindMatches, Destination: DestinationRelational, Fields: []Field{
		{Name: "home_team", Required: true},
		{Name: "away_team", Required: true},
		{Name: "date", Type: FieldDate, Required: true},
		{Name: "home_score", Type: FieldInt},
		{Name: "away_score", Type: FieldInt},
	}},
	KindArticles: {Kind: KindArticles, Destination: DestinationVector, Fields: []Field{
		{Name: "title", Required: true},
		{Name: "body", Type: FieldText, Required: true},
	}},
}

// SchemaFor returns the schema of kind.
func SchemaFor(kind Kind) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// Record is one uploaded row, keyed by field name.
type Record map[string]any

// Validate checks required fields and field types. Invalid records are
// dropped and described in errs; index is 1-based.
func (s Schema) Validate(records []Record) (valid []Record, errs []string) {
	valid = make([]Record, 0, len(records))
	for i, r := range records {
		if err := s.check(r); err != nil {
			errs = append(errs, fmt.Sprintf("record %d: %v", i+1, err))
			continue
		}
		valid = append(valid, r)
	}
	return valid, errs
}

func (s Schema) check(r Record) error {
	for _, f := range s.Fields {
		v, present := r[f.Name]
		if present && isBlank(v) {
			present = false
		}
		if !present {
			if f.Required {
				return fmt.Errorf("missing required field %q", f.Name)
			}
			continue
		}
		if _, err := f.coerce(v); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

// Normalize returns a copy of r holding only schema fields, coerced to
// their types. r must have passed Validate.
func (s Schema) Normalize(r Record) Record {
	out := make(Record, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := r[f.Name]
		if !ok || isBlank(v) {
			continue
		}
		if c, err := f.coerce(v); err == nil {
			out[f.Name] = c
		}
	}
	return out
}

func (f Field) coerce(v any) (any, error) {
	switch f.Type {
	case FieldInt:
		return toInt(v)
	case FieldDate:
		return toDate(v)
	case FieldText:
		s, err := toString(v)
		return strings.TrimSpace(s), err
	default:
		s, err := toString(v)
		return strings.Join(strings.Fields(s), " "), err
	}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(x), nil
	default:
		return "", fmt.Errorf("expected text, got %T", v)
	}
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		n, ok := floatToInt(x)
		if !ok {
			return 0, fmt.Errorf("expected an integer, got %v", x)
		}
		return n, nil
	case json.Number:
		return parseInt(x.String())
	case string:
		return parseInt(x)
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("expected an integer, got %q", s)
	}
	n, ok := floatToInt(f)
	if !ok {
		return 0, fmt.Errorf("expected an integer, got %q", s)
	}
	return n, nil
}

// floatToInt accepts only whole values inside the int64 range.
func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006/01/02", "02.01.2006", "Jan 2, 2006"}

func toDate(v any) (string, error) {
	switch x := v.(type) {
	case time.Time:
		return x.Format("2006-01-02"), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
		return "", fmt.Errorf("expected a date, got %q", s)
	default:
		return "", fmt.Errorf("expected a date, got %T", v)
	}
}
