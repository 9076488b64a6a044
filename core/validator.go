package core

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// FieldKind is the value type a Field accepts after coercion.
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindDuration
	KindBool
)

// UnknownPolicy decides what happens to keys not declared in a Schema.
type UnknownPolicy int

const (
	UnknownReject UnknownPolicy = iota
	UnknownAllow
	UnknownStrip
)

// Field declares the constraints for one key.
// For strings Min/Max bound the length in characters, for ints the value itself.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
	Min      *int
	Max      *int
	OneOf    []string
	Default  any
	// Messages overrides the default text per rule: required, empty, type, min, max, oneOf.
	Messages map[string]string
}

// Schema is an ordered set of Field rules.
type Schema struct {
	Fields  []Field
	Unknown UnknownPolicy
}

func limit(n int) *int { return &n }

// Validate checks input against every field and never stops at the first
// violation. On success it returns the normalized map: values coerced to the
// field kind, defaults applied and, with UnknownStrip, undeclared keys removed.
func (s Schema) Validate(input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input))
	var errs []FieldError

	declared := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		declared[f.Name] = struct{}{}

		raw, present := input[f.Name]
		if !present {
			if f.Required {
				errs = append(errs, f.violation("required", fmt.Sprintf("%q is required", f.Name)))
				continue
			}
			if f.Default != nil {
				v, fe := f.check(f.Default)
				if fe != nil {
					errs = append(errs, *fe)
					continue
				}
				out[f.Name] = v
			}
			continue
		}

		v, fe := f.check(raw)
		if fe != nil {
			errs = append(errs, *fe)
			continue
		}
		out[f.Name] = v
	}

	var unknown []string
	for k := range input {
		if _, ok := declared[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		switch s.Unknown {
		case UnknownAllow:
			out[k] = input[k]
		case UnknownReject:
			errs = append(errs, FieldError{Field: k, Message: fmt.Sprintf("%q is not allowed", k)})
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return out, nil
}

func (f Field) violation(rule, fallback string) FieldError {
	msg := fallback
	if m, ok := f.Messages[rule]; ok {
		msg = m
	}
	return FieldError{Field: f.Name, Message: msg}
}

func (f Field) check(raw any) (any, *FieldError) {
	var (
		v  any
		fe *FieldError
	)
	switch f.Kind {
	case KindString:
		v, fe = f.checkString(raw)
	case KindInt:
		v, fe = f.checkInt(raw)
	case KindDuration:
		v, fe = f.checkDuration(raw)
	case KindBool:
		v, fe = f.checkBool(raw)
	default:
		e := f.violation("type", fmt.Sprintf("%q has an unsupported type", f.Name))
		return nil, &e
	}
	if fe != nil {
		return nil, fe
	}
	if len(f.OneOf) > 0 && !slices.Contains(f.OneOf, fmt.Sprint(v)) {
		e := f.violation("oneOf", fmt.Sprintf("%q must be one of [%s]", f.Name, strings.Join(f.OneOf, ", ")))
		return nil, &e
	}
	return v, nil
}

func (f Field) checkString(raw any) (any, *FieldError) {
	s, ok := raw.(string)
	if !ok {
		e := f.violation("type", fmt.Sprintf("%q must be a string", f.Name))
		return nil, &e
	}
	if s == "" {
		e := f.violation("empty", fmt.Sprintf("%q is not allowed to be empty", f.Name))
		return nil, &e
	}
	n := utf8.RuneCountInString(s)
	if f.Min != nil && n < *f.Min {
		e := f.violation("min", fmt.Sprintf("%q length must be at least %d characters long", f.Name, *f.Min))
		return nil, &e
	}
	if f.Max != nil && n > *f.Max {
		e := f.violation("max", fmt.Sprintf("%q length must be less than or equal to %d characters long", f.Name, *f.Max))
		return nil, &e
	}
	return s, nil
}

func (f Field) checkInt(raw any) (any, *FieldError) {
	n, ok := toInt(raw)
	if !ok {
		e := f.violation("type", fmt.Sprintf("%q must be a number", f.Name))
		return nil, &e
	}
	if f.Min != nil && n < *f.Min {
		e := f.violation("min", fmt.Sprintf("%q must be greater than or equal to %d", f.Name, *f.Min))
		return nil, &e
	}
	if f.Max != nil && n > *f.Max {
		e := f.violation("max", fmt.Sprintf("%q must be less than or equal to %d", f.Name, *f.Max))
		return nil, &e
	}
	return n, nil
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		return i, err == nil
	}
	return 0, false
}

func (f Field) checkDuration(raw any) (any, *FieldError) {
	switch v := raw.(type) {
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		// "7d" style days, which time.ParseDuration does not know
		if days, ok := strings.CutSuffix(s, "d"); ok {
			if n, err := strconv.Atoi(days); err == nil && n > 0 {
				return time.Duration(n) * 24 * time.Hour, nil
			}
		}
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d, nil
		}
		// bare numbers are seconds
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second, nil
		}
	default:
		if secs, ok := toInt(raw); ok && secs > 0 {
			return time.Duration(secs) * time.Second, nil
		}
	}
	e := f.violation("type", fmt.Sprintf("%q must be a positive duration", f.Name))
	return nil, &e
}

func (f Field) checkBool(raw any) (any, *FieldError) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, nil
		}
	}
	e := f.violation("type", fmt.Sprintf("%q must be a boolean", f.Name))
	return nil, &e
}
