package doctype

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mitchellh/mapstructure"

	"github.com/phase-edms/phase/pkg/clock"
)

// DateLayout is the storage layout of date values kept in JSON fields.
const DateLayout = "2006-01-02"

var timeType = reflect.TypeOf(time.Time{})

// stringToDateHook parses free-form date strings ("2012-04-20",
// "04/20/2012", "April 20, 2012") into time.Time.
func stringToDateHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		t, err := dateparse.ParseIn(strings.TrimSpace(v), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q", v)
		}
		return t, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, nil
		}
		return *v, nil
	}
	return data, nil
}

func decodeInto(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToDateHook,
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// decodeValue converts a raw form value to the Go value of kind. Empty dates
// decode to a nil *time.Time.
func decodeValue(kind Kind, raw any) (any, error) {
	switch kind {
	case KindString, KindText:
		var s string
		if err := decodeInto(raw, &s); err != nil {
			return nil, err
		}
		if kind == KindString {
			s = strings.TrimSpace(s)
		}
		return s, nil

	case KindDate:
		if raw == nil {
			return (*time.Time)(nil), nil
		}
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
			return (*time.Time)(nil), nil
		}
		if p, ok := raw.(*time.Time); ok && p == nil {
			return (*time.Time)(nil), nil
		}
		var t time.Time
		if err := decodeInto(raw, &t); err != nil {
			return nil, err
		}
		d := clock.Date(t)
		return &d, nil

	case KindBool:
		var b bool
		err := decodeInto(raw, &b)
		return b, err

	case KindInt:
		var i int
		err := decodeInto(raw, &i)
		return i, err

	case KindFloat:
		var f float64
		err := decodeInto(raw, &f)
		return f, err

	case KindStrings:
		var s []string
		if err := decodeInto(raw, &s); err != nil {
			return nil, err
		}
		out := s[:0]
		for _, v := range s {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported field kind %d", kind)
}

// storedValue converts a decoded value to its JSON field representation.
func storedValue(v any) (any, bool) {
	switch t := v.(type) {
	case *time.Time:
		if t == nil {
			return nil, false
		}
		return t.Format(DateLayout), true
	case string:
		return t, t != ""
	}
	return v, true
}
