package transform

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nomaai/deidgo/internal/identifier"
)

// validCasts enumerates the (method, cast) pairs allowed for each
// transformer method. id surrogates may render as an integer, a float,
// or their string form; datetime shifts only ever produce a datetime.
var validCasts = map[string]map[identifier.ValueCast]bool{
	"id": {
		identifier.CastInteger: true,
		identifier.CastString:  true,
		identifier.CastFloat:   true,
	},
	"datetime": {
		identifier.CastDateTime: true,
	},
}

func validateCast(method string, cast identifier.ValueCast) error {
	allowed, ok := validCasts[method]
	if !ok {
		return fmt.Errorf("unknown method %q", method)
	}
	if !allowed[cast] {
		return fmt.Errorf("method %q does not support cast %q", method, cast)
	}
	return nil
}

// castSurrogate renders a dense integer surrogate (as produced by
// refstore.AppendOrLookup) into the configured output representation.
func castSurrogate(deid string, cast identifier.ValueCast) (any, error) {
	switch cast {
	case identifier.CastString:
		return deid, nil
	case identifier.CastInteger:
		n, err := strconv.Atoi(deid)
		if err != nil {
			return nil, fmt.Errorf("surrogate %q is not an integer: %w", deid, err)
		}
		return n, nil
	case identifier.CastFloat:
		f, err := strconv.ParseFloat(deid, 64)
		if err != nil {
			return nil, fmt.Errorf("surrogate %q is not a float: %w", deid, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cast %q not supported for id method", cast)
	}
}

// dateLayouts are the formats tried, in order, when a datetime column
// arrives as a string rather than time.Time.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDateTime coerces v into a time.Time, trying time.Time pass-through,
// then each layout in dateLayouts.
func parseDateTime(v any) (time.Time, error) {
	switch tv := v.(type) {
	case time.Time:
		return tv, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, tv); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("value %q does not match any known datetime layout", tv)
	default:
		return time.Time{}, fmt.Errorf("value %v (%T) is not a datetime", v, v)
	}
}
