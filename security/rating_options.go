package security

import (
	"fmt"
	"strconv"
	"strings"
)

const ratingScalePrefix = "scale:"

// RatingOptions is a parsed rating specification of the form
// "scale:LOW-HIGH|Label1|Label2|...". Underscores in labels encode
// spaces.
type RatingOptions struct {
	Low    int
	High   int
	Labels []string
}

// Contains reports whether v falls inside the inclusive [Low, High]
// range.
func (ro *RatingOptions) Contains(v int) bool {
	return v >= ro.Low && v <= ro.High
}

type InvalidRatingSpecError struct {
	Spec   string
	Reason string
}

func (err InvalidRatingSpecError) Error() string {
	return fmt.Sprintf("invalid rating spec %q: %s", err.Spec, err.Reason)
}

// ParseRatingOptions parses a rating specification string.
//
//	ParseRatingOptions("scale:1-10|First_category|Second_category")
//
// yields the range [1, 10] and the labels "First category" and
// "Second category".
func ParseRatingOptions(spec string) (*RatingOptions, error) {
	scale, rest, found := strings.Cut(spec, "|")
	if !found {
		return nil, InvalidRatingSpecError{Spec: spec, Reason: "missing labels"}
	}

	if !strings.HasPrefix(scale, ratingScalePrefix) {
		return nil, InvalidRatingSpecError{Spec: spec, Reason: "missing scale prefix"}
	}

	lowStr, highStr, found := strings.Cut(strings.TrimPrefix(scale, ratingScalePrefix), "-")
	if !found {
		return nil, InvalidRatingSpecError{Spec: spec, Reason: "malformed range"}
	}

	low, err := strconv.Atoi(lowStr)
	if err != nil {
		return nil, InvalidRatingSpecError{Spec: spec, Reason: "non-integer range low"}
	}

	high, err := strconv.Atoi(highStr)
	if err != nil {
		return nil, InvalidRatingSpecError{Spec: spec, Reason: "non-integer range high"}
	}

	if low > high {
		return nil, InvalidRatingSpecError{Spec: spec, Reason: "range low exceeds high"}
	}

	parts := strings.Split(rest, "|")

	labels := make([]string, 0, len(parts))
	for _, part := range parts {
		labels = append(labels, strings.ReplaceAll(part, "_", " "))
	}

	return &RatingOptions{Low: low, High: high, Labels: labels}, nil
}
