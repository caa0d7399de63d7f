// Package validate is the single gate between the provider's untrusted payload
// and a job's demographics.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kiranshivaraju/demolens/pkg/models"
)

// Issue is one offending field.
type Issue = models.ValidationIssue

// Input is a payload that passed validation.
type Input struct {
	Age     int
	Gender  string
	Country string
	City    *string
	Tags    []string
	Score   float64
}

// Validate checks every field of raw and returns all issues found, never
// stopping at the first. The Input is only meaningful when no issues are returned.
func Validate(raw *models.RawPayload) (Input, []Issue) {
	var in Input
	if raw == nil {
		raw = &models.RawPayload{}
	}

	var issues []Issue
	report := func(path string, rawValue json.RawMessage, format string, args ...any) {
		issues = append(issues, Issue{Path: path, RawValue: rawOrNull(rawValue), Message: fmt.Sprintf(format, args...)})
	}

	// age: required non-negative integer
	switch v, ok := decode(raw.Age); {
	case !ok:
		report("age", raw.Age, "required")
	default:
		n, isNum := v.(json.Number)
		if !isNum {
			report("age", raw.Age, "expected integer, got %s", typeName(v))
			break
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			report("age", raw.Age, "expected integer, got %s", n)
			break
		}
		if f < 0 {
			report("age", raw.Age, "must be >= 0")
			break
		}
		in.Age = int(f)
	}

	in.Gender = requiredString("gender", raw.Gender, report)
	in.Country = requiredString("country", raw.Country, report)

	// city: optional, nullable, never part of the result
	if v, ok := decode(raw.City); ok {
		s, isStr := v.(string)
		switch {
		case !isStr:
			report("city", raw.City, "expected string, got %s", typeName(v))
		case s == "":
			report("city", raw.City, "must not be empty")
		default:
			in.City = &s
		}
	}

	// tags: absent or null means no interests; anything else must be an array of strings
	in.Tags = []string{}
	if v, ok := decode(raw.Tags); ok {
		arr, isArr := v.([]any)
		if !isArr {
			report("tags", raw.Tags, "expected array of strings, got %s", typeName(v))
		} else {
			for i, el := range arr {
				s, isStr := el.(string)
				if !isStr {
					elRaw, _ := json.Marshal(el)
					report(fmt.Sprintf("tags[%d]", i), elRaw, "expected string, got %s", typeName(el))
					continue
				}
				in.Tags = append(in.Tags, s)
			}
		}
	}

	// score: required number within [0,1]
	switch v, ok := decode(raw.Score); {
	case !ok:
		report("score", raw.Score, "required")
	default:
		n, isNum := v.(json.Number)
		if !isNum {
			report("score", raw.Score, "expected number, got %s", typeName(v))
			break
		}
		f, err := n.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			report("score", raw.Score, "expected finite number, got %s", n)
			break
		}
		if f < 0 || f > 1 {
			report("score", raw.Score, "must be within [0, 1]")
			break
		}
		in.Score = f
	}

	return in, issues
}

// AgeRange buckets a validated age.
func AgeRange(age int) string {
	switch {
	case age < 18:
		return "under-18"
	case age < 25:
		return "18-24"
	case age < 35:
		return "25-34"
	case age < 45:
		return "35-44"
	case age < 55:
		return "45-54"
	default:
		return "55+"
	}
}

// ToDemographics maps a validated Input onto the stored result.
func ToDemographics(in Input) *models.Demographics {
	interests := make([]string, len(in.Tags))
	copy(interests, in.Tags)
	return &models.Demographics{
		AgeRange:   AgeRange(in.Age),
		Gender:     in.Gender,
		Location:   in.Country,
		Interests:  interests,
		Confidence: in.Score,
	}
}

// Summary renders issues as the one-line note stored on a FAILED job.
func Summary(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		parts = append(parts, is.Path+": "+is.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func requiredString(path string, raw json.RawMessage, report func(string, json.RawMessage, string, ...any)) string {
	v, ok := decode(raw)
	if !ok {
		report(path, raw, "required")
		return ""
	}
	s, isStr := v.(string)
	if !isStr {
		report(path, raw, "expected string, got %s", typeName(v))
		return ""
	}
	if s == "" {
		report(path, raw, "must not be empty")
		return ""
	}
	return s
}

// decode reports ok=false for an absent or null field.
func decode(raw json.RawMessage) (any, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
