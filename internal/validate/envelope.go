package validate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/demolens/pkg/models"
)

// ErrNotEnvelope is returned when a body is not a JSON object.
var ErrNotEnvelope = errors.New("response is not a JSON object")

// DecodeResponse parses a provider body into its envelope. A body that is not
// a JSON object is an error. A wrongly typed success or data field is not: it
// comes back as Issues on the response, with Raw set to body.
func DecodeResponse(body []byte) (*models.ThirdPartyResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEnvelope, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: got null", ErrNotEnvelope)
	}

	var (
		out    models.ThirdPartyResponse
		issues []Issue
	)
	report := func(path string, rawValue json.RawMessage, format string, args ...any) {
		issues = append(issues, Issue{Path: path, RawValue: rawOrNull(rawValue), Message: fmt.Sprintf(format, args...)})
	}

	switch v, ok := decode(fields["success"]); {
	case !ok:
		report("success", fields["success"], "required")
	default:
		b, isBool := v.(bool)
		if !isBool {
			report("success", fields["success"], "expected boolean, got %s", typeName(v))
			break
		}
		out.Success = b
	}

	if v, ok := decode(fields["data"]); ok {
		if _, isObj := v.(map[string]any); !isObj {
			report("data", fields["data"], "expected object, got %s", typeName(v))
		} else {
			var p models.RawPayload
			if err := json.Unmarshal(fields["data"], &p); err != nil {
				report("data", fields["data"], "%v", err)
			} else {
				out.Data = &p
			}
		}
	}

	if v, ok := decode(fields["error"]); ok {
		if s, isStr := v.(string); isStr {
			out.Error = s
		} else {
			out.Error = string(fields["error"])
		}
	}

	if len(issues) > 0 {
		out.Issues = issues
		out.Raw = append(json.RawMessage(nil), body...)
	}
	return &out, nil
}
