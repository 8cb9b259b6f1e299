// Package validation checks device-supplied session payloads before they
// reach the lifecycle service. Payloads are validated as decoded JSON maps
// so every violated rule is reported, including type mismatches that a
// straight struct decode would turn into a single opaque error.
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/trashtrack/trashtrack/internal/models"
	"github.com/trashtrack/trashtrack/internal/session"
)

// ValidateSessionPayload returns every violated rule in order. An empty
// slice means the payload is acceptable.
//
// Required: session_id, device_id, a parseable start_time, at least one of
// end_time / non-negative duration, and a summary object with at least one
// metric. results, if present, must be an array whose elements each carry a
// non-empty string category.
func ValidateSessionPayload(body map[string]any) []string {
	if body == nil {
		return []string{"Body must be a JSON object"}
	}

	var errs []string

	if v, ok := body["session_id"].(string); !ok || v == "" {
		errs = append(errs, "session_id is required and must be a string")
	}

	if v, ok := body["device_id"].(string); !ok || v == "" {
		errs = append(errs, "device_id is required and must be a string")
	}

	start, startOK := body["start_time"].(string)
	if !startOK || start == "" {
		errs = append(errs, "start_time is required and must be an ISO 8601 string")
	} else if _, err := session.ParseTimestamp(start); err != nil {
		errs = append(errs, "start_time is not a valid date")
	}

	end, hasEnd := body["end_time"].(string)
	hasEnd = hasEnd && end != ""
	dur, durOK := body["duration"].(float64)
	hasDuration := durOK && dur >= 0

	if !hasEnd && !hasDuration {
		errs = append(errs, "Either end_time (string) or duration (number, seconds) is required")
	}
	// An invalid end_time is reported even when a duration is also present.
	if hasEnd {
		if _, err := session.ParseTimestamp(end); err != nil {
			errs = append(errs, "end_time is not a valid date")
		}
	}

	if v, ok := body["summary"].(map[string]any); !ok || len(v) == 0 {
		errs = append(errs, "summary is required and must be an object with at least one metric")
	}

	if raw, present := body["results"]; present {
		list, ok := raw.([]any)
		if !ok {
			errs = append(errs, "results must be an array")
		} else {
			for i, el := range list {
				obj, _ := el.(map[string]any)
				if v, ok := obj["category"].(string); !ok || v == "" {
					errs = append(errs, fmt.Sprintf("results[%d].category is required and must be a string", i))
				}
			}
		}
	}

	return errs
}

// ParseSessionPayload converts a payload that passed validation into its
// typed form. Unknown keys on each result are preserved in Extra.
func ParseSessionPayload(body map[string]any) models.IngestPayload {
	var p models.IngestPayload
	p.SessionID, _ = body["session_id"].(string)
	p.DeviceID, _ = body["device_id"].(string)
	p.StartTime, _ = body["start_time"].(string)

	if v, ok := body["name"].(string); ok && v != "" {
		p.Name = &v
	}
	if v, ok := body["meal_type"].(string); ok && v != "" {
		p.MealType = &v
	}
	if v, ok := body["end_time"].(string); ok && v != "" {
		p.EndTime = &v
	}
	if v, ok := body["duration"].(float64); ok && v >= 0 {
		p.Duration = &v
	}
	if v, ok := body["summary"].(map[string]any); ok {
		if b, err := json.Marshal(v); err == nil {
			p.Summary = b
		}
	}

	list, _ := body["results"].([]any)
	for _, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		var r models.DetectionResult
		r.Category, _ = obj["category"].(string)
		if v, ok := obj["amount_kg"].(float64); ok {
			r.AmountKg = &v
		}
		if v, ok := obj["confidence"].(float64); ok {
			r.Confidence = &v
		}
		extra := make(map[string]any)
		for k, v := range obj {
			switch k {
			case "category", "amount_kg", "confidence":
			default:
				extra[k] = v
			}
		}
		if len(extra) > 0 {
			r.Extra = extra
		}
		p.Results = append(p.Results, r)
	}

	return p
}
