package models

import "encoding/json"

// DetectionResult is one observed waste item. Devices attach arbitrary keys
// beyond the three typed columns; those ride along in Extra and are merged
// back into the JSON object on marshal so they survive a round trip.
type DetectionResult struct {
	Category   string
	AmountKg   *float64
	Confidence *float64
	Extra      map[string]any
}

func (r *DetectionResult) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["category"].(string); ok {
		r.Category = v
	}
	if v, ok := raw["amount_kg"].(float64); ok {
		r.AmountKg = &v
	}
	if v, ok := raw["confidence"].(float64); ok {
		r.Confidence = &v
	}
	delete(raw, "category")
	delete(raw, "amount_kg")
	delete(raw, "confidence")
	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

func (r DetectionResult) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		obj[k] = v
	}
	obj["category"] = r.Category
	obj["amount_kg"] = r.AmountKg
	obj["confidence"] = r.Confidence
	return json.Marshal(obj)
}
