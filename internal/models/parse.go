package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/atiastack/atia-dashboard/internal/utils"
)

const parseOp = "parse indicator"

// ParseIndicator converts one remote indicator object into the canonical model.
//
// Required: indicator (non-empty string), risk_score|riskScore (number),
// reputation (string). type|kind must be a string when present and is
// inferred from the value when absent. Everything else is optional.
func ParseIndicator(raw gjson.Result) (Indicator, error) {
	if !raw.IsObject() {
		return Indicator{}, shapeErr("indicator is not an object")
	}

	value, err := requiredString(raw, "indicator")
	if err != nil {
		return Indicator{}, err
	}
	if strings.TrimSpace(value) == "" {
		return Indicator{}, shapeErr("field indicator is empty")
	}

	score, err := requiredNumber(raw, "risk_score", "riskScore")
	if err != nil {
		return Indicator{}, err
	}
	reputation, err := requiredString(raw, "reputation")
	if err != nil {
		return Indicator{}, err
	}

	ind := Indicator{
		ID:         identity(raw.Get("id")),
		Value:      value,
		RiskScore:  score,
		Reputation: reputation,
		Sources:    []SourceVerdict{},
		Tags:       []string{},
	}

	kindField := first(raw, "type", "kind")
	switch {
	case !kindField.Exists() || kindField.Type == gjson.Null:
		ind.Kind = InferKind(value)
	case kindField.Type != gjson.String:
		return Indicator{}, shapeErr("field type must be a string")
	default:
		ind.Kind = Kind(strings.ToLower(strings.TrimSpace(kindField.Str)))
	}

	ind.FirstSeen = optionalTime(first(raw, "first_seen", "firstSeen"))
	ind.LastUpdated = optionalTime(first(raw, "last_updated", "lastUpdated"))

	sources := raw.Get("sources")
	if sources.Exists() && sources.Type != gjson.Null {
		if !sources.IsArray() {
			return Indicator{}, shapeErr("field sources must be an array")
		}
		for idx, item := range sources.Array() {
			sv, err := parseSource(item)
			if err != nil {
				return Indicator{}, shapeErr(fmt.Sprintf("sources[%d]: %v", idx, err))
			}
			ind.Sources = append(ind.Sources, sv)
		}
	}

	tags := raw.Get("tags")
	if tags.IsArray() {
		seen := make(map[string]struct{})
		for _, t := range tags.Array() {
			if t.Type != gjson.String || t.Str == "" {
				continue
			}
			if _, dup := seen[t.Str]; dup {
				continue
			}
			seen[t.Str] = struct{}{}
			ind.Tags = append(ind.Tags, t.Str)
		}
	}

	return ind, nil
}

// ParseHealth converts a health response object. Only status is required.
func ParseHealth(raw gjson.Result) (HealthStatus, error) {
	if !raw.IsObject() {
		return HealthStatus{}, utils.NewShapeError("parse health", "", "health response is not an object", nil)
	}
	status := raw.Get("status")
	if status.Type != gjson.String {
		return HealthStatus{}, utils.NewShapeError("parse health", "", "field status must be a string", nil)
	}
	return HealthStatus{
		ServiceName: optionalString(first(raw, "service", "serviceName")),
		Status:      status.Str,
	}, nil
}

func parseSource(item gjson.Result) (SourceVerdict, error) {
	if !item.IsObject() {
		return SourceVerdict{}, fmt.Errorf("not an object")
	}
	sv := SourceVerdict{
		Name:      optionalString(item.Get("name")),
		Verdict:   optionalString(item.Get("verdict")),
		Timestamp: optionalTime(item.Get("timestamp")),
	}
	if score := item.Get("score"); score.Type == gjson.Number {
		sv.Score = score.Num
	}
	if details := item.Get("details"); details.IsObject() {
		if err := json.Unmarshal([]byte(details.Raw), &sv.Details); err != nil {
			return SourceVerdict{}, fmt.Errorf("details: %w", err)
		}
	}
	return sv, nil
}

func first(raw gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := raw.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func requiredString(raw gjson.Result, key string) (string, error) {
	v := raw.Get(key)
	if !v.Exists() || v.Type == gjson.Null {
		return "", shapeErr("missing field " + key)
	}
	if v.Type != gjson.String {
		return "", shapeErr("field " + key + " must be a string")
	}
	return v.Str, nil
}

func requiredNumber(raw gjson.Result, keys ...string) (float64, error) {
	v := first(raw, keys...)
	if !v.Exists() || v.Type == gjson.Null {
		return 0, shapeErr("missing field " + keys[0])
	}
	if v.Type != gjson.Number {
		return 0, shapeErr("field " + keys[0] + " must be a number")
	}
	return v.Num, nil
}

func optionalString(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return ""
}

func optionalTime(v gjson.Result) time.Time {
	if v.Type != gjson.String {
		return time.Time{}
	}
	parsed, err := utils.ParseISO8601(v.Str)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func identity(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Raw
	}
	return ""
}

func shapeErr(msg string) error {
	return utils.NewShapeError(parseOp, "", msg, nil)
}
