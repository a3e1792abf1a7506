package repo

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Response normalization for the aggregation API.
//
// Single-indicator responses (submit) are accepted as:
//
//	{...indicator...}
//	{"data": {...indicator...}}
//	{"success": true, "data": {...indicator...}}
//
// List responses are accepted as:
//
//	[ ... ]
//	{"data": [ ... ]}
//	null
//	{"data": null}
//
// Any 2xx body carrying "success": false is treated as a server-side failure,
// and its "error" text is surfaced verbatim.

type shapeProblem string

func (s shapeProblem) Error() string { return string(s) }

// parseBody validates raw as JSON. An empty body parses as null.
func parseBody(raw []byte) (gjson.Result, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return gjson.Parse("null"), nil
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, shapeProblem("response is not valid JSON")
	}
	return gjson.ParseBytes(raw), nil
}

// serverFailure reports whether a 2xx body still declares failure, and the server's text.
func serverFailure(body gjson.Result) (string, bool) {
	if !body.IsObject() {
		return "", false
	}
	success := body.Get("success")
	if success.Exists() && success.Type == gjson.False {
		return errorText(body), true
	}
	return "", false
}

// errorText extracts the server-supplied message from an error body, if any.
func errorText(body gjson.Result) string {
	if !body.IsObject() {
		return ""
	}
	for _, key := range []string{"error", "message", "detail"} {
		if v := body.Get(key); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return v.Str
		}
	}
	return ""
}

// unwrapSingle returns the indicator object, unwrapping a data envelope when present.
func unwrapSingle(body gjson.Result) (gjson.Result, error) {
	if !body.IsObject() {
		return gjson.Result{}, shapeProblem("expected an indicator object")
	}
	if isEnvelope(body) {
		data := body.Get("data")
		if !data.IsObject() {
			return gjson.Result{}, shapeProblem("envelope data is not an indicator object")
		}
		return data, nil
	}
	return body, nil
}

// unwrapList returns the indicator elements, unwrapping a data envelope when present.
func unwrapList(body gjson.Result) ([]gjson.Result, error) {
	switch {
	case body.Type == gjson.Null:
		return nil, nil
	case body.IsArray():
		return body.Array(), nil
	case body.IsObject():
		data := body.Get("data")
		if !data.Exists() {
			return nil, shapeProblem("expected an array or a data envelope")
		}
		if data.Type == gjson.Null {
			return nil, nil
		}
		if !data.IsArray() {
			return nil, shapeProblem("envelope data is not an array")
		}
		return data.Array(), nil
	default:
		return nil, shapeProblem("expected an array of indicators")
	}
}

// isEnvelope distinguishes {data: ...} wrappers from bare indicator objects.
// A bare indicator always carries its own "indicator" field.
func isEnvelope(body gjson.Result) bool {
	if !body.Get("data").Exists() {
		return false
	}
	return !body.Get("indicator").Exists()
}
