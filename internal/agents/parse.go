package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/topics"
)

// ErrMalformedResponse is matched (via errors.Is) by every *ParseError.
var ErrMalformedResponse = errors.New("malformed model response")

const snippetLen = 200

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParsedFinding is a model response that passed validation against a topic's vocabulary.
type ParsedFinding struct {
	Narrative string
	// Signals holds every signal of the topic's vocabulary; missing or null values are Unknown.
	Signals   map[models.SignalKey]models.SignalValue
	Citations map[string]string
}

// ParseError describes why a response was rejected.
type ParseError struct {
	Topic   models.Topic
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s response: %s (snippet: %q)", e.Topic, e.Reason, e.Snippet)
}

// Unwrap makes errors.Is(err, ErrMalformedResponse) hold.
func (e *ParseError) Unwrap() error { return ErrMalformedResponse }

type response struct {
	Analysis         *string                    `json:"analysis"`
	Features         map[string]json.RawMessage `json:"features"`
	ExtractedClauses map[string]json.RawMessage `json:"extracted_clauses"`
}

// ParseResponse extracts the JSON object from raw (a ```json fence, else the outermost
// braces) and validates its features against spec. On failure the error is a *ParseError.
func ParseResponse(spec topics.Spec, raw string) (*ParsedFinding, error) {
	body := ExtractJSON(raw)
	fail := func(format string, args ...any) (*ParsedFinding, error) {
		return nil, &ParseError{Topic: spec.Topic, Reason: fmt.Sprintf(format, args...), Snippet: snippet(body)}
	}
	if body == "" {
		return fail("no JSON object found")
	}
	var resp response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return fail("invalid JSON: %v", err)
	}
	if resp.Features == nil {
		return fail("missing features object")
	}

	out := &ParsedFinding{Signals: make(map[models.SignalKey]models.SignalValue, len(spec.Signals))}
	if resp.Analysis != nil {
		out.Narrative = strings.TrimSpace(*resp.Analysis)
	}
	for _, sig := range spec.Signals {
		v, err := decodeSignal(sig, resp.Features[string(sig.Key)])
		if err != nil {
			return fail("signal %s: %v", sig.Key, err)
		}
		out.Signals[sig.Key] = v
	}
	for label, rawClause := range resp.ExtractedClauses {
		var text string
		if json.Unmarshal(rawClause, &text) == nil && strings.TrimSpace(text) != "" {
			if out.Citations == nil {
				out.Citations = make(map[string]string)
			}
			out.Citations[label] = strings.TrimSpace(text)
		}
	}
	return out, nil
}

// ExtractJSON returns the JSON object embedded in a model response, or "".
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil && strings.HasPrefix(strings.TrimSpace(m[1]), "{") {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return ""
	}
	return raw[start : end+1]
}

// decodeSignal converts one raw feature to the declared kind. Absent and null values are
// Unknown; values of the wrong type are errors.
func decodeSignal(sig topics.SignalSpec, raw json.RawMessage) (models.SignalValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return models.Unknown(), nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.Unknown(), err
	}
	switch sig.Kind {
	case models.SignalBool:
		switch b := v.(type) {
		case bool:
			return models.Bool(b), nil
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "yes":
				return models.Bool(true), nil
			case "false", "no":
				return models.Bool(false), nil
			case "", "unknown", "n/a":
				return models.Unknown(), nil
			}
		}
		return models.Unknown(), fmt.Errorf("want boolean, got %s", raw)
	case models.SignalNumber:
		switch n := v.(type) {
		case float64:
			return models.Number(n), nil
		case string:
			s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n), "%"))
			if s == "" || strings.EqualFold(s, "unknown") {
				return models.Unknown(), nil
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return models.Number(f), nil
			}
		}
		return models.Unknown(), fmt.Errorf("want number, got %s", raw)
	case models.SignalCategory:
		s, ok := v.(string)
		if !ok {
			return models.Unknown(), fmt.Errorf("want string, got %s", raw)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return models.Unknown(), nil
		}
		if len(sig.Enum) == 0 {
			return models.Category(s), nil
		}
		for _, allowed := range sig.Enum {
			if strings.EqualFold(s, allowed) {
				return models.Category(allowed), nil
			}
		}
		return models.Unknown(), fmt.Errorf("%q not in %v", s, sig.Enum)
	}
	return models.Unknown(), fmt.Errorf("unsupported kind %q", sig.Kind)
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) > snippetLen {
		return string(r[:snippetLen])
	}
	return s
}
