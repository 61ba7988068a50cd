package decision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	reDecisionTag    = regexp.MustCompile(`(?s)<decision>(.*?)</decision>`)
	reJSONFence      = regexp.MustCompile("(?s)```(?:json)?\\s*([\\s\\S]*?)```")
	reJSONObject     = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	reInvisibleRunes = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// Parse extracts one decision object from a model response. It tolerates
// <decision> tags, markdown fences and prose around the JSON. A response
// with no JSON at all collapses to a safe hold rather than an error.
func Parse(response string) (*Decision, error) {
	s := removeInvisibleRunes(response)
	s = strings.TrimSpace(s)
	s = fixMissingQuotes(s)

	jsonPart := s
	if m := reDecisionTag.FindStringSubmatch(s); len(m) > 1 {
		jsonPart = strings.TrimSpace(m[1])
	}
	if m := reJSONFence.FindStringSubmatch(jsonPart); len(m) > 1 {
		jsonPart = strings.TrimSpace(m[1])
	}

	jsonContent := strings.TrimSpace(reJSONObject.FindString(jsonPart))
	if jsonContent == "" {
		summary := jsonPart
		if len(summary) > 240 {
			summary = summary[:240] + "..."
		}
		return SafeHold(fmt.Sprintf("model returned no structured decision, holding; summary: %s", summary)), nil
	}

	var wire wireDecision
	if err := json.Unmarshal([]byte(jsonContent), &wire); err != nil {
		return nil, fmt.Errorf("decision JSON parse failed: %w\nJSON: %s", err, truncate(jsonContent, 200))
	}

	return fromWire(wire)
}

// fromWire lifts the flat model output into the tagged variant.
func fromWire(w wireDecision) (*Decision, error) {
	d := &Decision{
		Reason:     strings.TrimSpace(w.Reason),
		Confidence: w.Confidence,
	}

	switch Operation(strings.ToLower(strings.TrimSpace(w.Operation))) {
	case OpHold:
		d.Operation = OpHold
	case OpClose:
		if w.Symbol == "" {
			return nil, fmt.Errorf("close decision without symbol")
		}
		d.Operation = OpClose
		d.Close = &CloseParams{Symbol: strings.ToUpper(w.Symbol)}
	case OpOpen:
		if w.Symbol == "" {
			return nil, fmt.Errorf("open decision without symbol")
		}
		d.Operation = OpOpen
		d.Open = &OpenParams{
			Symbol:                 strings.ToUpper(w.Symbol),
			Direction:              strings.ToLower(w.Direction),
			TargetPortionOfBalance: w.TargetPortionOfBalance,
			Leverage:               w.Leverage,
			StopLossPct:            w.StopLossPct,
			TakeProfitPct:          w.TakeProfitPct,
		}
	default:
		return nil, fmt.Errorf("unknown operation %q", w.Operation)
	}

	return d, nil
}

// fixMissingQuotes normalizes curly quotes and full-width punctuation that
// some models emit inside JSON.
func fixMissingQuotes(s string) string {
	replacements := [][2]string{
		{"“", "\""}, {"”", "\""},
		{"‘", "'"}, {"’", "'"},
		{"［", "["}, {"］", "]"},
		{"｛", "{"}, {"｝", "}"},
		{"：", ":"}, {"，", ","},
		{"【", "["}, {"】", "]"},
		{"　", " "},
	}
	for _, r := range replacements {
		s = strings.ReplaceAll(s, r[0], r[1])
	}
	return s
}

func removeInvisibleRunes(s string) string {
	return reInvisibleRunes.ReplaceAllString(s, "")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
