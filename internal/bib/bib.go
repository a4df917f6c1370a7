// Package bib extracts bib numbers from scanned or typed input.
//
// All functions are pure and total: malformed input yields a "no match"
// result, never an error or panic.
package bib

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Prefix is the event code carried in checkpoint QR payloads, e.g.
// "MST26:021". Matching is case-insensitive.
const Prefix = "MST26"

var (
	prefixed  = regexp.MustCompile(`(?i)mst26\s*:\s*([0-9]{1,6})`)
	bare      = regexp.MustCompile(`^[0-9]{1,6}$`)
	afterSep  = regexp.MustCompile(`:\s*([0-9]{1,6})`)
	trailing  = regexp.MustCompile(`([0-9]{1,6})\D*$`)
	firstRun  = regexp.MustCompile(`([0-9]{1,6})`)
)

// Parse extracts a bib number from manual or scanned text.
//
// Recognized forms, in order:
//   - "MST26:021" / "mst26 : 21" - the prefixed QR payload, leading zeros
//     interpreted as decimal
//   - "21" / "000021" - a bare digit string of 1-6 digits
//
// Returns (0, false) when nothing matches or the result is not positive.
func Parse(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	var digits string
	if m := prefixed.FindStringSubmatch(s); m != nil {
		digits = m[1]
	} else if bare.MatchString(s) {
		digits = s
	} else {
		return 0, false
	}

	return toPositive(digits)
}

// FromScanText extracts a bib number from a raw QR payload with looser rules
// than Parse: it prefers digits following a colon ("MST26:7"), then falls
// back to the trailing digit run ("...-007"). Used by the scan loop, where
// payload framing varies between badge generations.
func FromScanText(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if m := afterSep.FindStringSubmatch(s); m != nil {
		return toPositive(m[1])
	}
	if m := trailing.FindStringSubmatch(s); m != nil {
		return toPositive(m[1])
	}
	return 0, false
}

// KeyFromRaw recovers a bib dedup key from any stored queue representation:
// a JSON number, a digit-bearing string, or an object in either the canonical
// or a legacy shape. Legacy objects are probed for alternate bib field names
// before falling back to digit extraction from their free-text fields.
//
// Returns (0, false) for payloads with no recoverable positive bib.
func KeyFromRaw(raw json.RawMessage) (int, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, false
	}

	switch trimmed[0] {
	case '{':
		return keyFromObject(raw)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		return keyFromText(s)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, false
		}
		return toPositive(n.String())
	}
}

func keyFromObject(raw json.RawMessage) (int, bool) {
	var obj struct {
		BibNumber  json.RawMessage `json:"bib_number"`
		BibCamel   json.RawMessage `json:"bibNumber"`
		Bib        json.RawMessage `json:"bib"`
		Input      string          `json:"input"`
		Normalized string          `json:"normalized"`
		Text       string          `json:"text"`
		RawText    string          `json:"rawText"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, false
	}

	for _, field := range []json.RawMessage{obj.BibNumber, obj.BibCamel, obj.Bib} {
		if len(field) == 0 {
			continue
		}
		if n, ok := bibValue(field); ok {
			return n, true
		}
	}

	for _, text := range []string{obj.Input, obj.Normalized, obj.Text, obj.RawText} {
		if text == "" {
			continue
		}
		if n, ok := keyFromText(text); ok {
			return n, true
		}
	}

	return 0, false
}

// bibValue parses a bib field holding either a number or a numeric string.
func bibValue(raw json.RawMessage) (int, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return toPositive(n.String())
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return toPositive(strings.TrimSpace(s))
	}
	return 0, false
}

// keyFromText pulls the first 1-6 digit run out of free text.
func keyFromText(s string) (int, bool) {
	m := firstRun.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	return toPositive(m[1])
}

func toPositive(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
