// Package models defines the alert, statistics and tailing types shared by
// the blazewatch client components.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DedupWindow is the maximum timestamp distance for two reports of the same
// source and line to be treated as one event. The comparison is strict.
const DedupWindow = 5000 * time.Millisecond

// ErrMalformedRecord is returned for alert payloads missing line or source.
var ErrMalformedRecord = errors.New("malformed alert record")

// AlertRecord is one classified alert as reported by the dashboard API.
type AlertRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
	LogFile      string    `json:"logFile,omitempty"`
	Severity     string    `json:"severity"`
	MatchedRules []string  `json:"matchedRules,omitempty"`
	Line         string    `json:"line"`
	Summary      string    `json:"summary,omitempty"`
}

// rawAlert mirrors AlertRecord with pointer identity fields so that absent
// keys can be told apart from empty strings. The timestamp is decoded
// separately so a bad value does not reject the record.
type rawAlert struct {
	Timestamp    json.RawMessage `json:"timestamp"`
	Source       *string         `json:"source"`
	LogFile      string          `json:"logFile"`
	Severity     string          `json:"severity"`
	MatchedRules []string        `json:"matchedRules"`
	Line         *string         `json:"line"`
	Summary      string          `json:"summary"`
}

// ParseAlert decodes a single alert payload.
// A payload without a line or source key yields ErrMalformedRecord. A
// timestamp that cannot be read leaves Timestamp zero.
func ParseAlert(data []byte) (AlertRecord, error) {
	var raw rawAlert
	if err := json.Unmarshal(data, &raw); err != nil {
		return AlertRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if raw.Line == nil || raw.Source == nil {
		return AlertRecord{}, ErrMalformedRecord
	}

	return AlertRecord{
		Timestamp:    parseTimestamp(raw.Timestamp),
		Source:       *raw.Source,
		LogFile:      raw.LogFile,
		Severity:     raw.Severity,
		MatchedRules: raw.MatchedRules,
		Line:         *raw.Line,
		Summary:      raw.Summary,
	}, nil
}

// parseTimestamp accepts RFC 3339 strings and unix milliseconds.
func parseTimestamp(data json.RawMessage) time.Time {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// Validate checks an already decoded record for its identity fields.
func (a AlertRecord) Validate() error {
	if a.Line == "" || a.Source == "" {
		return ErrMalformedRecord
	}
	return nil
}

// Key returns the identity triple used by the is-new heuristic.
func (a AlertRecord) Key() EventKey {
	return EventKey{Source: a.Source, Line: a.Line, At: a.Timestamp}
}

// Level returns the normalized severity of the record.
func (a AlertRecord) Level() Severity {
	return ClassifySeverity(a.Severity)
}

// Text returns the summary, falling back to the raw line.
func (a AlertRecord) Text() string {
	if a.Summary != "" {
		return a.Summary
	}
	return a.Line
}

// EventKey identifies a real-world event without a server-issued ID.
type EventKey struct {
	Source string
	Line   string
	At     time.Time
}

// Same reports whether k and other describe the same event: identical
// source and line, timestamps less than DedupWindow apart. A key with an
// unknown (zero) timestamp matches nothing.
func (k EventKey) Same(other EventKey) bool {
	if k.Source != other.Source || k.Line != other.Line {
		return false
	}
	if k.At.IsZero() || other.At.IsZero() {
		return false
	}
	d := k.At.Sub(other.At)
	if d < 0 {
		d = -d
	}
	return d < DedupWindow
}

// Severity is a normalized alert severity bucket.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

// Severities lists the known buckets from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ClassifySeverity maps a raw severity in either accepted spelling to its
// bucket. Matching ignores case and surrounding whitespace.
func ClassifySeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "kritik":
		return SeverityCritical
	case "high", "yüksek":
		return SeverityHigh
	case "medium", "orta":
		return SeverityMedium
	case "low", "düşük":
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// Qualifies reports whether the severity triggers a notification.
func (s Severity) Qualifies() bool {
	return s == SeverityCritical || s == SeverityHigh
}

var severityLabels = map[string]map[Severity]string{
	"en": {
		SeverityCritical: "Critical",
		SeverityHigh:     "High",
		SeverityMedium:   "Medium",
		SeverityLow:      "Low",
		SeverityUnknown:  "Unknown",
	},
	"tr": {
		SeverityCritical: "Kritik",
		SeverityHigh:     "Yüksek",
		SeverityMedium:   "Orta",
		SeverityLow:      "Düşük",
		SeverityUnknown:  "Bilinmiyor",
	},
}

// Label returns a display label for the severity in the given locale.
// Unsupported locales fall back to English.
func (s Severity) Label(locale string) string {
	labels, ok := severityLabels[strings.ToLower(locale)]
	if !ok {
		labels = severityLabels["en"]
	}
	if l, ok := labels[s]; ok {
		return l
	}
	return labels[SeverityUnknown]
}

// SeverityLabel is like Severity.Label but passes unrecognized non-empty raw
// values through unchanged.
func SeverityLabel(raw, locale string) string {
	sev := ClassifySeverity(raw)
	if sev == SeverityUnknown && strings.TrimSpace(raw) != "" {
		return raw
	}
	return sev.Label(locale)
}
