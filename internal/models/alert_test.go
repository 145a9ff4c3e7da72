package models

import (
	"errors"
	"testing"
	"time"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		input string
		want  Severity
	}{
		{"critical", SeverityCritical},
		{"CRITICAL", SeverityCritical},
		{"kritik", SeverityCritical},
		{"Kritik", SeverityCritical},
		{"  high ", SeverityHigh},
		{"yüksek", SeverityHigh},
		{"YÜKSEK", SeverityHigh},
		{"medium", SeverityMedium},
		{"orta", SeverityMedium},
		{"low", SeverityLow},
		{"düşük", SeverityLow},
		{"", SeverityUnknown},
		{"warning", SeverityUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ClassifySeverity(tt.input); got != tt.want {
				t.Errorf("ClassifySeverity(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSeverityQualifies(t *testing.T) {
	for _, sev := range []Severity{SeverityCritical, SeverityHigh} {
		if !sev.Qualifies() {
			t.Errorf("%v should qualify", sev)
		}
	}
	for _, sev := range []Severity{SeverityMedium, SeverityLow, SeverityUnknown} {
		if sev.Qualifies() {
			t.Errorf("%v should not qualify", sev)
		}
	}
}

func TestSeverityLabel(t *testing.T) {
	if got := SeverityLabel("yüksek", "en"); got != "High" {
		t.Errorf("SeverityLabel(yüksek, en) = %q, want High", got)
	}
	if got := SeverityLabel("critical", "tr"); got != "Kritik" {
		t.Errorf("SeverityLabel(critical, tr) = %q, want Kritik", got)
	}
	if got := SeverityLabel("notice", "tr"); got != "notice" {
		t.Errorf("unrecognized severity should pass through, got %q", got)
	}
	if got := SeverityLabel("", "tr"); got != "Bilinmiyor" {
		t.Errorf("empty severity label = %q, want Bilinmiyor", got)
	}
	if got := SeverityLow.Label("de"); got != "Low" {
		t.Errorf("unsupported locale should fall back to English, got %q", got)
	}
}

func TestParseAlert(t *testing.T) {
	data := []byte(`{"timestamp":"2026-01-02T15:04:05Z","source":"web1","logFile":"/var/log/app.log","severity":"kritik","matchedRules":["http-500"],"line":"ERR 500","summary":"server error"}`)

	rec, err := ParseAlert(data)
	if err != nil {
		t.Fatalf("ParseAlert: %v", err)
	}
	if rec.Source != "web1" || rec.Line != "ERR 500" {
		t.Errorf("identity fields = (%q, %q)", rec.Source, rec.Line)
	}
	if rec.Level() != SeverityCritical {
		t.Errorf("Level() = %v, want critical", rec.Level())
	}
	if len(rec.MatchedRules) != 1 || rec.MatchedRules[0] != "http-500" {
		t.Errorf("MatchedRules = %v", rec.MatchedRules)
	}
	want := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	if !rec.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp, want)
	}
}

func TestParseAlert_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty object", `{}`},
		{"missing source", `{"line":"ERR 500"}`},
		{"missing line", `{"source":"web1"}`},
		{"invalid json", `{"line":`},
		{"not an object", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAlert([]byte(tt.data))
			if !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("ParseAlert(%s) error = %v, want ErrMalformedRecord", tt.data, err)
			}
		})
	}
}

func TestParseAlert_EmptyStringsArePresent(t *testing.T) {
	if _, err := ParseAlert([]byte(`{"line":"","source":""}`)); err != nil {
		t.Errorf("present but empty identity fields should decode, got %v", err)
	}
}

func TestParseAlert_Timestamp(t *testing.T) {
	want := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		ts   string
		want time.Time
	}{
		{"rfc3339", `"2026-01-02T15:04:05Z"`, want},
		{"offset", `"2026-01-02T18:04:05+03:00"`, want},
		{"unix millis", `1767366245000`, want},
		{"empty string", `""`, time.Time{}},
		{"garbage", `"yesterday"`, time.Time{}},
		{"null", `null`, time.Time{}},
		{"object", `{"at":1}`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseAlert([]byte(`{"timestamp":` + tt.ts + `,"source":"web1","line":"ERR 500"}`))
			if err != nil {
				t.Fatalf("ParseAlert() error = %v, record should be kept", err)
			}
			if !rec.Timestamp.Equal(tt.want) {
				t.Errorf("Timestamp = %v, want %v", rec.Timestamp, tt.want)
			}
		})
	}

	rec, err := ParseAlert([]byte(`{"source":"web1","line":"ERR 500"}`))
	if err != nil || !rec.Timestamp.IsZero() {
		t.Errorf("absent timestamp: rec = %+v, err = %v", rec, err)
	}
}

func TestAlertRecordValidate(t *testing.T) {
	if err := (AlertRecord{Source: "web1", Line: "x"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := (AlertRecord{Source: "web1"}).Validate(); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("Validate() without line = %v", err)
	}
	if err := (AlertRecord{Line: "x"}).Validate(); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("Validate() without source = %v", err)
	}
}

func TestEventKeySame(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := EventKey{Source: "web1", Line: "ERR 500", At: base}

	tests := []struct {
		name  string
		other EventKey
		want  bool
	}{
		{"identical", a, true},
		{"2s later", EventKey{"web1", "ERR 500", base.Add(2 * time.Second)}, true},
		{"2s earlier", EventKey{"web1", "ERR 500", base.Add(-2 * time.Second)}, true},
		{"just inside window", EventKey{"web1", "ERR 500", base.Add(4999 * time.Millisecond)}, true},
		{"exactly window", EventKey{"web1", "ERR 500", base.Add(5000 * time.Millisecond)}, false},
		{"6s later", EventKey{"web1", "ERR 500", base.Add(6 * time.Second)}, false},
		{"other source", EventKey{"web2", "ERR 500", base}, false},
		{"other line", EventKey{"web1", "ERR 502", base}, false},
		{"unknown time", EventKey{"web1", "ERR 500", time.Time{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Same(tt.other); got != tt.want {
				t.Errorf("Same() = %v, want %v", got, tt.want)
			}
			if got := tt.other.Same(a); got != tt.want {
				t.Errorf("Same() is not symmetric: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventKeySame_UnknownTimes(t *testing.T) {
	a := EventKey{Source: "web1", Line: "ERR 500"}
	if a.Same(a) {
		t.Error("keys without timestamps should never match")
	}
}

func TestAlertRecordText(t *testing.T) {
	if got := (AlertRecord{Line: "raw", Summary: "sum"}).Text(); got != "sum" {
		t.Errorf("Text() = %q, want sum", got)
	}
	if got := (AlertRecord{Line: "raw"}).Text(); got != "raw" {
		t.Errorf("Text() = %q, want raw", got)
	}
}

func TestStatsHistogram(t *testing.T) {
	s := Stats{SeverityCount: map[string]int{
		"kritik":   2,
		"critical": 1,
		"yüksek":   4,
		"orta":     3,
		"düşük":    5,
		"notice":   7,
	}}

	h := s.Histogram()
	want := map[Severity]int{
		SeverityCritical: 3,
		SeverityHigh:     4,
		SeverityMedium:   3,
		SeverityLow:      5,
		SeverityUnknown:  7,
	}
	for sev, n := range want {
		if h[sev] != n {
			t.Errorf("Histogram()[%v] = %d, want %d", sev, h[sev], n)
		}
	}
}

func TestStatsTailingStatus(t *testing.T) {
	s := Stats{IsTailing: true, WatchedFiles: 1, WatchedFilesList: []string{"/a.log", "/b.log"}}
	st := s.TailingStatus()
	if !st.Active {
		t.Error("Active should be true")
	}
	if st.WatchedFileCount != 2 {
		t.Errorf("WatchedFileCount = %d, want 2", st.WatchedFileCount)
	}
	st.WatchedFilePaths[0] = "changed"
	if s.WatchedFilesList[0] != "/a.log" {
		t.Error("TailingStatus must not alias the stats list")
	}
}

func TestEnabledPaths(t *testing.T) {
	files := []LogFile{
		{Path: "/a.log", Enabled: true},
		{Path: "/b.log"},
		{Path: "/c.log", Enabled: true},
	}
	got := EnabledPaths(files)
	if len(got) != 2 || got[0] != "/a.log" || got[1] != "/c.log" {
		t.Errorf("EnabledPaths() = %v", got)
	}
}
