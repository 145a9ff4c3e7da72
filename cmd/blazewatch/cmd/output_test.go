package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

func TestWriteAlert(t *testing.T) {
	rec := models.AlertRecord{
		Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Source:    "nginx",
		Severity:  "Kritik",
		Line:      "upstream timed out",
	}

	tests := []struct {
		format string
		locale string
		want   []string
	}{
		{"table", "en", []string{"[Critical", "[nginx]", "upstream timed out"}},
		{"table", "tr", []string{"[Kritik"}},
		{"plain", "en", []string{"nginx upstream timed out"}},
		{"json", "en", []string{`"severity":"Kritik"`, `"line":"upstream timed out"`}},
	}

	for _, tt := range tests {
		t.Run(tt.format+"/"+tt.locale, func(t *testing.T) {
			var buf bytes.Buffer
			writeAlert(&buf, tt.format, rec, tt.locale)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q missing %q", buf.String(), w)
				}
			}
		})
	}
}

func TestWriteAlertTruncates(t *testing.T) {
	rec := models.AlertRecord{Source: "app", Severity: "low", Line: strings.Repeat("x", 300)}

	var buf bytes.Buffer
	writeAlert(&buf, "table", rec, "en")
	if !strings.HasSuffix(strings.TrimSpace(buf.String()), "...") {
		t.Errorf("long line not truncated: %q", buf.String())
	}
	if strings.Count(buf.String(), "x") != maxMessageLen-3 {
		t.Errorf("kept %d chars, want %d", strings.Count(buf.String(), "x"), maxMessageLen-3)
	}
}

func TestWriteAlertsJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	writeAlerts(&buf, "json", nil, "en")
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("output = %q, want []", buf.String())
	}
}

func TestWriteStats(t *testing.T) {
	stats := models.Stats{
		TotalAlerts:   7,
		SeverityCount: map[string]int{"Kritik": 1, "critical": 2, "high": 3, "weird": 1},
		IsTailing:     true,
		WatchedFiles:  1,
	}
	status := stats.TailingStatus()

	var buf bytes.Buffer
	writeStats(&buf, "json", stats, status, "en")

	var report struct {
		Histogram map[string]int `json:"histogram"`
		Tailing   struct {
			Active bool `json:"active"`
		} `json:"tailing"`
	}
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Histogram["critical"] != 3 || report.Histogram["high"] != 3 || report.Histogram["unknown"] != 1 {
		t.Errorf("histogram = %v", report.Histogram)
	}
	if !report.Tailing.Active {
		t.Error("tailing.active = false")
	}

	buf.Reset()
	writeStats(&buf, "table", stats, status, "tr")
	for _, w := range []string{"Kritik", "Bilinmiyor", "Tailing:", "yes"} {
		if !strings.Contains(buf.String(), w) {
			t.Errorf("table output missing %q:\n%s", w, buf.String())
		}
	}
}

func TestSelectAlerts(t *testing.T) {
	recs := []models.AlertRecord{
		{Source: "a", Line: "1", Severity: "high"},
		{Source: "", Line: "2", Severity: "critical"},
		{Source: "c", Line: "3", Severity: "low"},
		{Source: "d", Line: "4", Severity: "Yüksek"},
	}

	if got := selectAlerts(recs, false); len(got) != 3 {
		t.Errorf("selectAlerts(all) = %d records, want 3", len(got))
	}
	got := selectAlerts(recs, true)
	if len(got) != 2 || got[0].Line != "1" || got[1].Line != "4" {
		t.Errorf("selectAlerts(qualifying) = %+v", got)
	}
}
