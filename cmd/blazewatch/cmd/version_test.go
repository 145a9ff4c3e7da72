package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/good-yellow-bee/blazewatch/pkg/config"
)

func TestWriteVersion(t *testing.T) {
	tests := []struct {
		name   string
		format string
		short  bool
		check  func(t *testing.T, out string)
	}{
		{
			name: "short", format: "table", short: true,
			check: func(t *testing.T, out string) {
				if out != config.ShortVersionString()+"\n" {
					t.Errorf("output = %q", out)
				}
			},
		},
		{
			name: "table", format: "table",
			check: func(t *testing.T, out string) {
				if !strings.HasPrefix(out, "blazewatch ") {
					t.Errorf("output = %q", out)
				}
			},
		},
		{
			name: "json", format: "json",
			check: func(t *testing.T, out string) {
				var info config.BuildInfo
				if err := json.Unmarshal([]byte(out), &info); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if info.UserAgent != config.UserAgent() {
					t.Errorf("user_agent = %q", info.UserAgent)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeVersion(&buf, tt.format, tt.short); err != nil {
				t.Fatalf("writeVersion() error = %v", err)
			}
			tt.check(t, buf.String())
		})
	}
}
