package models

import "time"

// Stats is the aggregate statistics document served by GET /stats.
type Stats struct {
	TotalAlerts      int            `json:"totalAlerts"`
	SeverityCount    map[string]int `json:"severityCount"`
	ActiveRules      int            `json:"activeRules"`
	WatchedFiles     int            `json:"watchedFiles"`
	IsTailing        bool           `json:"isTailing"`
	WatchedFilesList []string       `json:"watchedFilesList,omitempty"`
}

// Histogram folds the server's severity counts into normalized buckets.
// Both spellings of a bucket are summed.
func (s Stats) Histogram() map[Severity]int {
	h := make(map[Severity]int, len(Severities)+1)
	for raw, n := range s.SeverityCount {
		h[ClassifySeverity(raw)] += n
	}
	return h
}

// TailingStatus derives the tailing status reported by the server.
func (s Stats) TailingStatus() TailingStatus {
	count := s.WatchedFiles
	if len(s.WatchedFilesList) > count {
		count = len(s.WatchedFilesList)
	}
	var paths []string
	if len(s.WatchedFilesList) > 0 {
		paths = append([]string(nil), s.WatchedFilesList...)
	}
	return TailingStatus{
		Active:           s.IsTailing,
		WatchedFileCount: count,
		WatchedFilePaths: paths,
	}
}

// Clone returns a deep copy.
func (s Stats) Clone() Stats {
	out := s
	if s.SeverityCount != nil {
		out.SeverityCount = make(map[string]int, len(s.SeverityCount))
		for k, v := range s.SeverityCount {
			out.SeverityCount[k] = v
		}
	}
	if s.WatchedFilesList != nil {
		out.WatchedFilesList = append([]string(nil), s.WatchedFilesList...)
	}
	return out
}

// TailingStatus describes whether the server is tailing and what.
type TailingStatus struct {
	Active           bool      `json:"active"`
	WatchedFileCount int       `json:"watchedFileCount"`
	WatchedFilePaths []string  `json:"watchedFilePaths,omitempty"`
	Desired          bool      `json:"desired"`
	ChannelState     string    `json:"channelState"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// LogFile is a configured log file as listed by GET /logfiles.
type LogFile struct {
	Path    string `json:"path"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Enabled bool   `json:"enabled"`
}

// EnabledPaths returns the paths of enabled files in order.
func EnabledPaths(files []LogFile) []string {
	var paths []string
	for _, f := range files {
		if f.Enabled {
			paths = append(paths, f.Path)
		}
	}
	return paths
}

// TailStartResult reports which files the server started and failed to tail.
type TailStartResult struct {
	Started []string `json:"started"`
	Failed  []string `json:"failed"`
}

// AnalyzeResult is the outcome of a one-shot analysis (POST /analyze).
type AnalyzeResult struct {
	Entries []AlertRecord `json:"entries"`
	Count   int           `json:"count"`
}
