package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// LegacyDirInfo holds the attributes recovered from a flat legacy
// recording directory name such as "0811 Test01 sub02 이서윤 SLC".
type LegacyDirInfo struct {
	// Date is the raw DDMM token, empty when the name carries none.
	Date string
	// TestNumber defaults to 1 when no TestNN token is present.
	TestNumber int
	// SubjectNumber defaults to 1 when no subNN token is present.
	SubjectNumber int
	// Subject is the free-form display name between the subject number
	// and the scenario code, "Unknown" when absent.
	Subject string
	// Scenario is one of SLC, S&G, LW, or "unknown".
	Scenario string
}

// RecordingDirInfo holds the attributes recovered from a
// recording-timestamp directory name such as "recording_20250804_113600_ND".
type RecordingDirInfo struct {
	// Date is the raw YYYYMMDD token, empty when absent.
	Date string
	// Time is the raw HHMMSS token, empty when absent.
	Time string
	// Identifier is the trailing uppercase token, "Unknown" when absent.
	Identifier string
	// TestNumber is always 1 for recording directories.
	TestNumber int
	// Subject mirrors the identifier.
	Subject string
	// Scenario is the sentinel "recording" tag.
	Scenario string
}

var (
	legacyDateRe    = regexp.MustCompile(`^(\d{4})`)
	legacyTestRe    = regexp.MustCompile(`Test(\d+)`)
	legacySubNumRe  = regexp.MustCompile(`sub(\d+)`)
	legacyNameRe    = regexp.MustCompile(`sub\d+\s+([^S]+?)\s+S`)
	legacyScenRe    = regexp.MustCompile(`(SLC|S&G|LW)`)
	recordingDateRe = regexp.MustCompile(`(\d{8})`)
	recordingTimeRe = regexp.MustCompile(`_(\d{6})_`)
	recordingIDRe   = regexp.MustCompile(`_([A-Z0-9]+)$`)
)

// ParseLegacyDirName extracts structured attributes from a flat legacy
// directory name. Every field has a fallback; an unrecognized scenario
// yields "unknown" rather than an error.
func ParseLegacyDirName(name string) LegacyDirInfo {
	info := LegacyDirInfo{
		TestNumber:    1,
		SubjectNumber: 1,
		Subject:       "Unknown",
		Scenario:      "unknown",
	}

	if m := legacyDateRe.FindStringSubmatch(name); m != nil {
		info.Date = m[1]
	}
	if m := legacyTestRe.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			info.TestNumber = n
		}
	}
	if m := legacySubNumRe.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			info.SubjectNumber = n
		}
	}
	if m := legacyNameRe.FindStringSubmatch(name); m != nil {
		info.Subject = strings.TrimSpace(m[1])
	}
	if m := legacyScenRe.FindStringSubmatch(name); m != nil {
		info.Scenario = m[1]
	}

	return info
}

// IsRecordingDirName reports whether the directory uses the
// recording-timestamp convention.
func IsRecordingDirName(name string) bool {
	return strings.HasPrefix(name, "recording_")
}

// ParseRecordingDirName extracts structured attributes from a
// recording-timestamp directory name. Test number is fixed at 1 and the
// trailing identifier doubles as the subject.
func ParseRecordingDirName(name string) RecordingDirInfo {
	info := RecordingDirInfo{
		Identifier: "Unknown",
		TestNumber: 1,
		Subject:    "Unknown",
		Scenario:   "recording",
	}

	if m := recordingDateRe.FindStringSubmatch(name); m != nil {
		info.Date = m[1]
	}
	if m := recordingTimeRe.FindStringSubmatch(name); m != nil {
		info.Time = m[1]
	}
	if m := recordingIDRe.FindStringSubmatch(name); m != nil {
		info.Identifier = m[1]
		info.Subject = m[1]
	}

	return info
}

// SensorPosition maps a legacy sensor filename to its mounting position.
// Unrecognized filenames map to "unknown".
func SensorPosition(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.Contains(lower, "centc"):
		return "console"
	case strings.Contains(lower, "headr"):
		return "headrest"
	case strings.Contains(lower, "realsense"):
		return "realsense"
	default:
		return "unknown"
	}
}
