package parse

import (
	"path"
	"path/filepath"
	"strings"
)

// Artifact holds the attributes recovered from an optimization artifact
// path. Fields that the path does not encode are left at their zero value
// with the matching Has* flag false; callers decide whether an absent
// field makes the artifact unresolvable for its strategy.
type Artifact struct {
	Strategy    Strategy
	HasStrategy bool

	Scenario         string
	HasScenario      bool
	Subject          string
	HasSubject       bool
	SensorSetting    string
	HasSensorSetting bool

	ParameterType ParameterType

	Model    Model
	HasModel bool

	Category    Category
	HasCategory bool

	DataType    DataType
	HasDataType bool

	FileName string
}

// StrategyFromSegment matches a single path segment against the strategy
// folder convention: "Strategy<N>" (optionally suffixed, e.g.
// "Strategy0_HeadIMU"), case-insensitive, with the literal word
// "universal" also meaning strategy 4.
func StrategyFromSegment(segment string) (Strategy, bool) {
	lower := strings.ToLower(segment)
	if strings.Contains(lower, "universal") {
		return StrategyUniversal, true
	}
	idx := strings.Index(lower, "strategy")
	if idx < 0 {
		return 0, false
	}
	rest := lower[idx+len("strategy"):]
	if rest == "" {
		return 0, false
	}
	switch rest[0] {
	case '0':
		return StrategySubjectScenarioSetting, true
	case '1':
		return StrategySubject, true
	case '2':
		return StrategySubjectScenario, true
	case '3':
		return StrategyScenario, true
	case '4':
		return StrategyUniversal, true
	default:
		return 0, false
	}
}

// DataTypeFromSegment matches a data-type folder name.
func DataTypeFromSegment(segment string) (DataType, bool) {
	switch segment {
	case "Driving+Rest":
		return DataDrivingRest, true
	case "Driving":
		return DataDriving, true
	default:
		return "", false
	}
}

// CategoryFromSegment matches an optimization category folder name.
func CategoryFromSegment(segment string) (Category, bool) {
	switch segment {
	case string(CategoryParameter):
		return CategoryParameter, true
	case string(CategoryResults):
		return CategoryResults, true
	case string(CategoryVisualization):
		return CategoryVisualization, true
	default:
		return "", false
	}
}

// SplitScenarioSubject splits a compound "scenario_subject" segment on the
// first underscore. Segments without an underscore do not match.
func SplitScenarioSubject(segment string) (scenario, subject string, ok bool) {
	idx := strings.Index(segment, "_")
	if idx <= 0 || idx == len(segment)-1 {
		return "", "", false
	}
	return segment[:idx], segment[idx+1:], true
}

// TrimSensorSetting normalizes a sensor-setting segment by stripping a
// trailing ".tmp" suffix left behind by the optimization runs.
func TrimSensorSetting(segment string) string {
	return strings.TrimSuffix(segment, ".tmp")
}

// ParameterTypeFromFilename detects the parameter variant encoded in a
// filename. "3opt" wins over "fullopt"; anything else defaults to fullopt.
func ParameterTypeFromFilename(name string) ParameterType {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "3opt") {
		return ParameterThreeOpt
	}
	return ParameterFullOpt
}

// ModelFromFilename matches a filename against the closed model set.
func ModelFromFilename(name string) (Model, bool) {
	lower := strings.ToLower(name)
	for _, m := range Models {
		if strings.Contains(lower, string(m)) {
			return m, true
		}
	}
	return "", false
}

// ParseArtifactPath interprets an optimization artifact path of the shape
//
//	<...>/<DataType>/<Category>/Strategy<N>[_Name]/[segments...]/<file>
//
// Every segment is scanned, so callers pass paths relative to the
// optimization root; an absolute path whose ancestors mention a strategy
// word would misparse. Slash and OS separators are both accepted. The
// intermediate segments
// between the strategy folder and the file are interpreted per strategy:
//
//	strategy 0: scenario_subject, then sensor setting
//	strategy 1: subject
//	strategy 2: scenario_subject
//	strategy 3: scenario
//	strategy 4: none
//
// Extra or missing segments never fail the parse; they only leave the
// corresponding Has* flags unset.
func ParseArtifactPath(p string) Artifact {
	segments := splitPath(p)

	var a Artifact
	if len(segments) == 0 {
		return a
	}
	a.FileName = segments[len(segments)-1]
	a.ParameterType = ParameterTypeFromFilename(a.FileName)
	if m, ok := ModelFromFilename(a.FileName); ok {
		a.Model = m
		a.HasModel = true
	}

	strategyIdx := -1
	for i, seg := range segments[:len(segments)-1] {
		if dt, ok := DataTypeFromSegment(seg); ok && !a.HasDataType {
			a.DataType = dt
			a.HasDataType = true
		}
		if c, ok := CategoryFromSegment(seg); ok && !a.HasCategory {
			a.Category = c
			a.HasCategory = true
		}
		if s, ok := StrategyFromSegment(seg); ok && !a.HasStrategy {
			a.Strategy = s
			a.HasStrategy = true
			strategyIdx = i
		}
	}
	if !a.HasStrategy {
		return a
	}

	// Segments strictly between the strategy folder and the filename.
	inner := segments[strategyIdx+1 : len(segments)-1]

	switch a.Strategy {
	case StrategySubjectScenarioSetting:
		if len(inner) > 0 {
			if sc, su, ok := SplitScenarioSubject(inner[0]); ok {
				a.Scenario, a.HasScenario = sc, true
				a.Subject, a.HasSubject = su, true
			}
		}
		if len(inner) > 1 {
			a.SensorSetting = TrimSensorSetting(inner[1])
			a.HasSensorSetting = true
		}
	case StrategySubject:
		if len(inner) > 0 {
			a.Subject, a.HasSubject = inner[0], true
		}
	case StrategySubjectScenario:
		if len(inner) > 0 {
			if sc, su, ok := SplitScenarioSubject(inner[0]); ok {
				a.Scenario, a.HasScenario = sc, true
				a.Subject, a.HasSubject = su, true
			}
		}
	case StrategyScenario:
		if len(inner) > 0 {
			a.Scenario, a.HasScenario = inner[0], true
		}
	case StrategyUniversal:
		// Universal parameters encode nothing beyond the strategy.
	}

	return a
}

// HasStrategyRequiredFields reports whether the artifact carries every
// field its strategy needs to resolve an owning parameter.
func (a Artifact) HasStrategyRequiredFields() bool {
	if !a.HasStrategy {
		return false
	}
	if a.Strategy.RequiresSubject() && !a.HasSubject {
		return false
	}
	if a.Strategy.RequiresScenario() && !a.HasScenario {
		return false
	}
	if a.Strategy.RequiresSensorSetting() && !a.HasSensorSetting {
		return false
	}
	return true
}

// HasSubjectScenarioFields is HasStrategyRequiredFields without the
// sensor-setting requirement. Graph files never encode a setting, so
// their resolution only needs the subject and scenario slots filled.
func (a Artifact) HasSubjectScenarioFields() bool {
	if !a.HasStrategy {
		return false
	}
	if a.Strategy.RequiresSubject() && !a.HasSubject {
		return false
	}
	if a.Strategy.RequiresScenario() && !a.HasScenario {
		return false
	}
	return true
}

func splitPath(p string) []string {
	p = filepath.ToSlash(path.Clean(filepath.ToSlash(p)))
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, seg := range parts {
		if seg != "" && seg != "." {
			out = append(out, seg)
		}
	}
	return out
}
