// Package manifest decodes per-test metadata.json files. Two schema
// generations exist on disk; both are decoded at this single boundary
// into one tagged record so the rest of the system never does key
// presence checks.
package manifest

import (
	"encoding/json"
	"fmt"
)

// FileName is the fixed manifest filename written next to each test's
// sensor CSVs.
const FileName = "metadata.json"

// Format tags which schema generation a manifest uses.
type Format int

const (
	// FormatOld is the original schema: {experiment{date, scenario,
	// test_name}, sensors[{id, file, position}]}.
	FormatOld Format = iota
	// FormatNew is the current schema with top-level project and test
	// keys, sensor metadata, and a data_quality block.
	FormatNew
)

// String returns the tag used in logs.
func (f Format) String() string {
	if f == FormatNew {
		return "new"
	}
	return "old"
}

// Experiment is the experiment block shared by both formats after
// decoding. ExternalID and Project are empty for the old format.
type Experiment struct {
	Project     string
	ExternalID  string
	Date        string
	Scenario    string
	Description string
}

// Test is the test block. For the old format only ExternalID (the legacy
// test_name) is populated and Sequence defaults to 1.
type Test struct {
	ExternalID  string
	Sequence    int
	Subject     string
	SubjectID   string
	DurationSec float64
	Notes       string
}

// Sensor describes one sensor CSV referenced by the manifest. File is
// relative to the manifest's directory.
type Sensor struct {
	ID           string
	File         string
	Type         string
	Position     string
	Sequence     int
	SampleRateHz float64
}

// DataQuality is the quality block; zero-valued for the old format.
type DataQuality struct {
	Completeness float64
	Anomalies    int
	Notes        string
}

// Manifest is the decoded, format-tagged record.
type Manifest struct {
	Format      Format
	Experiment  Experiment
	Test        Test
	Sensors     []Sensor
	DataQuality DataQuality
}

// Raw wire shapes. The new format is detected by the presence of the
// top-level project and test keys.
type rawManifest struct {
	Project    *string           `json:"project"`
	Experiment rawExperiment     `json:"experiment"`
	Test       *rawTest          `json:"test"`
	Sensors    []json.RawMessage `json:"sensors"`
	Quality    *rawQuality       `json:"data_quality"`
}

type rawExperiment struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Scenario    string `json:"scenario"`
	Description string `json:"description"`
	TestName    string `json:"test_name"`
}

type rawTest struct {
	ID          string  `json:"id"`
	Sequence    int     `json:"sequence"`
	Subject     string  `json:"subject"`
	SubjectID   string  `json:"subject_id"`
	DurationSec float64 `json:"duration_sec"`
	Notes       string  `json:"notes"`
}

type rawNewSensor struct {
	File         string  `json:"file"`
	Type         string  `json:"type"`
	Position     string  `json:"position"`
	Sequence     int     `json:"sequence"`
	SampleRateHz float64 `json:"sample_rate_hz"`
}

type rawOldSensor struct {
	ID       string `json:"id"`
	File     string `json:"file"`
	Position string `json:"position"`
}

type rawQuality struct {
	Completeness float64 `json:"completeness"`
	Anomalies    int     `json:"anomalies"`
	Notes        string  `json:"notes"`
}

// Decode parses manifest bytes and validates the keys the indexer cannot
// work without. A malformed manifest is a per-file error; callers log it
// and continue with the remaining files.
func Decode(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if raw.Project != nil && raw.Test != nil {
		return decodeNew(raw)
	}
	return decodeOld(raw)
}

func decodeNew(raw rawManifest) (*Manifest, error) {
	if raw.Experiment.Date == "" {
		return nil, fmt.Errorf("new-format manifest missing experiment.date")
	}
	if raw.Experiment.Scenario == "" {
		return nil, fmt.Errorf("new-format manifest missing experiment.scenario")
	}
	if raw.Test.ID == "" {
		return nil, fmt.Errorf("new-format manifest missing test.id")
	}

	m := &Manifest{
		Format: FormatNew,
		Experiment: Experiment{
			Project:     *raw.Project,
			ExternalID:  raw.Experiment.ID,
			Date:        raw.Experiment.Date,
			Scenario:    raw.Experiment.Scenario,
			Description: raw.Experiment.Description,
		},
		Test: Test{
			ExternalID:  raw.Test.ID,
			Sequence:    raw.Test.Sequence,
			Subject:     raw.Test.Subject,
			SubjectID:   raw.Test.SubjectID,
			DurationSec: raw.Test.DurationSec,
			Notes:       raw.Test.Notes,
		},
	}
	if raw.Quality != nil {
		m.DataQuality = DataQuality(*raw.Quality)
	}

	for i, rs := range raw.Sensors {
		var s rawNewSensor
		if err := json.Unmarshal(rs, &s); err != nil {
			return nil, fmt.Errorf("decode sensor %d: %w", i, err)
		}
		if s.File == "" {
			return nil, fmt.Errorf("sensor %d missing file", i)
		}
		m.Sensors = append(m.Sensors, Sensor{
			ID:           sensorIDFromFile(s.File),
			File:         s.File,
			Type:         s.Type,
			Position:     s.Position,
			Sequence:     s.Sequence,
			SampleRateHz: s.SampleRateHz,
		})
	}
	return m, nil
}

func decodeOld(raw rawManifest) (*Manifest, error) {
	if raw.Experiment.Date == "" {
		return nil, fmt.Errorf("old-format manifest missing experiment.date")
	}
	if raw.Experiment.Scenario == "" {
		return nil, fmt.Errorf("old-format manifest missing experiment.scenario")
	}
	if raw.Experiment.TestName == "" {
		return nil, fmt.Errorf("old-format manifest missing experiment.test_name")
	}

	m := &Manifest{
		Format: FormatOld,
		Experiment: Experiment{
			Date:     raw.Experiment.Date,
			Scenario: raw.Experiment.Scenario,
		},
		Test: Test{
			ExternalID: raw.Experiment.TestName,
			Sequence:   1,
		},
	}

	for i, rs := range raw.Sensors {
		var s rawOldSensor
		if err := json.Unmarshal(rs, &s); err != nil {
			return nil, fmt.Errorf("decode sensor %d: %w", i, err)
		}
		if s.File == "" {
			return nil, fmt.Errorf("sensor %d missing file", i)
		}
		id := s.ID
		if id == "" {
			id = sensorIDFromFile(s.File)
		}
		m.Sensors = append(m.Sensors, Sensor{
			ID:       id,
			File:     s.File,
			Type:     "imu",
			Position: s.Position,
		})
	}
	return m, nil
}

// sensorIDFromFile derives a sensor identifier from a CSV filename,
// e.g. "imu_console_001.csv" -> "imu_console_001".
func sensorIDFromFile(file string) string {
	const ext = ".csv"
	if len(file) > len(ext) && file[len(file)-len(ext):] == ext {
		return file[:len(file)-len(ext)]
	}
	return file
}
