package store

// Experiment is one row of the experiments table.
type Experiment struct {
	ID          int64  `json:"id"`
	Project     string `json:"project"`
	ExternalID  string `json:"external_id"`
	Date        string `json:"date"`
	Scenario    string `json:"scenario"`
	Description string `json:"description"`
}

// Test is one row of the tests table joined with its experiment fields
// for the denormalized search responses.
type Test struct {
	ID          int64   `json:"id"`
	TestID      string  `json:"test_id"`
	Sequence    int     `json:"sequence"`
	Subject     string  `json:"subject"`
	SubjectID   string  `json:"subject_id"`
	DurationSec float64 `json:"duration_sec"`
	Notes       string  `json:"notes,omitempty"`
	FilePath    string  `json:"file_path"`
	SensorCount int     `json:"sensor_count"`
	Project     string  `json:"project"`
	Date        string  `json:"date"`
	Scenario    string  `json:"scenario"`
}

// Sensor is one row of the sensors table.
type Sensor struct {
	ID           int64   `json:"id"`
	TestID       int64   `json:"test_id"`
	SensorID     string  `json:"sensor_id"`
	Type         string  `json:"sensor_type"`
	Position     string  `json:"position"`
	Sequence     int     `json:"sequence"`
	SampleRateHz float64 `json:"sample_rate_hz"`
	FileName     string  `json:"file_name"`
	FilePath     string  `json:"file_path"`
}

// DataQuality is one row of the data_quality table.
type DataQuality struct {
	Completeness float64 `json:"completeness"`
	Anomalies    int     `json:"anomalies"`
	Notes        string  `json:"notes"`
}

// Parameter is one row of optimization_parameters.
type Parameter struct {
	ID            int64  `json:"id"`
	Strategy      int    `json:"strategy"`
	StrategyName  string `json:"strategy_name"`
	ParameterType string `json:"parameter_type"`
	DataType      string `json:"data_type"`
	FilePath      string `json:"file_path"`
	FileName      string `json:"file_name"`
}

// Result is one row of optimization_results.
type Result struct {
	ID       int64  `json:"id"`
	Model    string `json:"model"`
	FilePath string `json:"file_path"`
	FileName string `json:"file_name"`
}

// Visualization is one row of optimization_visualizations.
type Visualization struct {
	ID       int64  `json:"id"`
	Kind     string `json:"kind"`
	Model    string `json:"model,omitempty"`
	FilePath string `json:"file_path"`
	FileName string `json:"file_name"`
}

// ParameterDetail is a parameter hydrated with its junction memberships
// and owned artifacts. This denormalization-on-read keeps the client
// contract to one call per parameter.
type ParameterDetail struct {
	Parameter
	Subjects       []string        `json:"subjects"`
	Scenarios      []string        `json:"scenarios"`
	SensorSettings []string        `json:"sensor_settings"`
	Results        []Result        `json:"results"`
	Visualizations []Visualization `json:"visualizations"`
}

// ParameterKey is the natural identity of a parameter file.
type ParameterKey struct {
	Strategy      int
	ParameterType string
	DataType      string
	FilePath      string
}

// Memberships is the full junction-table membership for a parameter.
// Rebuilt wholesale on every upsert, never merged.
type Memberships struct {
	Subjects       []string
	Scenarios      []string
	SensorSettings []string
}

// ResolveQuery narrows parameter resolution for a result or
// visualization file. Empty predicate strings are not applied.
type ResolveQuery struct {
	Strategy      int
	ParameterType string
	DataType      string
	SubjectID     string
	Scenario      string
	SensorSetting string
}

// TestSearch holds the optional predicates for SearchTests. All supplied
// predicates combine conjunctively.
type TestSearch struct {
	Subject   string
	SubjectID string
	SensorID  string
	Scenario  string
	Date      string
	Project   string
}

// ParameterSearch holds the optional predicates for SearchParameters.
// Strategy is -1 when unset.
type ParameterSearch struct {
	Strategy      int
	ParameterType string
	DataType      string
	SubjectID     string
	Subject       string
	Scenario      string
	SensorSetting string
	Model         string
}

// TestPaths is the filesystem view of a test used by the paths endpoint.
type TestPaths struct {
	Test
	ExperimentPath string       `json:"experiment_path"`
	MetadataPath   string       `json:"metadata_path"`
	SensorFiles    []SensorFile `json:"sensor_files"`
}

// SensorFile is one sensor's file location within TestPaths.
type SensorFile struct {
	SensorID     string  `json:"sensor_id"`
	Type         string  `json:"sensor_type"`
	Position     string  `json:"position"`
	SampleRateHz float64 `json:"sample_rate_hz"`
	FilePath     string  `json:"file_path"`
}
