// Package parse interprets directory and file names from the experiment
// recording trees. All functions are pure: they take a name or path string
// and return structured attributes, never touching the filesystem.
package parse

// Strategy identifies one of the five optimization aggregation
// granularities over {subject, scenario, sensor setting}.
type Strategy int

const (
	// StrategySubjectScenarioSetting requires subject, scenario and
	// sensor setting (strategy 0).
	StrategySubjectScenarioSetting Strategy = iota
	// StrategySubject requires subject only (strategy 1).
	StrategySubject
	// StrategySubjectScenario requires subject and scenario (strategy 2).
	StrategySubjectScenario
	// StrategyScenario requires scenario only (strategy 3).
	StrategyScenario
	// StrategyUniversal requires nothing (strategy 4).
	StrategyUniversal
)

// String returns the numeric form used in folder names and the store.
func (s Strategy) String() string {
	switch s {
	case StrategySubjectScenarioSetting:
		return "strategy0"
	case StrategySubject:
		return "strategy1"
	case StrategySubjectScenario:
		return "strategy2"
	case StrategyScenario:
		return "strategy3"
	case StrategyUniversal:
		return "universal"
	default:
		return "unknown"
	}
}

// RequiresSubject reports whether a parameter of this strategy must carry
// a subject parsed from its path.
func (s Strategy) RequiresSubject() bool {
	switch s {
	case StrategySubjectScenarioSetting, StrategySubject, StrategySubjectScenario:
		return true
	default:
		return false
	}
}

// RequiresScenario reports whether a parameter of this strategy must carry
// a scenario parsed from its path.
func (s Strategy) RequiresScenario() bool {
	switch s {
	case StrategySubjectScenarioSetting, StrategySubjectScenario, StrategyScenario:
		return true
	default:
		return false
	}
}

// RequiresSensorSetting reports whether a parameter of this strategy must
// carry a sensor setting parsed from its path.
func (s Strategy) RequiresSensorSetting() bool {
	return s == StrategySubjectScenarioSetting
}

// ParameterType distinguishes the full optimization from the reduced
// three-parameter variant.
type ParameterType string

const (
	ParameterFullOpt  ParameterType = "fullopt"
	ParameterThreeOpt ParameterType = "3opt"
)

// DataType identifies which recording condition a parameter file was
// optimized against.
type DataType string

const (
	DataDriving     DataType = "driving"
	DataDrivingRest DataType = "driving+rest"
)

// Folder returns the on-disk folder name for the data type.
func (d DataType) Folder() string {
	if d == DataDrivingRest {
		return "Driving+Rest"
	}
	return "Driving"
}

// Model is one of the fixed model names encoded in result and
// visualization filenames.
type Model string

const (
	ModelSVM          Model = "svm"
	ModelRandomForest Model = "random_forest"
	ModelXGBoost      Model = "xgboost"
	ModelLightGBM     Model = "lightgbm"
	ModelMLP          Model = "mlp"
	ModelLSTM         Model = "lstm"
	ModelTransformer  Model = "transformer"
)

// Models lists every recognized model name, longest token first so that
// substring matching prefers the most specific name.
var Models = []Model{
	ModelRandomForest,
	ModelTransformer,
	ModelLightGBM,
	ModelXGBoost,
	ModelLSTM,
	ModelMLP,
	ModelSVM,
}

// VisualizationKind classifies a graph file.
type VisualizationKind string

const (
	// KindModelSpecific is a per-model visualization.
	KindModelSpecific VisualizationKind = "model-specific"
	// KindComparison is a cross-model comparison visualization, used when
	// no recognized model name appears in the filename.
	KindComparison VisualizationKind = "comparison"
)

// Category identifies which optimization subtree a file came from.
type Category string

const (
	CategoryParameter     Category = "Parameter"
	CategoryResults       Category = "Results"
	CategoryVisualization Category = "Graph"
)
