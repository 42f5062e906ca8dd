package store

const schema = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS experiments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL,
	scenario TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(project, external_id, date, scenario)
);

-- file_path is the NFC-normalized manifest path and the stable identity
-- key: reprocessing a path always deletes the prior row first.
CREATE TABLE IF NOT EXISTS tests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id INTEGER NOT NULL,
	external_id TEXT NOT NULL,
	sequence INTEGER NOT NULL DEFAULT 1,
	subject TEXT NOT NULL DEFAULT '',
	subject_id TEXT NOT NULL DEFAULT '',
	duration_sec REAL NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL UNIQUE,
	sensor_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE TABLE IF NOT EXISTS sensors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	test_id INTEGER NOT NULL,
	sensor_id TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'imu',
	position TEXT NOT NULL DEFAULT '',
	sequence INTEGER NOT NULL DEFAULT 0,
	sample_rate_hz REAL NOT NULL DEFAULT 0,
	file_name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (test_id) REFERENCES tests(id),
	UNIQUE(test_id, sensor_id)
);

-- Append-only by design: the owning test row is deleted and recreated on
-- every reindex, which removes stale quality rows with it.
CREATE TABLE IF NOT EXISTS data_quality (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	test_id INTEGER NOT NULL,
	completeness REAL NOT NULL DEFAULT 0,
	anomalies INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (test_id) REFERENCES tests(id)
);

-- Static lookup, seeded once. The requirement flags drive parameter
-- resolution for results and visualizations.
CREATE TABLE IF NOT EXISTS optimization_strategies (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	requires_subject INTEGER NOT NULL,
	requires_scenario INTEGER NOT NULL,
	requires_sensor_setting INTEGER NOT NULL,
	description TEXT NOT NULL
);

-- Static lookup, seeded once.
CREATE TABLE IF NOT EXISTS sensor_settings (
	code TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	components TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS optimization_parameters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy INTEGER NOT NULL,
	parameter_type TEXT NOT NULL,
	data_type TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_name TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (strategy) REFERENCES optimization_strategies(id),
	UNIQUE(strategy, parameter_type, data_type, file_path)
);

CREATE TABLE IF NOT EXISTS parameter_subjects (
	parameter_id INTEGER NOT NULL,
	subject_id TEXT NOT NULL,
	PRIMARY KEY (parameter_id, subject_id),
	FOREIGN KEY (parameter_id) REFERENCES optimization_parameters(id)
);

CREATE TABLE IF NOT EXISTS parameter_scenarios (
	parameter_id INTEGER NOT NULL,
	scenario TEXT NOT NULL,
	PRIMARY KEY (parameter_id, scenario),
	FOREIGN KEY (parameter_id) REFERENCES optimization_parameters(id)
);

CREATE TABLE IF NOT EXISTS parameter_sensor_settings (
	parameter_id INTEGER NOT NULL,
	sensor_setting TEXT NOT NULL,
	PRIMARY KEY (parameter_id, sensor_setting),
	FOREIGN KEY (parameter_id) REFERENCES optimization_parameters(id)
);

CREATE TABLE IF NOT EXISTS optimization_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	parameter_id INTEGER NOT NULL,
	model TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_name TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (parameter_id) REFERENCES optimization_parameters(id),
	UNIQUE(parameter_id, model)
);

CREATE TABLE IF NOT EXISTS optimization_visualizations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	parameter_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL,
	file_name TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (parameter_id) REFERENCES optimization_parameters(id),
	UNIQUE(parameter_id, kind, model)
);

CREATE INDEX IF NOT EXISTS idx_tests_subject_id ON tests(subject_id);
CREATE INDEX IF NOT EXISTS idx_sensors_test ON sensors(test_id);
CREATE INDEX IF NOT EXISTS idx_results_parameter ON optimization_results(parameter_id);
CREATE INDEX IF NOT EXISTS idx_visualizations_parameter ON optimization_visualizations(parameter_id);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// strategySeed mirrors the five fixed aggregation granularities. The
// table is effectively a compile-time constant persisted for joinability.
type strategySeed struct {
	id                     int
	name                   string
	subject, scenario, set bool
	description            string
}

var strategySeeds = []strategySeed{
	{0, "per_subject_scenario_setting", true, true, true,
		"one parameter per subject, scenario and sensor setting"},
	{1, "per_subject", true, false, false,
		"one parameter per subject across all scenarios"},
	{2, "per_subject_scenario", true, true, false,
		"one parameter per subject and scenario"},
	{3, "per_scenario", false, true, false,
		"one parameter per scenario across all subjects"},
	{4, "universal", false, false, false,
		"a single parameter across all subjects and scenarios"},
}

type sensorSettingSeed struct {
	code        string
	description string
	components  string
}

var sensorSettingSeeds = []sensorSettingSeed{
	{"H-IMU_VV", "head IMU with visual vertical cue", "head_imu,visual_vertical"},
	{"H-IMU_N-VV", "head IMU without visual vertical cue", "head_imu"},
	{"C-IMU_VV", "console IMU with visual vertical cue", "console_imu,visual_vertical"},
	{"C-IMU_N-VV", "console IMU without visual vertical cue", "console_imu"},
	{"HR-IMU_VV", "headrest IMU with visual vertical cue", "headrest_imu,visual_vertical"},
	{"HR-IMU_N-VV", "headrest IMU without visual vertical cue", "headrest_imu"},
}
