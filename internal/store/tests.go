package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by id lookups for unknown rows.
var ErrNotFound = errors.New("not found")

// ManifestPaths returns every manifest path currently referenced by a
// test row. Used by the manifest pipeline to detect deletions.
func (s *Store) ManifestPaths() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT file_path FROM tests`)
	if err != nil {
		return nil, classify("list manifest paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, classify("scan manifest path", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// FindOrCreateExperiment looks up an experiment by its natural key,
// inserting it when absent. Experiments are never mutated in place.
func (s *Store) FindOrCreateExperiment(e Experiment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM experiments
		 WHERE project = ? AND external_id = ? AND date = ? AND scenario = ?`,
		e.Project, e.ExternalID, e.Date, e.Scenario).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, classify("lookup experiment", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO experiments (project, external_id, date, scenario, description)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Project, e.ExternalID, e.Date, e.Scenario, e.Description)
	if err != nil {
		return 0, classify("insert experiment", err)
	}
	return res.LastInsertId()
}

// ReplaceTest deletes any prior test row (and its sensors and quality
// rows) keyed by the manifest path, then inserts the new row. The
// delete-then-insert makes indexing idempotent per file: quality rows
// die with the test they describe, so each re-index leaves exactly one
// fresh quality row per test rather than an append-only history.
func (s *Store) ReplaceTest(experimentID int64, t Test) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, classify("begin replace test", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prior int64
	err = tx.QueryRow(`SELECT id FROM tests WHERE file_path = ?`, t.FilePath).Scan(&prior)
	switch {
	case err == nil:
		for _, q := range []string{
			`DELETE FROM data_quality WHERE test_id = ?`,
			`DELETE FROM sensors WHERE test_id = ?`,
			`DELETE FROM tests WHERE id = ?`,
		} {
			if _, err := tx.Exec(q, prior); err != nil {
				return 0, classify("delete prior test", err)
			}
		}
	case !errors.Is(err, sql.ErrNoRows):
		return 0, classify("lookup prior test", err)
	}

	res, err := tx.Exec(
		`INSERT INTO tests
		 (experiment_id, external_id, sequence, subject, subject_id, duration_sec, notes, file_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		experimentID, t.TestID, t.Sequence, t.Subject, t.SubjectID,
		t.DurationSec, t.Notes, t.FilePath)
	if err != nil {
		return 0, classify("insert test", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, classify("test id", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify("commit replace test", err)
	}
	return id, nil
}

// UpsertSensor inserts or updates a sensor identified by (test, sensor
// id) and refreshes the parent's derived sensor count.
func (s *Store) UpsertSensor(testID int64, sensor Sensor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO sensors
		 (test_id, sensor_id, type, position, sequence, sample_rate_hz, file_name, file_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(test_id, sensor_id) DO UPDATE SET
		   type = excluded.type,
		   position = excluded.position,
		   sequence = excluded.sequence,
		   sample_rate_hz = excluded.sample_rate_hz,
		   file_name = excluded.file_name,
		   file_path = excluded.file_path`,
		testID, sensor.SensorID, sensor.Type, sensor.Position,
		sensor.Sequence, sensor.SampleRateHz, sensor.FileName, sensor.FilePath)
	if err != nil {
		return classify("upsert sensor", err)
	}

	_, err = s.db.Exec(
		`UPDATE tests
		 SET sensor_count = (SELECT COUNT(*) FROM sensors WHERE test_id = ?)
		 WHERE id = ?`, testID, testID)
	if err != nil {
		return classify("update sensor count", err)
	}
	return nil
}

// AppendDataQuality appends one quality row for the test. Append-only:
// the delete in ReplaceTest is what bounds growth.
func (s *Store) AppendDataQuality(testID int64, q DataQuality) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO data_quality (test_id, completeness, anomalies, notes)
		 VALUES (?, ?, ?, ?)`,
		testID, q.Completeness, q.Anomalies, q.Notes)
	if err != nil {
		return classify("append data quality", err)
	}
	return nil
}

// SubjectIDForToken finds the subject id of a test whose external id
// contains the token. Backs the normalizer's reverse-lookup fallback.
func (s *Store) SubjectIDForToken(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subjectID string
	err := s.db.QueryRow(
		`SELECT subject_id FROM tests
		 WHERE external_id LIKE '%' || ? || '%' AND subject_id != ''
		 ORDER BY id LIMIT 1`, token).Scan(&subjectID)
	if err != nil {
		return "", false
	}
	return subjectID, true
}

// SubjectScenario is one distinct (subject, experiment scenario) pair
// observed across indexed tests.
type SubjectScenario struct {
	SubjectID string
	Scenario  string
}

// SubjectScenarioPairs returns every distinct (subject id, experiment
// scenario) pair known to the store. The indexer derives the
// strategy-dependent junction fan-outs from these pairs, normalizing
// scenario codes on its side.
func (s *Store) SubjectScenarioPairs() ([]SubjectScenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT DISTINCT t.subject_id, e.scenario FROM tests t
		 JOIN experiments e ON e.id = t.experiment_id
		 WHERE t.subject_id != ''
		 ORDER BY t.subject_id, e.scenario`)
	if err != nil {
		return nil, classify("list subject scenario pairs", err)
	}
	defer rows.Close()

	var pairs []SubjectScenario
	for rows.Next() {
		var p SubjectScenario
		if err := rows.Scan(&p.SubjectID, &p.Scenario); err != nil {
			return nil, classify("scan subject scenario pair", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// GetTest returns one test joined with its experiment, or ErrNotFound.
func (s *Store) GetTest(id int64) (*Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := scanTest(s.db.QueryRow(testSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("test %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, classify("get test", err)
	}
	return t, nil
}

// SensorsByTest returns the sensors of a test ordered by sensor id.
func (s *Store) SensorsByTest(testID int64) ([]Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, test_id, sensor_id, type, position, sequence, sample_rate_hz, file_name, file_path
		 FROM sensors WHERE test_id = ? ORDER BY sensor_id`, testID)
	if err != nil {
		return nil, classify("list sensors", err)
	}
	defer rows.Close()

	var sensors []Sensor
	for rows.Next() {
		var sn Sensor
		if err := rows.Scan(&sn.ID, &sn.TestID, &sn.SensorID, &sn.Type, &sn.Position,
			&sn.Sequence, &sn.SampleRateHz, &sn.FileName, &sn.FilePath); err != nil {
			return nil, classify("scan sensor", err)
		}
		sensors = append(sensors, sn)
	}
	return sensors, rows.Err()
}

const testSelect = `
	SELECT t.id, t.external_id, t.sequence, t.subject, t.subject_id,
	       t.duration_sec, t.notes, t.file_path, t.sensor_count,
	       e.project, e.date, e.scenario
	FROM tests t
	JOIN experiments e ON e.id = t.experiment_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row rowScanner) (*Test, error) {
	var t Test
	err := row.Scan(&t.ID, &t.TestID, &t.Sequence, &t.Subject, &t.SubjectID,
		&t.DurationSec, &t.Notes, &t.FilePath, &t.SensorCount,
		&t.Project, &t.Date, &t.Scenario)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
