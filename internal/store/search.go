package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// SearchTests runs a parameterized multi-predicate search over tests.
// Every supplied predicate is applied; predicates combine with AND.
// Text predicates are substring matches against the stored value.
func (s *Store) SearchTests(q TestSearch) ([]Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString(testSelect)
	sb.WriteString(" WHERE 1=1")
	var args []any

	like := func(column, value string) {
		sb.WriteString(" AND " + column + " LIKE '%' || ? || '%'")
		args = append(args, value)
	}

	if q.Subject != "" {
		like("t.subject", q.Subject)
	}
	if q.SubjectID != "" {
		like("t.subject_id", q.SubjectID)
	}
	if q.Scenario != "" {
		like("e.scenario", q.Scenario)
	}
	if q.Date != "" {
		like("e.date", q.Date)
	}
	if q.Project != "" {
		like("e.project", q.Project)
	}
	if q.SensorID != "" {
		sb.WriteString(
			` AND EXISTS (SELECT 1 FROM sensors sn
			   WHERE sn.test_id = t.id AND sn.sensor_id LIKE '%' || ? || '%')`)
		args = append(args, q.SensorID)
	}
	sb.WriteString(" ORDER BY e.date DESC, t.external_id")

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, classify("search tests", err)
	}
	defer rows.Close()

	var tests []Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, classify("scan test", err)
		}
		tests = append(tests, *t)
	}
	return tests, rows.Err()
}

// GetTestPaths returns the filesystem view of a test: its manifest path,
// the experiment directory containing it, and every sensor file path.
func (s *Store) GetTestPaths(id int64) (*TestPaths, error) {
	t, err := s.GetTest(id)
	if err != nil {
		return nil, err
	}

	sensors, err := s.SensorsByTest(id)
	if err != nil {
		return nil, err
	}

	tp := &TestPaths{
		Test:           *t,
		MetadataPath:   t.FilePath,
		ExperimentPath: filepath.Dir(filepath.Dir(t.FilePath)),
	}
	for _, sn := range sensors {
		tp.SensorFiles = append(tp.SensorFiles, SensorFile{
			SensorID:     sn.SensorID,
			Type:         sn.Type,
			Position:     sn.Position,
			SampleRateHz: sn.SampleRateHz,
			FilePath:     sn.FilePath,
		})
	}
	return tp, nil
}

// SearchParameters runs a multi-predicate search over optimization
// parameters and hydrates each hit with its junction memberships,
// results and visualizations.
func (s *Store) SearchParameters(q ParameterSearch) ([]ParameterDetail, error) {
	ids, err := s.searchParameterIDs(q)
	if err != nil {
		return nil, err
	}

	details := make([]ParameterDetail, 0, len(ids))
	for _, id := range ids {
		d, err := s.GetParameter(id)
		if err != nil {
			return nil, err
		}
		details = append(details, *d)
	}
	return details, nil
}

func (s *Store) searchParameterIDs(q ParameterSearch) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString(
		`SELECT p.id FROM optimization_parameters p
		 JOIN optimization_strategies st ON st.id = p.strategy
		 WHERE 1=1`)
	var args []any

	if q.Strategy >= 0 {
		sb.WriteString(" AND p.strategy = ?")
		args = append(args, q.Strategy)
	}
	if q.ParameterType != "" {
		sb.WriteString(" AND p.parameter_type = ?")
		args = append(args, q.ParameterType)
	}
	if q.DataType != "" {
		sb.WriteString(" AND p.data_type = ?")
		args = append(args, q.DataType)
	}
	if q.SubjectID != "" {
		sb.WriteString(
			` AND EXISTS (SELECT 1 FROM parameter_subjects ps
			   WHERE ps.parameter_id = p.id AND ps.subject_id LIKE '%' || ? || '%')`)
		args = append(args, q.SubjectID)
	}
	if q.Subject != "" {
		// Subject display names live on test rows; bridge through the
		// subject id junction.
		sb.WriteString(
			` AND EXISTS (SELECT 1 FROM parameter_subjects ps
			   JOIN tests t ON t.subject_id = ps.subject_id
			   WHERE ps.parameter_id = p.id AND t.subject LIKE '%' || ? || '%')`)
		args = append(args, q.Subject)
	}
	if q.Scenario != "" {
		sb.WriteString(
			` AND EXISTS (SELECT 1 FROM parameter_scenarios pc
			   WHERE pc.parameter_id = p.id AND pc.scenario LIKE '%' || ? || '%')`)
		args = append(args, q.Scenario)
	}
	if q.SensorSetting != "" {
		sb.WriteString(
			` AND EXISTS (SELECT 1 FROM parameter_sensor_settings pt
			   WHERE pt.parameter_id = p.id AND pt.sensor_setting LIKE '%' || ? || '%')`)
		args = append(args, q.SensorSetting)
	}
	if q.Model != "" {
		sb.WriteString(
			` AND EXISTS (SELECT 1 FROM optimization_results r
			   WHERE r.parameter_id = p.id AND r.model LIKE '%' || ? || '%')`)
		args = append(args, q.Model)
	}
	sb.WriteString(" ORDER BY p.strategy, p.id")

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, classify("search parameters", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classify("scan parameter id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetParameter returns one parameter fully hydrated, or ErrNotFound.
func (s *Store) GetParameter(id int64) (*ParameterDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d ParameterDetail
	err := s.db.QueryRow(
		`SELECT p.id, p.strategy, st.name, p.parameter_type, p.data_type, p.file_path, p.file_name
		 FROM optimization_parameters p
		 JOIN optimization_strategies st ON st.id = p.strategy
		 WHERE p.id = ?`, id).Scan(
		&d.ID, &d.Strategy, &d.StrategyName, &d.ParameterType, &d.DataType, &d.FilePath, &d.FileName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("parameter %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, classify("get parameter", err)
	}

	if d.Subjects, err = s.junctionColumn(
		`SELECT subject_id FROM parameter_subjects WHERE parameter_id = ? ORDER BY subject_id`, id); err != nil {
		return nil, err
	}
	if d.Scenarios, err = s.junctionColumn(
		`SELECT scenario FROM parameter_scenarios WHERE parameter_id = ? ORDER BY scenario`, id); err != nil {
		return nil, err
	}
	if d.SensorSettings, err = s.junctionColumn(
		`SELECT sensor_setting FROM parameter_sensor_settings WHERE parameter_id = ? ORDER BY sensor_setting`, id); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, model, file_path, file_name FROM optimization_results
		 WHERE parameter_id = ? ORDER BY model`, id)
	if err != nil {
		return nil, classify("list results", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Model, &r.FilePath, &r.FileName); err != nil {
			return nil, classify("scan result", err)
		}
		d.Results = append(d.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list results", err)
	}

	vrows, err := s.db.Query(
		`SELECT id, kind, model, file_path, file_name FROM optimization_visualizations
		 WHERE parameter_id = ? ORDER BY kind, model`, id)
	if err != nil {
		return nil, classify("list visualizations", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var v Visualization
		if err := vrows.Scan(&v.ID, &v.Kind, &v.Model, &v.FilePath, &v.FileName); err != nil {
			return nil, classify("scan visualization", err)
		}
		d.Visualizations = append(d.Visualizations, v)
	}
	if err := vrows.Err(); err != nil {
		return nil, classify("list visualizations", err)
	}

	return &d, nil
}

// junctionColumn reads a single-column membership list while the caller
// already holds the read lock.
func (s *Store) junctionColumn(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, classify("query junction", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, classify("scan junction", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
