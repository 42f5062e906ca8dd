package store

import (
	"database/sql"
	"errors"
	"log/slog"
	"strings"
)

// UpsertParameter inserts or refreshes an optimization parameter keyed by
// (strategy, parameter type, data type, file path) and rebuilds all three
// junction tables from the supplied memberships. The rebuild is a full
// replace: a file's metadata is trusted fresh from its current path and
// never merged with stale junction rows.
func (s *Store) UpsertParameter(key ParameterKey, fileName string, m Memberships) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, classify("begin upsert parameter", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRow(
		`SELECT id FROM optimization_parameters
		 WHERE strategy = ? AND parameter_type = ? AND data_type = ? AND file_path = ?`,
		key.Strategy, key.ParameterType, key.DataType, key.FilePath).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.Exec(
			`INSERT INTO optimization_parameters
			 (strategy, parameter_type, data_type, file_path, file_name)
			 VALUES (?, ?, ?, ?, ?)`,
			key.Strategy, key.ParameterType, key.DataType, key.FilePath, fileName)
		if err != nil {
			return 0, classify("insert parameter", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, classify("parameter id", err)
		}
	case err != nil:
		return 0, classify("lookup parameter", err)
	default:
		if _, err := tx.Exec(
			`UPDATE optimization_parameters SET file_name = ? WHERE id = ?`, fileName, id); err != nil {
			return 0, classify("update parameter", err)
		}
	}

	for _, table := range []string{"parameter_subjects", "parameter_scenarios", "parameter_sensor_settings"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE parameter_id = ?`, id); err != nil {
			return 0, classify("clear "+table, err)
		}
	}
	for _, subject := range dedupe(m.Subjects) {
		if _, err := tx.Exec(
			`INSERT INTO parameter_subjects (parameter_id, subject_id) VALUES (?, ?)`, id, subject); err != nil {
			return 0, classify("insert parameter subject", err)
		}
	}
	for _, scenario := range dedupe(m.Scenarios) {
		if _, err := tx.Exec(
			`INSERT INTO parameter_scenarios (parameter_id, scenario) VALUES (?, ?)`, id, scenario); err != nil {
			return 0, classify("insert parameter scenario", err)
		}
	}
	for _, setting := range dedupe(m.SensorSettings) {
		if _, err := tx.Exec(
			`INSERT INTO parameter_sensor_settings (parameter_id, sensor_setting) VALUES (?, ?)`, id, setting); err != nil {
			return 0, classify("insert parameter sensor setting", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("commit upsert parameter", err)
	}
	return id, nil
}

// ResolveParameter finds the owning parameter for a result or
// visualization file. The query filters by strategy, parameter type and
// data type, then narrows by EXISTS subqueries against the junction
// tables using only the non-empty predicates. Ordering by id makes the
// first-inserted parameter win deterministically when more than one
// candidate matches.
func (s *Store) ResolveParameter(q ResolveQuery) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString(
		`SELECT p.id FROM optimization_parameters p
		 JOIN optimization_strategies st ON st.id = p.strategy
		 WHERE p.strategy = ? AND p.parameter_type = ? AND p.data_type = ?`)
	args := []any{q.Strategy, q.ParameterType, q.DataType}

	if q.SubjectID != "" {
		sb.WriteString(
			` AND EXISTS (SELECT 1 FROM parameter_subjects ps
			   WHERE ps.parameter_id = p.id AND ps.subject_id = ?)`)
		args = append(args, q.SubjectID)
	}
	if q.Scenario != "" {
		sb.WriteString(
			` AND EXISTS (SELECT 1 FROM parameter_scenarios pc
			   WHERE pc.parameter_id = p.id AND pc.scenario = ?)`)
		args = append(args, q.Scenario)
	}
	if q.SensorSetting != "" {
		sb.WriteString(
			` AND EXISTS (SELECT 1 FROM parameter_sensor_settings pt
			   WHERE pt.parameter_id = p.id AND pt.sensor_setting = ?)`)
		args = append(args, q.SensorSetting)
	}
	sb.WriteString(` ORDER BY p.id LIMIT 2`)

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return 0, false, classify("resolve parameter", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, false, classify("scan parameter id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, false, classify("resolve parameter", err)
	}

	switch len(ids) {
	case 0:
		return 0, false, nil
	case 1:
		return ids[0], true, nil
	default:
		slog.Debug("ambiguous parameter resolution, taking first-inserted",
			slog.Int("strategy", q.Strategy),
			slog.String("parameter_type", q.ParameterType),
			slog.String("data_type", q.DataType),
			slog.Int64("chosen", ids[0]))
		return ids[0], true, nil
	}
}

// UpsertResult inserts or refreshes a result keyed by (parameter, model).
func (s *Store) UpsertResult(parameterID int64, model, filePath, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO optimization_results (parameter_id, model, file_path, file_name)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(parameter_id, model) DO UPDATE SET
		   file_path = excluded.file_path,
		   file_name = excluded.file_name`,
		parameterID, model, filePath, fileName)
	if err != nil {
		return classify("upsert result", err)
	}
	return nil
}

// UpsertVisualization inserts or refreshes a visualization keyed by
// (parameter, kind, model). Model is empty for comparison graphs.
func (s *Store) UpsertVisualization(parameterID int64, kind, model, filePath, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO optimization_visualizations (parameter_id, kind, model, file_path, file_name)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(parameter_id, kind, model) DO UPDATE SET
		   file_path = excluded.file_path,
		   file_name = excluded.file_name`,
		parameterID, kind, model, filePath, fileName)
	if err != nil {
		return classify("upsert visualization", err)
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
