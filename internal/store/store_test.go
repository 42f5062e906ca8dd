package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/imudex/imudex/internal/errors"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTest(t *testing.T, s *Store, project, date, scenario, testID, subject, subjectID, path string) int64 {
	t.Helper()
	expID, err := s.FindOrCreateExperiment(Experiment{
		Project:    project,
		ExternalID: "exp_" + scenario,
		Date:       date,
		Scenario:   scenario,
	})
	require.NoError(t, err)
	id, err := s.ReplaceTest(expID, Test{
		TestID:    testID,
		Sequence:  1,
		Subject:   subject,
		SubjectID: subjectID,
		FilePath:  path,
	})
	require.NoError(t, err)
	return id
}

func TestOpen_SeedsLookupTables(t *testing.T) {
	s := newStore(t)

	var strategies, settings int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM optimization_strategies`).Scan(&strategies))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM sensor_settings`).Scan(&settings))

	assert.Equal(t, 5, strategies)
	assert.Greater(t, settings, 0)
}

func TestFindOrCreateExperiment_Idempotent(t *testing.T) {
	s := newStore(t)
	e := Experiment{Project: "hmg", ExternalID: "exp_slc", Date: "2025-08-04", Scenario: "slc"}

	first, err := s.FindOrCreateExperiment(e)
	require.NoError(t, err)
	second, err := s.FindOrCreateExperiment(e)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestReplaceTest_ReplacesByManifestPath(t *testing.T) {
	s := newStore(t)
	id := seedTest(t, s, "hmg", "2025-08-04", "slc", "test_01", "Alice", "sub_001", "/data/a/metadata.json")
	require.NoError(t, s.UpsertSensor(id, Sensor{SensorID: "imu_console", FilePath: "/data/a/imu_console.csv"}))
	require.NoError(t, s.AppendDataQuality(id, DataQuality{Completeness: 0.9}))

	replaced := seedTest(t, s, "hmg", "2025-08-04", "slc", "test_01", "Alice", "sub_001", "/data/a/metadata.json")

	got, err := s.GetTest(replaced)
	require.NoError(t, err)
	// Sensors and quality rows of the prior row are gone with it.
	assert.Equal(t, 0, got.SensorCount)
	sensors, err := s.SensorsByTest(replaced)
	require.NoError(t, err)
	assert.Empty(t, sensors)

	_, err = s.GetTest(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceTest_OneQualityRowPerReindex(t *testing.T) {
	s := newStore(t)
	path := "/data/a/metadata.json"

	// Three rounds of the same manifest: replace, then append quality.
	for i := 0; i < 3; i++ {
		id := seedTest(t, s, "hmg", "2025-08-04", "slc", "test_01", "Alice", "sub_001", path)
		require.NoError(t, s.AppendDataQuality(id, DataQuality{Completeness: 0.9}))
	}

	var rows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM data_quality`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestUpsertSensor_MaintainsSensorCount(t *testing.T) {
	s := newStore(t)
	id := seedTest(t, s, "hmg", "2025-08-04", "slc", "test_01", "Alice", "sub_001", "/data/a/metadata.json")

	require.NoError(t, s.UpsertSensor(id, Sensor{SensorID: "imu_console", Position: "console"}))
	require.NoError(t, s.UpsertSensor(id, Sensor{SensorID: "imu_head", Position: "head"}))
	// Same sensor id updates in place.
	require.NoError(t, s.UpsertSensor(id, Sensor{SensorID: "imu_head", Position: "headrest"}))

	got, err := s.GetTest(id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SensorCount)

	sensors, err := s.SensorsByTest(id)
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, "imu_console", sensors[0].SensorID)
	assert.Equal(t, "headrest", sensors[1].Position)
}

func TestGetTest_UnknownID(t *testing.T) {
	s := newStore(t)
	_, err := s.GetTest(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubjectIDForToken(t *testing.T) {
	s := newStore(t)
	seedTest(t, s, "hmg", "2025-08-04", "slc", "test_P07_run1", "Alice", "sub_007", "/data/a/metadata.json")

	id, ok := s.SubjectIDForToken("P07")
	require.True(t, ok)
	assert.Equal(t, "sub_007", id)

	_, ok = s.SubjectIDForToken("P99")
	assert.False(t, ok)
}

func TestSubjectScenarioPairs(t *testing.T) {
	s := newStore(t)
	seedTest(t, s, "hmg", "2025-08-04", "slc", "t1", "Alice", "sub_001", "/d/1/metadata.json")
	seedTest(t, s, "hmg", "2025-08-05", "lw", "t2", "Alice", "sub_001", "/d/2/metadata.json")
	seedTest(t, s, "hmg", "2025-08-05", "lw", "t3", "Bob", "sub_002", "/d/3/metadata.json")
	// Tests without a subject id never contribute pairs.
	seedTest(t, s, "hmg", "2025-08-06", "s&g", "t4", "Carol", "", "/d/4/metadata.json")

	pairs, err := s.SubjectScenarioPairs()
	require.NoError(t, err)
	assert.Equal(t, []SubjectScenario{
		{SubjectID: "sub_001", Scenario: "lw"},
		{SubjectID: "sub_001", Scenario: "slc"},
		{SubjectID: "sub_002", Scenario: "lw"},
	}, pairs)
}

func TestSearchTests_ConjunctivePredicates(t *testing.T) {
	s := newStore(t)
	a := seedTest(t, s, "hmg", "2025-08-04", "slc", "t1", "Alice", "sub_001", "/d/1/metadata.json")
	seedTest(t, s, "hmg", "2025-08-05", "lw", "t2", "Alice", "sub_001", "/d/2/metadata.json")
	seedTest(t, s, "other", "2025-08-04", "slc", "t3", "Bob", "sub_002", "/d/3/metadata.json")
	require.NoError(t, s.UpsertSensor(a, Sensor{SensorID: "imu_console_001"}))

	hits, err := s.SearchTests(TestSearch{Subject: "Ali", Scenario: "slc"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "t1", hits[0].TestID)

	hits, err = s.SearchTests(TestSearch{SensorID: "console"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "t1", hits[0].TestID)

	hits, err = s.SearchTests(TestSearch{})
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	hits, err = s.SearchTests(TestSearch{Project: "nomatch"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestGetTestPaths(t *testing.T) {
	s := newStore(t)
	id := seedTest(t, s, "hmg", "2025-08-04", "slc", "t1", "Alice", "sub_001",
		"/data/exp_slc/test01/metadata.json")
	require.NoError(t, s.UpsertSensor(id, Sensor{
		SensorID: "imu_console",
		FilePath: "/data/exp_slc/test01/imu_console.csv",
	}))

	tp, err := s.GetTestPaths(id)
	require.NoError(t, err)
	assert.Equal(t, "/data/exp_slc/test01/metadata.json", tp.MetadataPath)
	assert.Equal(t, "/data/exp_slc", tp.ExperimentPath)
	require.Len(t, tp.SensorFiles, 1)
	assert.Equal(t, "/data/exp_slc/test01/imu_console.csv", tp.SensorFiles[0].FilePath)
}

func TestResetCoreTables_LeavesOptimizationAlone(t *testing.T) {
	s := newStore(t)
	seedTest(t, s, "hmg", "2025-08-04", "slc", "t1", "Alice", "sub_001", "/d/1/metadata.json")
	_, err := s.UpsertParameter(
		ParameterKey{Strategy: 4, ParameterType: "fullopt", DataType: "driving", FilePath: "/opt/p.m"},
		"p.m", Memberships{})
	require.NoError(t, err)

	require.NoError(t, s.ResetCoreTables())

	hits, err := s.SearchTests(TestSearch{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	params, err := s.SearchParameters(ParameterSearch{Strategy: -1})
	require.NoError(t, err)
	assert.Len(t, params, 1)
}

func TestDropAndRecreate_Reseeds(t *testing.T) {
	s := newStore(t)
	seedTest(t, s, "hmg", "2025-08-04", "slc", "t1", "Alice", "sub_001", "/d/1/metadata.json")

	require.NoError(t, s.DropAndRecreate())

	hits, err := s.SearchTests(TestSearch{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	var strategies int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM optimization_strategies`).Scan(&strategies))
	assert.Equal(t, 5, strategies)
}

func TestClose_Idempotent(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestClassify_TagsBusyAsRetryable(t *testing.T) {
	busy := classify("write", errors.New("database is locked"))
	plain := classify("write", errors.New("constraint failed"))

	assert.True(t, xerrors.IsRetryable(busy))
	assert.False(t, xerrors.IsRetryable(plain))
}
