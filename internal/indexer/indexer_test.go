package indexer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imudex/imudex/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func writeManifest(t *testing.T, dir string, doc map[string]any) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(dir, "metadata.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newFormatManifest(testID, subjectID, scenario string) map[string]any {
	return map[string]any{
		"project": "imu-study",
		"experiment": map[string]any{
			"id":       "exp_" + testID,
			"date":     "2025-08-04",
			"scenario": scenario,
		},
		"test": map[string]any{
			"id":           testID,
			"sequence":     1,
			"subject":      "Subject " + subjectID,
			"subject_id":   subjectID,
			"duration_sec": 600.0,
		},
		"sensors": []map[string]any{
			{"file": "imu_console_001.csv", "type": "imu", "position": "console", "sequence": 1, "sample_rate_hz": 100.0},
			{"file": "imu_headrest_001.csv", "type": "imu", "position": "headrest", "sequence": 2, "sample_rate_hz": 100.0},
		},
		"data_quality": map[string]any{
			"completeness": 0.98,
			"anomalies":    2,
		},
	}
}

func TestIndexManifests_NewFormat(t *testing.T) {
	// Given: a data root with one new-format manifest
	st := newTestStore(t)
	dataDir := t.TempDir()
	writeManifest(t, filepath.Join(dataDir, "test_001"), newFormatManifest("test_001_S1", "S1", "single_lane_change"))

	// When: the manifest pipeline runs
	ix := New(st, dataDir, t.TempDir())
	stats, err := ix.IndexManifests(context.Background())
	require.NoError(t, err)

	// Then: the test is indexed with a normalized subject id and both sensors
	assert.Equal(t, 1, stats.Found)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 0, stats.Failed)

	tests, err := st.SearchTests(store.TestSearch{})
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "test_001_S1", tests[0].TestID)
	assert.Equal(t, "sub_001", tests[0].SubjectID)
	assert.Equal(t, "imu-study", tests[0].Project)
	assert.Equal(t, 2, tests[0].SensorCount)

	sensors, err := st.SensorsByTest(tests[0].ID)
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, "imu_console_001", sensors[0].SensorID)
	assert.Equal(t, "console", sensors[0].Position)
}

func TestIndexManifests_OldFormatUsesDirName(t *testing.T) {
	// Given: an old-format manifest inside a legacy flat directory
	st := newTestStore(t)
	dataDir := t.TempDir()
	writeManifest(t, filepath.Join(dataDir, "0811 Test03 sub02 Alice SLC"), map[string]any{
		"experiment": map[string]any{
			"date":      "2024-08-11",
			"scenario":  "SLC",
			"test_name": "0811_test03",
		},
		"sensors": []map[string]any{
			{"file": "imu_CentC_001.csv"},
		},
	})

	// When: the manifest pipeline runs
	ix := New(st, dataDir, t.TempDir())
	stats, err := ix.IndexManifests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	// Then: subject, sequence and sensor position come from the naming conventions
	tests, err := st.SearchTests(store.TestSearch{})
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "0811_test03", tests[0].TestID)
	assert.Equal(t, "Alice", tests[0].Subject)
	assert.Equal(t, "sub_002", tests[0].SubjectID)
	assert.Equal(t, 3, tests[0].Sequence)

	sensors, err := st.SensorsByTest(tests[0].ID)
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	assert.Equal(t, "console", sensors[0].Position)
	assert.Equal(t, "imu", sensors[0].Type)
}

func TestIndexManifests_FullRebuildDropsStaleTests(t *testing.T) {
	// Given: two indexed manifests, one of which is then deleted on disk
	st := newTestStore(t)
	dataDir := t.TempDir()
	keep := filepath.Join(dataDir, "keep")
	gone := filepath.Join(dataDir, "gone")
	writeManifest(t, keep, newFormatManifest("t_keep", "S1", "slc"))
	stale := writeManifest(t, gone, newFormatManifest("t_gone", "S2", "lw"))

	ix := New(st, dataDir, t.TempDir())
	_, err := ix.IndexManifests(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(stale))

	// When: the pipeline runs again
	stats, err := ix.IndexManifests(context.Background())
	require.NoError(t, err)

	// Then: the stale test is gone and the deletion was counted
	assert.Equal(t, 1, stats.Deleted)
	tests, err := st.SearchTests(store.TestSearch{})
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "t_keep", tests[0].TestID)
}

func TestIndexManifests_MalformedManifestSkipped(t *testing.T) {
	// Given: one good manifest and one that is not JSON
	st := newTestStore(t)
	dataDir := t.TempDir()
	writeManifest(t, filepath.Join(dataDir, "good"), newFormatManifest("t_good", "S1", "slc"))
	bad := filepath.Join(dataDir, "bad")
	require.NoError(t, os.MkdirAll(bad, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, "metadata.json"), []byte("{not json"), 0o644))

	// When: the pipeline runs
	ix := New(st, dataDir, t.TempDir())
	stats, err := ix.IndexManifests(context.Background())
	require.NoError(t, err)

	// Then: the bad file is counted as failed and the good one is indexed
	assert.Equal(t, 2, stats.Found)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Failed)
}

// seedTests indexes manifests for the given (subjectID, scenario) pairs so
// fan-out tests have a subject/scenario universe to draw from.
func seedTests(t *testing.T, ix *Indexer, dataDir string, pairs [][2]string) {
	t.Helper()
	for i, p := range pairs {
		dir := filepath.Join(dataDir, "t"+string(rune('a'+i)))
		writeManifest(t, dir, newFormatManifest("test_"+p[0]+"_"+p[1], p[0], p[1]))
	}
	_, err := ix.IndexManifests(context.Background())
	require.NoError(t, err)
}

func optPath(optDir string, parts ...string) string {
	return filepath.Join(append([]string{optDir}, parts...)...)
}

func writeArtifact(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestIndexOptimization_Strategy0Parameter(t *testing.T) {
	// Given: a strategy-0 parameter file with scenario_subject and setting segments
	st := newTestStore(t)
	optDir := t.TempDir()
	ix := New(st, t.TempDir(), optDir)
	writeArtifact(t, optPath(optDir, "Driving", "Parameter", "Strategy0", "slc_sub_001", "H-IMU_VV", "params_fullopt.m"))

	// When: the optimization pipeline runs
	stats, err := ix.IndexOptimization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Parameters)

	// Then: the parameter carries exactly its own subject, scenario and setting
	details, err := st.SearchParameters(store.ParameterSearch{Strategy: 0})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "fullopt", details[0].ParameterType)
	assert.Equal(t, "driving", details[0].DataType)
	assert.Equal(t, []string{"sub_001"}, details[0].Subjects)
	assert.Equal(t, []string{"slc"}, details[0].Scenarios)
	assert.Equal(t, []string{"H-IMU_VV"}, details[0].SensorSettings)
}

func TestIndexOptimization_Strategy1FansOutScenarios(t *testing.T) {
	// Given: indexed tests giving sub_001 two scenarios, and a strategy-1 file
	st := newTestStore(t)
	dataDir, optDir := t.TempDir(), t.TempDir()
	ix := New(st, dataDir, optDir)
	seedTests(t, ix, dataDir, [][2]string{
		{"S1", "single_lane_change"},
		{"S1", "long_wave"},
		{"S2", "stop_and_go"},
	})
	writeArtifact(t, optPath(optDir, "Driving", "Parameter", "Strategy1_PerSubject", "sub_001", "params_fullopt.m"))

	// When: the optimization pipeline runs
	stats, err := ix.IndexOptimization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Parameters)

	// Then: every scenario seen for sub_001 is attached, and no others
	details, err := st.SearchParameters(store.ParameterSearch{Strategy: 1})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, []string{"sub_001"}, details[0].Subjects)
	assert.ElementsMatch(t, []string{"slc", "lw"}, details[0].Scenarios)
	assert.Empty(t, details[0].SensorSettings)
}

func TestIndexOptimization_UniversalFansOutEverything(t *testing.T) {
	// Given: two subjects over two scenarios, and a universal parameter file
	st := newTestStore(t)
	dataDir, optDir := t.TempDir(), t.TempDir()
	ix := New(st, dataDir, optDir)
	seedTests(t, ix, dataDir, [][2]string{
		{"S1", "single_lane_change"},
		{"S2", "long_wave"},
	})
	writeArtifact(t, optPath(optDir, "Driving+Rest", "Parameter", "Universal", "params_fullopt.m"))

	// When: the optimization pipeline runs
	_, err := ix.IndexOptimization(context.Background())
	require.NoError(t, err)

	// Then: all known subjects and scenarios are attached
	details, err := st.SearchParameters(store.ParameterSearch{Strategy: 4})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "driving+rest", details[0].DataType)
	assert.ElementsMatch(t, []string{"sub_001", "sub_002"}, details[0].Subjects)
	assert.ElementsMatch(t, []string{"slc", "lw"}, details[0].Scenarios)
}

func TestIndexOptimization_ResultResolvesToParameter(t *testing.T) {
	// Given: an indexed strategy-2 parameter and a matching result file
	st := newTestStore(t)
	optDir := t.TempDir()
	ix := New(st, t.TempDir(), optDir)
	writeArtifact(t, optPath(optDir, "Driving", "Parameter", "Strategy2", "slc_sub_001", "params_fullopt.m"))
	writeArtifact(t, optPath(optDir, "Driving", "Results", "Strategy2", "slc_sub_001", "xgboost_fullopt_results.mat"))

	// When: the optimization pipeline runs
	stats, err := ix.IndexOptimization(context.Background())
	require.NoError(t, err)

	// Then: the result is attached to the parameter with its model name
	assert.Equal(t, 1, stats.Parameters)
	assert.Equal(t, 1, stats.Results)
	details, err := st.SearchParameters(store.ParameterSearch{Strategy: 2})
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Len(t, details[0].Results, 1)
	assert.Equal(t, "xgboost", details[0].Results[0].Model)
}

func TestIndexOptimization_GraphForcesFullopt(t *testing.T) {
	// Given: a fullopt strategy-3 parameter and a 3opt-named comparison graph
	st := newTestStore(t)
	dataDir, optDir := t.TempDir(), t.TempDir()
	ix := New(st, dataDir, optDir)
	seedTests(t, ix, dataDir, [][2]string{{"S1", "single_lane_change"}})
	writeArtifact(t, optPath(optDir, "Driving", "Parameter", "Strategy3", "slc", "params_fullopt.m"))
	writeArtifact(t, optPath(optDir, "Driving", "Graph", "Strategy3", "slc", "comparison_3opt.png"))
	writeArtifact(t, optPath(optDir, "Driving", "Graph", "Strategy3", "slc", "lightgbm_curve.png"))

	// When: the optimization pipeline runs
	stats, err := ix.IndexOptimization(context.Background())
	require.NoError(t, err)

	// Then: both graphs resolve to the fullopt parameter despite the 3opt name
	assert.Equal(t, 2, stats.Visualizations)
	details, err := st.SearchParameters(store.ParameterSearch{Strategy: 3})
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Len(t, details[0].Visualizations, 2)

	kinds := map[string]string{}
	for _, v := range details[0].Visualizations {
		kinds[v.FileName] = v.Kind
	}
	assert.Equal(t, "comparison", kinds["comparison_3opt.png"])
	assert.Equal(t, "model-specific", kinds["lightgbm_curve.png"])
}

func TestIndexOptimization_RootNameCannotClaimStrategy(t *testing.T) {
	// Given: an optimization root whose own path mentions strategy words
	st := newTestStore(t)
	optDir := filepath.Join(t.TempDir(), "Universal_Strategy_Archive", "HMG_Optimization")
	ix := New(st, t.TempDir(), optDir)
	writeArtifact(t, optPath(optDir, "Driving", "Parameter", "Strategy2", "slc_sub_001", "params_fullopt.m"))
	// Without its own strategy folder this file stays unparseable no
	// matter what the ancestors are called.
	writeArtifact(t, optPath(optDir, "Driving", "Parameter", "misc", "params.m"))

	// When: the optimization pipeline runs
	stats, err := ix.IndexOptimization(context.Background())
	require.NoError(t, err)

	// Then: only the strategy folder below the root determined the parse
	assert.Equal(t, 1, stats.Parameters)
	assert.Equal(t, 1, stats.Skipped)

	details, err := st.SearchParameters(store.ParameterSearch{Strategy: 2})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, []string{"sub_001"}, details[0].Subjects)
	assert.Equal(t, []string{"slc"}, details[0].Scenarios)
}

func TestIndexOptimization_ArtifactsMissingSegmentsSkipped(t *testing.T) {
	// Given: a strategy-2 parameter plus a result and a graph whose paths
	// lack the scenario_subject segment
	st := newTestStore(t)
	optDir := t.TempDir()
	ix := New(st, t.TempDir(), optDir)
	writeArtifact(t, optPath(optDir, "Driving", "Parameter", "Strategy2", "slc_sub_001", "params_fullopt.m"))
	writeArtifact(t, optPath(optDir, "Driving", "Results", "Strategy2", "svm_fullopt_results.mat"))
	writeArtifact(t, optPath(optDir, "Driving", "Graph", "Strategy2", "lstm_curve.png"))

	// When: the optimization pipeline runs
	stats, err := ix.IndexOptimization(context.Background())
	require.NoError(t, err)

	// Then: neither artifact was attached to the unrelated parameter
	assert.Equal(t, 1, stats.Parameters)
	assert.Equal(t, 0, stats.Results)
	assert.Equal(t, 0, stats.Visualizations)
	assert.Equal(t, 2, stats.Skipped)

	details, err := st.SearchParameters(store.ParameterSearch{Strategy: 2})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Empty(t, details[0].Results)
	assert.Empty(t, details[0].Visualizations)
}

func TestIndexOptimization_SkipsUnresolvable(t *testing.T) {
	// Given: files with no strategy folder, a missing required segment, and
	// a result with no matching parameter
	st := newTestStore(t)
	optDir := t.TempDir()
	ix := New(st, t.TempDir(), optDir)
	writeArtifact(t, optPath(optDir, "Driving", "Parameter", "misc", "params.m"))
	writeArtifact(t, optPath(optDir, "Driving", "Parameter", "Strategy0", "slc_sub_001", "params.m")) // no setting segment
	writeArtifact(t, optPath(optDir, "Driving", "Results", "Strategy2", "lw_sub_009", "svm_results.mat"))

	// When: the optimization pipeline runs
	stats, err := ix.IndexOptimization(context.Background())
	require.NoError(t, err)

	// Then: nothing was indexed and every file counted as skipped
	assert.Equal(t, 0, stats.Parameters)
	assert.Equal(t, 0, stats.Results)
	assert.Equal(t, 3, stats.Skipped)
}
