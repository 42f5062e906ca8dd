package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertParameter_RebuildsJunctions(t *testing.T) {
	s := newStore(t)
	key := ParameterKey{Strategy: 1, ParameterType: "fullopt", DataType: "driving", FilePath: "/opt/s1/p.m"}

	id, err := s.UpsertParameter(key, "p.m", Memberships{
		Subjects:  []string{"sub_001", "sub_001", ""},
		Scenarios: []string{"slc", "lw"},
	})
	require.NoError(t, err)

	again, err := s.UpsertParameter(key, "p.m", Memberships{
		Subjects:  []string{"sub_001"},
		Scenarios: []string{"slc"},
	})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	d, err := s.GetParameter(id)
	require.NoError(t, err)
	// Duplicates and empties were dropped on the first write; the second
	// write replaced the memberships wholesale.
	assert.Equal(t, []string{"sub_001"}, d.Subjects)
	assert.Equal(t, []string{"slc"}, d.Scenarios)
	assert.Empty(t, d.SensorSettings)
}

func TestResolveParameter_NarrowsByJunctions(t *testing.T) {
	s := newStore(t)
	alice, err := s.UpsertParameter(
		ParameterKey{Strategy: 1, ParameterType: "fullopt", DataType: "driving", FilePath: "/opt/s1/alice/p.m"},
		"p.m", Memberships{Subjects: []string{"sub_001"}, Scenarios: []string{"slc", "lw"}})
	require.NoError(t, err)
	bob, err := s.UpsertParameter(
		ParameterKey{Strategy: 1, ParameterType: "fullopt", DataType: "driving", FilePath: "/opt/s1/bob/p.m"},
		"p.m", Memberships{Subjects: []string{"sub_002"}, Scenarios: []string{"slc"}})
	require.NoError(t, err)

	base := ResolveQuery{Strategy: 1, ParameterType: "fullopt", DataType: "driving"}

	q := base
	q.SubjectID = "sub_002"
	id, ok, err := s.ResolveParameter(q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bob, id)

	q = base
	q.SubjectID = "sub_009"
	_, ok, err = s.ResolveParameter(q)
	require.NoError(t, err)
	assert.False(t, ok)

	// Without predicates both parameters match; the first-inserted wins.
	id, ok, err = s.ResolveParameter(base)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, alice, id)
}

func TestResolveParameter_MismatchedKeyFields(t *testing.T) {
	s := newStore(t)
	_, err := s.UpsertParameter(
		ParameterKey{Strategy: 4, ParameterType: "fullopt", DataType: "driving", FilePath: "/opt/u/p.m"},
		"p.m", Memberships{})
	require.NoError(t, err)

	_, ok, err := s.ResolveParameter(ResolveQuery{Strategy: 4, ParameterType: "3opt", DataType: "driving"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.ResolveParameter(ResolveQuery{Strategy: 4, ParameterType: "fullopt", DataType: "driving+rest"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertResult_ReplacesPerModel(t *testing.T) {
	s := newStore(t)
	id, err := s.UpsertParameter(
		ParameterKey{Strategy: 4, ParameterType: "fullopt", DataType: "driving", FilePath: "/opt/u/p.m"},
		"p.m", Memberships{})
	require.NoError(t, err)

	require.NoError(t, s.UpsertResult(id, "xgboost", "/opt/u/xgboost_v1.mat", "xgboost_v1.mat"))
	require.NoError(t, s.UpsertResult(id, "xgboost", "/opt/u/xgboost_v2.mat", "xgboost_v2.mat"))
	require.NoError(t, s.UpsertResult(id, "svm", "/opt/u/svm.mat", "svm.mat"))

	d, err := s.GetParameter(id)
	require.NoError(t, err)
	require.Len(t, d.Results, 2)
	assert.Equal(t, "svm", d.Results[0].Model)
	assert.Equal(t, "xgboost_v2.mat", d.Results[1].FileName)
}

func TestUpsertVisualization_KeyedByKindAndModel(t *testing.T) {
	s := newStore(t)
	id, err := s.UpsertParameter(
		ParameterKey{Strategy: 4, ParameterType: "fullopt", DataType: "driving", FilePath: "/opt/u/p.m"},
		"p.m", Memberships{})
	require.NoError(t, err)

	require.NoError(t, s.UpsertVisualization(id, "comparison", "", "/opt/u/cmp_v1.png", "cmp_v1.png"))
	require.NoError(t, s.UpsertVisualization(id, "comparison", "", "/opt/u/cmp_v2.png", "cmp_v2.png"))
	require.NoError(t, s.UpsertVisualization(id, "model-specific", "lstm", "/opt/u/lstm.png", "lstm.png"))

	d, err := s.GetParameter(id)
	require.NoError(t, err)
	require.Len(t, d.Visualizations, 2)
	assert.Equal(t, "cmp_v2.png", d.Visualizations[0].FileName)
	assert.Equal(t, "lstm", d.Visualizations[1].Model)
}

func TestSearchParameters_Predicates(t *testing.T) {
	s := newStore(t)
	seedTest(t, s, "hmg", "2025-08-04", "slc", "t1", "Alice", "sub_001", "/d/1/metadata.json")

	p1, err := s.UpsertParameter(
		ParameterKey{Strategy: 0, ParameterType: "fullopt", DataType: "driving", FilePath: "/opt/s0/p.m"},
		"p.m", Memberships{
			Subjects:       []string{"sub_001"},
			Scenarios:      []string{"slc"},
			SensorSettings: []string{"H-IMU_VV"},
		})
	require.NoError(t, err)
	p2, err := s.UpsertParameter(
		ParameterKey{Strategy: 4, ParameterType: "3opt", DataType: "driving+rest", FilePath: "/opt/u/p.m"},
		"p.m", Memberships{Subjects: []string{"sub_001", "sub_002"}, Scenarios: []string{"slc", "lw"}})
	require.NoError(t, err)
	require.NoError(t, s.UpsertResult(p2, "xgboost", "/opt/u/x.mat", "x.mat"))

	all, err := s.SearchParameters(ParameterSearch{Strategy: -1})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, p1, all[0].ID)

	hits, err := s.SearchParameters(ParameterSearch{Strategy: -1, SensorSetting: "H-IMU"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, p1, hits[0].ID)

	hits, err = s.SearchParameters(ParameterSearch{Strategy: -1, Model: "xgb"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, p2, hits[0].ID)

	// Display-name search bridges through the indexed tests.
	hits, err = s.SearchParameters(ParameterSearch{Strategy: 0, Subject: "Alice"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, p1, hits[0].ID)

	hits, err = s.SearchParameters(ParameterSearch{Strategy: 2})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestGetParameter_UnknownID(t *testing.T) {
	s := newStore(t)
	_, err := s.GetParameter(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetOptimizationTables_LeavesTestsAlone(t *testing.T) {
	s := newStore(t)
	seedTest(t, s, "hmg", "2025-08-04", "slc", "t1", "Alice", "sub_001", "/d/1/metadata.json")
	_, err := s.UpsertParameter(
		ParameterKey{Strategy: 4, ParameterType: "fullopt", DataType: "driving", FilePath: "/opt/u/p.m"},
		"p.m", Memberships{})
	require.NoError(t, err)

	require.NoError(t, s.ResetOptimizationTables())

	params, err := s.SearchParameters(ParameterSearch{Strategy: -1})
	require.NoError(t, err)
	assert.Empty(t, params)

	tests, err := s.SearchTests(TestSearch{})
	require.NoError(t, err)
	assert.Len(t, tests, 1)
}
