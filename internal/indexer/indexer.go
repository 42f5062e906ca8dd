// Package indexer walks the recording and optimization trees and
// reconciles what it finds into the store. The manifest pipeline is a
// full rebuild on every run; the optimization pipeline upserts
// incrementally and never wipes.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	xerrors "github.com/imudex/imudex/internal/errors"
	"github.com/imudex/imudex/internal/manifest"
	"github.com/imudex/imudex/internal/normalize"
	"github.com/imudex/imudex/internal/parse"
	"github.com/imudex/imudex/internal/store"
)

// Indexer drives both reindex pipelines against a single store.
type Indexer struct {
	store   *store.Store
	norm    *normalize.Normalizer
	dataDir string
	optDir  string
	log     *slog.Logger
}

// New returns an indexer over the recording data root and the
// optimization root. The store doubles as the normalizer's reverse
// lookup source.
func New(st *store.Store, dataDir, optDir string) *Indexer {
	return &Indexer{
		store:   st,
		norm:    normalize.New(st),
		dataDir: dataDir,
		optDir:  optDir,
		log:     slog.Default().With("component", "indexer"),
	}
}

// ManifestStats summarizes one manifest pipeline run.
type ManifestStats struct {
	Found   int
	Indexed int
	Failed  int
	Deleted int
}

// OptimizationStats summarizes one optimization pipeline run.
type OptimizationStats struct {
	Parameters     int
	Results        int
	Visualizations int
	Skipped        int
}

// IndexManifests runs the full-reconciliation manifest pipeline: collect
// every metadata.json under the data root, log tests whose manifest
// vanished from disk, wipe the core tables, then re-index every manifest
// still present. Per-file problems are logged and skipped; a retryable
// storage error aborts the run so the caller's retry policy applies.
func (ix *Indexer) IndexManifests(ctx context.Context) (ManifestStats, error) {
	var stats ManifestStats

	paths, err := ix.collectManifests()
	if err != nil {
		return stats, err
	}
	stats.Found = len(paths)

	stored, err := ix.store.ManifestPaths()
	if err != nil {
		return stats, err
	}
	current := make(map[string]bool, len(paths))
	for _, p := range paths {
		current[p] = true
	}
	for _, p := range stored {
		if !current[norm.NFC.String(p)] {
			stats.Deleted++
			ix.log.Info("manifest removed from disk", "path", p)
		}
	}

	if err := ix.store.ResetCoreTables(); err != nil {
		return stats, err
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := ix.indexManifest(p); err != nil {
			if xerrors.IsRetryable(err) {
				return stats, err
			}
			stats.Failed++
			ix.log.Warn("manifest skipped", "path", p, "error", err)
			continue
		}
		stats.Indexed++
	}

	ix.log.Info("manifest reindex complete",
		"found", stats.Found, "indexed", stats.Indexed,
		"failed", stats.Failed, "deleted", stats.Deleted)
	return stats, nil
}

func (ix *Indexer) collectManifests() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(ix.dataDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && d.Name() == manifest.FileName {
			paths = append(paths, norm.NFC.String(p))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, xerrors.Wrap(xerrors.ErrCodeInvalidPath, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// indexManifest decodes one manifest and writes its experiment, test,
// sensors, and data-quality rows. Each store call is its own short
// transaction; a crash mid-file leaves partial rows that the next full
// rebuild heals.
func (ix *Indexer) indexManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	m, err := manifest.Decode(data)
	if err != nil {
		return xerrors.Wrap(xerrors.ErrCodeManifestMalformed, err)
	}

	dir := filepath.Dir(path)
	exp, test := ix.entitiesFor(m, filepath.Base(dir), path)

	expID, err := ix.store.FindOrCreateExperiment(exp)
	if err != nil {
		return err
	}
	testID, err := ix.store.ReplaceTest(expID, test)
	if err != nil {
		return err
	}

	for _, s := range m.Sensors {
		position := s.Position
		if position == "" {
			position = parse.SensorPosition(s.File)
		}
		err := ix.store.UpsertSensor(testID, store.Sensor{
			SensorID:     s.ID,
			Type:         s.Type,
			Position:     position,
			Sequence:     s.Sequence,
			SampleRateHz: s.SampleRateHz,
			FileName:     s.File,
			FilePath:     norm.NFC.String(filepath.Join(dir, s.File)),
		})
		if err != nil {
			return err
		}
	}

	return ix.store.AppendDataQuality(testID, store.DataQuality{
		Completeness: m.DataQuality.Completeness,
		Anomalies:    m.DataQuality.Anomalies,
		Notes:        m.DataQuality.Notes,
	})
}

// entitiesFor maps a decoded manifest onto store rows. Old-format
// manifests carry almost nothing, so the enclosing directory name fills
// the gaps via the legacy naming conventions.
func (ix *Indexer) entitiesFor(m *manifest.Manifest, dirName, path string) (store.Experiment, store.Test) {
	exp := store.Experiment{
		Project:     m.Experiment.Project,
		ExternalID:  m.Experiment.ExternalID,
		Date:        m.Experiment.Date,
		Scenario:    m.Experiment.Scenario,
		Description: m.Experiment.Description,
	}
	if exp.Description == "" {
		exp.Description = exp.Scenario + " experiment"
	}

	test := store.Test{
		TestID:      m.Test.ExternalID,
		Sequence:    m.Test.Sequence,
		Subject:     m.Test.Subject,
		SubjectID:   m.Test.SubjectID,
		DurationSec: m.Test.DurationSec,
		Notes:       m.Test.Notes,
		FilePath:    norm.NFC.String(path),
	}

	if m.Format == manifest.FormatOld {
		if parse.IsRecordingDirName(dirName) {
			info := parse.ParseRecordingDirName(dirName)
			test.Subject = info.Subject
			test.SubjectID = info.Identifier
			test.Sequence = info.TestNumber
		} else {
			info := parse.ParseLegacyDirName(dirName)
			test.Subject = info.Subject
			test.SubjectID = fmt.Sprintf("sub%02d", info.SubjectNumber)
			test.Sequence = info.TestNumber
		}
	}
	if test.SubjectID != "" {
		test.SubjectID = ix.norm.SubjectID(test.SubjectID)
	}
	return exp, test
}

// pairSet is the subject/scenario universe of the run, materialized once
// per optimization reindex for the strategy fan-outs.
type pairSet struct {
	pairs  []store.SubjectScenario
	loaded bool
}

func (ix *Indexer) loadPairs(ps *pairSet) ([]store.SubjectScenario, error) {
	if ps.loaded {
		return ps.pairs, nil
	}
	pairs, err := ix.store.SubjectScenarioPairs()
	if err != nil {
		return nil, err
	}
	ps.pairs = pairs
	ps.loaded = true
	return pairs, nil
}

// IndexOptimization runs the incremental optimization pipeline. Parameter
// files are indexed for both data types before results and graphs so that
// every resolvable artifact finds its owner within a single run.
func (ix *Indexer) IndexOptimization(ctx context.Context) (OptimizationStats, error) {
	var stats OptimizationStats
	var pairs pairSet

	categories := []struct {
		category parse.Category
		ext      string
	}{
		{parse.CategoryParameter, ".m"},
		{parse.CategoryResults, ".mat"},
		{parse.CategoryVisualization, ".png"},
	}
	dataTypes := []parse.DataType{parse.DataDriving, parse.DataDrivingRest}

	for _, c := range categories {
		for _, dt := range dataTypes {
			root := filepath.Join(ix.optDir, dt.Folder(), string(c.category))
			err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					if os.IsNotExist(err) {
						return nil
					}
					return err
				}
				if d.IsDir() || !strings.EqualFold(filepath.Ext(p), c.ext) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				return ix.indexArtifact(p, dt, c.category, &pairs, &stats)
			})
			if err != nil && !os.IsNotExist(err) {
				return stats, err
			}
		}
	}

	ix.log.Info("optimization reindex complete",
		"parameters", stats.Parameters, "results", stats.Results,
		"visualizations", stats.Visualizations, "skipped", stats.Skipped)
	return stats, nil
}

// indexArtifact dispatches one optimization file. Unresolvable files are
// skipped with a diagnostic; retryable storage errors abort the walk.
func (ix *Indexer) indexArtifact(p string, dt parse.DataType, category parse.Category, pairs *pairSet, stats *OptimizationStats) error {
	// Parse relative to the optimization root. An ancestor directory
	// whose name happens to contain a strategy word must not claim the
	// strategy slot.
	rel := p
	if r, err := filepath.Rel(ix.optDir, p); err == nil {
		rel = r
	}
	a := parse.ParseArtifactPath(rel)
	if !a.HasStrategy {
		stats.Skipped++
		ix.log.Debug("no strategy folder in path", "path", p)
		return nil
	}

	var subject, scenario string
	if a.HasSubject {
		subject = ix.norm.SubjectID(a.Subject)
	}
	if a.HasScenario {
		scenario = normalize.Scenario(a.Scenario)
	}

	var err error
	switch category {
	case parse.CategoryParameter:
		err = ix.indexParameter(p, a, dt, subject, scenario, pairs, stats)
	case parse.CategoryResults:
		err = ix.indexResult(p, a, dt, subject, scenario, stats)
	case parse.CategoryVisualization:
		err = ix.indexVisualization(p, a, dt, subject, scenario, stats)
	}
	if err != nil && !xerrors.IsRetryable(err) {
		stats.Skipped++
		ix.log.Warn("optimization file skipped", "path", p, "error", err)
		return nil
	}
	return err
}

func (ix *Indexer) indexParameter(p string, a parse.Artifact, dt parse.DataType, subject, scenario string, pairs *pairSet, stats *OptimizationStats) error {
	if !a.HasStrategyRequiredFields() {
		stats.Skipped++
		ix.log.Debug("parameter path missing required segments",
			"path", p, "strategy", a.Strategy.String())
		return nil
	}

	m, err := ix.memberships(a, subject, scenario, pairs)
	if err != nil {
		return err
	}

	key := store.ParameterKey{
		Strategy:      int(a.Strategy),
		ParameterType: string(a.ParameterType),
		DataType:      string(dt),
		FilePath:      norm.NFC.String(p),
	}
	if _, err := ix.store.UpsertParameter(key, a.FileName, m); err != nil {
		return err
	}
	stats.Parameters++
	return nil
}

// memberships computes the junction rows for a parameter file. Strategies
// that cover more than the path encodes fan out over the subject/scenario
// pairs observed in indexed tests.
func (ix *Indexer) memberships(a parse.Artifact, subject, scenario string, ps *pairSet) (store.Memberships, error) {
	var m store.Memberships

	switch a.Strategy {
	case parse.StrategySubjectScenarioSetting:
		m.Subjects = []string{subject}
		m.Scenarios = []string{scenario}
		m.SensorSettings = []string{a.SensorSetting}
	case parse.StrategySubject:
		pairs, err := ix.loadPairs(ps)
		if err != nil {
			return m, err
		}
		m.Subjects = []string{subject}
		for _, p := range pairs {
			if p.SubjectID == subject {
				m.Scenarios = append(m.Scenarios, normalize.Scenario(p.Scenario))
			}
		}
	case parse.StrategySubjectScenario:
		m.Subjects = []string{subject}
		m.Scenarios = []string{scenario}
	case parse.StrategyScenario:
		pairs, err := ix.loadPairs(ps)
		if err != nil {
			return m, err
		}
		m.Scenarios = []string{scenario}
		for _, p := range pairs {
			if normalize.Scenario(p.Scenario) == scenario {
				m.Subjects = append(m.Subjects, p.SubjectID)
			}
		}
	case parse.StrategyUniversal:
		pairs, err := ix.loadPairs(ps)
		if err != nil {
			return m, err
		}
		for _, p := range pairs {
			m.Subjects = append(m.Subjects, p.SubjectID)
			m.Scenarios = append(m.Scenarios, normalize.Scenario(p.Scenario))
		}
	}
	return m, nil
}

func (ix *Indexer) indexResult(p string, a parse.Artifact, dt parse.DataType, subject, scenario string, stats *OptimizationStats) error {
	if !a.HasModel {
		stats.Skipped++
		ix.log.Debug("result filename has no recognized model", "path", p)
		return nil
	}
	if !a.HasStrategyRequiredFields() {
		stats.Skipped++
		ix.log.Debug("result path missing required segments",
			"path", p, "strategy", a.Strategy.String())
		return nil
	}

	id, ok, err := ix.resolveOwner(a, string(a.ParameterType), dt, subject, scenario, true)
	if err != nil {
		return err
	}
	if !ok {
		stats.Skipped++
		ix.log.Debug("no owning parameter for result", "path", p)
		return nil
	}

	if err := ix.store.UpsertResult(id, string(a.Model), norm.NFC.String(p), a.FileName); err != nil {
		return err
	}
	stats.Results++
	return nil
}

// indexVisualization indexes a graph file. Visualizations are only
// produced for the full optimization and are never sensor-setting
// specific, so the resolution forces fullopt and drops the setting.
func (ix *Indexer) indexVisualization(p string, a parse.Artifact, dt parse.DataType, subject, scenario string, stats *OptimizationStats) error {
	if !a.HasSubjectScenarioFields() {
		stats.Skipped++
		ix.log.Debug("visualization path missing required segments",
			"path", p, "strategy", a.Strategy.String())
		return nil
	}

	kind := parse.KindComparison
	model := ""
	if a.HasModel {
		kind = parse.KindModelSpecific
		model = string(a.Model)
	}

	id, ok, err := ix.resolveOwner(a, string(parse.ParameterFullOpt), dt, subject, scenario, false)
	if err != nil {
		return err
	}
	if !ok {
		stats.Skipped++
		ix.log.Debug("no owning parameter for visualization", "path", p)
		return nil
	}

	if err := ix.store.UpsertVisualization(id, string(kind), model, norm.NFC.String(p), a.FileName); err != nil {
		return err
	}
	stats.Visualizations++
	return nil
}

// resolveOwner finds the parameter an artifact belongs to, applying only
// the junction predicates that make sense for its strategy.
func (ix *Indexer) resolveOwner(a parse.Artifact, parameterType string, dt parse.DataType, subject, scenario string, useSetting bool) (int64, bool, error) {
	q := store.ResolveQuery{
		Strategy:      int(a.Strategy),
		ParameterType: parameterType,
		DataType:      string(dt),
	}
	if a.Strategy.RequiresSubject() {
		q.SubjectID = subject
	}
	if a.Strategy.RequiresScenario() {
		q.Scenario = scenario
	}
	if useSetting && a.Strategy.RequiresSensorSetting() && a.HasSensorSetting {
		q.SensorSetting = a.SensorSetting
	}
	return ix.store.ResolveParameter(q)
}
