// Package imucsv reads recorded IMU sensor CSVs and computes the
// per-axis summary statistics the API serves for a test.
package imucsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Axes are the sensor channels a recording carries: three acceleration
// axes and three angular-rate axes.
var Axes = []string{"ax", "ay", "az", "gx", "gy", "gz"}

// TimeColumn is the sample timestamp column, in seconds.
const TimeColumn = "t_sec"

// Frame holds one loaded CSV: the time column plus whichever axis
// columns the file carried. Missing columns are absent from the map
// rather than zero-filled.
type Frame struct {
	Time    []float64
	Columns map[string][]float64
}

// Len returns the number of samples.
func (f *Frame) Len() int {
	if len(f.Time) > 0 {
		return len(f.Time)
	}
	for _, col := range f.Columns {
		return len(col)
	}
	return 0
}

// Load reads an IMU CSV. Header names are matched case-insensitively
// with surrounding whitespace stripped; unknown columns are ignored and
// unparseable cells become NaN so one bad row does not sink the file.
func Load(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes CSV data from r. See Load.
func Read(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	wanted := map[string]bool{TimeColumn: true}
	for _, a := range Axes {
		wanted[a] = true
	}
	// Column index -> canonical name for the columns we keep.
	keep := map[int]string{}
	for i, name := range header {
		canonical := strings.ToLower(strings.TrimSpace(name))
		if wanted[canonical] {
			keep[i] = canonical
		}
	}

	frame := &Frame{Columns: map[string][]float64{}}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		for i, name := range keep {
			v := math.NaN()
			if i < len(record) {
				if parsed, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64); err == nil {
					v = parsed
				}
			}
			if name == TimeColumn {
				frame.Time = append(frame.Time, v)
			} else {
				frame.Columns[name] = append(frame.Columns[name], v)
			}
		}
	}
	return frame, nil
}

// AxisStats summarizes one sensor channel.
type AxisStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Summary is the roll-up served per sensor file.
type Summary struct {
	TotalSamples    int                  `json:"total_samples"`
	DurationSeconds float64              `json:"duration_seconds"`
	SamplingRateHz  float64              `json:"sampling_rate_hz"`
	Axes            map[string]AxisStats `json:"axes"`
}

// Summarize computes sample count, recording duration, effective
// sampling rate, and per-axis statistics over the non-NaN samples of
// each present axis.
func Summarize(f *Frame) Summary {
	s := Summary{
		TotalSamples: f.Len(),
		Axes:         map[string]AxisStats{},
	}

	if times := dropNaN(f.Time); len(times) > 1 {
		lo, hi := times[0], times[0]
		for _, t := range times[1:] {
			if t < lo {
				lo = t
			}
			if t > hi {
				hi = t
			}
		}
		s.DurationSeconds = round(hi-lo, 2)
		if hi > lo {
			s.SamplingRateHz = round(float64(len(times))/(hi-lo), 1)
		}
	}

	for _, axis := range Axes {
		col, ok := f.Columns[axis]
		if !ok {
			continue
		}
		values := dropNaN(col)
		if len(values) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(values, nil)
		if math.IsNaN(std) {
			std = 0
		}
		lo, hi := values[0], values[0]
		for _, v := range values[1:] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		s.Axes[axis] = AxisStats{
			Mean: round(mean, 3),
			Std:  round(std, 3),
			Min:  round(lo, 3),
			Max:  round(hi, 3),
		}
	}
	return s
}

func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
