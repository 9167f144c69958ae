package dataset

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultLayout is the timestamp layout encoded in bearing-rig snapshot
// filenames, e.g. "2004.02.12.10.32.39".
const DefaultLayout = "2006.01.02.15.04.05"

// ParseError reports a malformed snapshot filename or data table.
type ParseError struct {
	File   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dataset: %s: %s", e.File, e.Reason)
}

type aggregator struct {
	layout   string
	channels []string
}

// Option configures the Aggregator.
type Option func(*aggregator)

// WithLayout sets the timestamp layout parsed from snapshot filenames.
func WithLayout(layout string) Option {
	return func(a *aggregator) {
		a.layout = layout
	}
}

// WithChannelNames sets the output column names. The count must match the
// column count of the snapshot files; by default channels are named
// ch1..chN.
func WithChannelNames(names []string) Option {
	return func(a *aggregator) {
		a.channels = names
	}
}

// Aggregate reduces a directory of raw snapshot files into one Series row
// per file: for each channel, the mean of absolute values of that channel's
// readings. The row timestamp is parsed from the filename. Rows come back
// sorted chronologically. An empty directory yields an empty Series; a
// malformed filename or table fails with ParseError.
func Aggregate(dir string, opts ...Option) (*Series, error) {
	a := &aggregator{layout: DefaultLayout}
	for _, opt := range opts {
		opt(a)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var (
		index  []time.Time
		values [][]float64
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, err := time.Parse(a.layout, entry.Name())
		if err != nil {
			return nil, &ParseError{
				File:   entry.Name(),
				Reason: fmt.Sprintf("filename does not match layout %q", a.layout),
			}
		}

		row, err := reduceSnapshot(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		if len(values) > 0 && len(row) != len(values[0]) {
			return nil, &ParseError{
				File:   entry.Name(),
				Reason: fmt.Sprintf("%d channels, want %d", len(row), len(values[0])),
			}
		}
		index = append(index, ts)
		values = append(values, row)
	}

	channels := a.channels
	if channels == nil && len(values) > 0 {
		channels = make([]string, len(values[0]))
		for c := range channels {
			channels[c] = fmt.Sprintf("ch%d", c+1)
		}
	}
	if len(values) > 0 && len(channels) != len(values[0]) {
		return nil, fmt.Errorf("dataset: %d channel names for %d channels",
			len(channels), len(values[0]))
	}
	return NewSeries(index, channels, values)
}

// reduceSnapshot reads one whitespace-delimited snapshot table and returns
// the per-column mean of absolute values.
func reduceSnapshot(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		sums []float64
		rows int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if sums == nil {
			sums = make([]float64, len(fields))
		} else if len(fields) != len(sums) {
			return nil, &ParseError{
				File:   filepath.Base(path),
				Reason: fmt.Sprintf("line %d has %d columns, want %d", rows+1, len(fields), len(sums)),
			}
		}
		for c, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, &ParseError{
					File:   filepath.Base(path),
					Reason: fmt.Sprintf("line %d: bad value %q", rows+1, field),
				}
			}
			sums[c] += math.Abs(v)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, &ParseError{File: filepath.Base(path), Reason: "empty snapshot"}
	}

	for c := range sums {
		sums[c] /= float64(rows)
	}
	return sums, nil
}
