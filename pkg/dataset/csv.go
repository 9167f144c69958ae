package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvTimeLayout is the timestamp format of the persisted series index.
const csvTimeLayout = "2006-01-02 15:04:05"

// WriteCSV persists the series as a delimited table: a header row of
// "timestamp" plus the channel names, then one row per sample. The written
// form round-trips through ReadCSV.
func (s *Series) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{"timestamp"}, s.Channels...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(s.Channels)+1)
	for i, ts := range s.Index {
		record[0] = ts.Format(csvTimeLayout)
		for c, v := range s.Values[i] {
			record[c+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads a series previously written by WriteCSV.
func ReadCSV(r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &ParseError{File: "series", Reason: "missing header"}
	}
	if err != nil {
		return nil, err
	}
	if len(header) < 2 || header[0] != "timestamp" {
		return nil, &ParseError{File: "series", Reason: "header must start with timestamp"}
	}
	channels := append([]string(nil), header[1:]...)

	var (
		index  []time.Time
		values [][]float64
	)
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != len(header) {
			return nil, &ParseError{
				File:   "series",
				Reason: fmt.Sprintf("line %d has %d fields, want %d", line, len(record), len(header)),
			}
		}

		ts, err := time.Parse(csvTimeLayout, record[0])
		if err != nil {
			return nil, &ParseError{
				File:   "series",
				Reason: fmt.Sprintf("line %d: bad timestamp %q", line, record[0]),
			}
		}
		row := make([]float64, len(channels))
		for c, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, &ParseError{
					File:   "series",
					Reason: fmt.Sprintf("line %d: bad value %q", line, field),
				}
			}
			row[c] = v
		}
		index = append(index, ts)
		values = append(values, row)
	}

	return NewSeries(index, channels, values)
}
