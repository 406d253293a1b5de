package cover

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// Summary describes one series.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
}

// Summarize computes summary statistics of values.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, fmt.Errorf("cannot summarize an empty series")
	}

	data := stats.Float64Data(values)
	s := Summary{Count: len(values)}

	var err error
	if s.Min, err = data.Min(); err != nil {
		return Summary{}, err
	}
	if s.Max, err = data.Max(); err != nil {
		return Summary{}, err
	}
	if s.Mean, err = data.Mean(); err != nil {
		return Summary{}, err
	}
	if s.Median, err = data.Median(); err != nil {
		return Summary{}, err
	}
	if s.StdDev, err = data.StandardDeviation(); err != nil {
		return Summary{}, err
	}
	return s, nil
}

// Summaries returns the fraction and area summaries of a result.
func (r *Result) Summaries() (fraction, area Summary, err error) {
	if fraction, err = Summarize(r.Fraction); err != nil {
		return Summary{}, Summary{}, fmt.Errorf("fraction: %w", err)
	}
	if area, err = Summarize(r.Area); err != nil {
		return Summary{}, Summary{}, fmt.Errorf("area: %w", err)
	}
	return fraction, area, nil
}
