package pointcloud

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/atritec/internal/lidar/records"
)

// FieldSummary holds descriptive statistics for one field across a cloud.
type FieldSummary struct {
	Name   string
	Type   records.NumericType
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Summarize computes per-field statistics over every record in buf. An
// empty buffer yields zero-valued summaries.
func Summarize(buf *records.Buffer) []FieldSummary {
	specs := buf.Layout().Fields()
	n := buf.Len()

	columns := make([][]float64, len(specs))
	for j := range columns {
		columns[j] = make([]float64, n)
	}
	for i, rec := range buf.All() {
		for j, v := range rec.Values() {
			columns[j][i] = v.Float64()
		}
	}

	out := make([]FieldSummary, len(specs))
	for j, f := range specs {
		s := FieldSummary{Name: f.Name, Type: f.Type}
		if n > 0 {
			s.Min = floats.Min(columns[j])
			s.Max = floats.Max(columns[j])
			s.Mean, s.StdDev = stat.MeanStdDev(columns[j], nil)
			if n < 2 {
				s.StdDev = 0
			}
		}
		out[j] = s
	}
	return out
}

// WriteSummary prints one line per field.
func WriteSummary(w io.Writer, summaries []FieldSummary) error {
	for _, s := range summaries {
		if _, err := fmt.Fprintf(w, "  %-12s %-8s min=%-12.6g max=%-12.6g mean=%-12.6g stddev=%.6g\n",
			s.Name, s.Type, s.Min, s.Max, s.Mean, s.StdDev); err != nil {
			return err
		}
	}
	return nil
}
