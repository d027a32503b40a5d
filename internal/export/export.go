// Package export writes profiles and mean curves as Apache Arrow IPC files
// for analysis outside convbench.
package export

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/nvandessel/convbench/internal/profile"
	"github.com/nvandessel/convbench/internal/reduce"
)

// Column names shared by both layouts.
const (
	ColumnTime     = "time"
	ColumnDiverged = "diverged"
)

// Metadata keys attached to every schema.
const (
	MetaSystem    = "convbench.system"
	MetaAlgorithm = "convbench.algorithm"
	MetaTrial     = "convbench.trial"
	MetaTrials    = "convbench.trials"
)

// WriteProfile writes p as a single-record Arrow file with one float64
// column per signal, named by the signal's short form, and a boolean
// diverged column.
func WriteProfile(w io.Writer, p *profile.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	fields := []arrow.Field{{Name: ColumnTime, Type: arrow.PrimitiveTypes.Float64}}
	for _, sig := range profile.Signals {
		fields = append(fields, arrow.Field{Name: sig.Short(), Type: arrow.PrimitiveTypes.Float64})
	}
	fields = append(fields, arrow.Field{Name: ColumnDiverged, Type: arrow.FixedWidthTypes.Boolean})
	md := arrow.NewMetadata(
		[]string{MetaSystem, MetaAlgorithm, MetaTrial},
		[]string{p.System, p.Algorithm.Short(), strconv.Itoa(p.Trial)},
	)
	schema := arrow.NewSchema(fields, &md)

	return write(w, schema, func(b *array.RecordBuilder) {
		b.Field(0).(*array.Float64Builder).AppendValues(p.Time, nil)
		for i, sig := range profile.Signals {
			b.Field(i+1).(*array.Float64Builder).AppendValues(p.Series(sig), nil)
		}
		b.Field(len(fields)-1).(*array.BooleanBuilder).AppendValues(p.Diverged, nil)
	})
}

// WriteMean writes m as a single-record Arrow file with a mean, std and
// count column per reduced signal ({short}_mean, {short}_std,
// {short}_count) and an int64 diverged count. Undefined grid points are
// null.
func WriteMean(w io.Writer, m *reduce.MeanProfile) error {
	signals := m.Signals()
	fields := []arrow.Field{{Name: ColumnTime, Type: arrow.PrimitiveTypes.Float64}}
	for _, sig := range signals {
		fields = append(fields,
			arrow.Field{Name: sig.Short() + "_mean", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
			arrow.Field{Name: sig.Short() + "_std", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
			arrow.Field{Name: sig.Short() + "_count", Type: arrow.PrimitiveTypes.Int64},
		)
	}
	fields = append(fields, arrow.Field{Name: ColumnDiverged, Type: arrow.PrimitiveTypes.Int64})
	md := arrow.NewMetadata(
		[]string{MetaSystem, MetaAlgorithm, MetaTrials},
		[]string{m.System, m.Algorithm.Short(), strconv.Itoa(m.Trials)},
	)
	schema := arrow.NewSchema(fields, &md)

	for _, sig := range signals {
		c := m.Curve(sig)
		if len(c.Mean) != len(m.Time) || len(c.Std) != len(m.Time) || len(c.Count) != len(m.Time) {
			return fmt.Errorf("mean curve %s is not aligned with its grid", sig)
		}
	}
	if len(m.Diverged) != len(m.Time) {
		return fmt.Errorf("diverged counts are not aligned with the grid")
	}

	return write(w, schema, func(b *array.RecordBuilder) {
		b.Field(0).(*array.Float64Builder).AppendValues(m.Time, nil)
		for i, sig := range signals {
			c := m.Curve(sig)
			col := 1 + 3*i
			b.Field(col).(*array.Float64Builder).AppendValues(c.Mean, defined(c.Mean))
			b.Field(col+1).(*array.Float64Builder).AppendValues(c.Std, defined(c.Std))
			b.Field(col+2).(*array.Int64Builder).AppendValues(int64s(c.Count), nil)
		}
		b.Field(len(fields)-1).(*array.Int64Builder).AppendValues(int64s(m.Diverged), nil)
	})
}

func write(w io.Writer, schema *arrow.Schema, fill func(*array.RecordBuilder)) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	fill(b)
	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}

func defined(vs []float64) []bool {
	valid := make([]bool, len(vs))
	for i, v := range vs {
		valid[i] = !math.IsNaN(v)
	}
	return valid
}

func int64s(vs []int) []int64 {
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = int64(v)
	}
	return out
}
