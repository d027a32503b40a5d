package export

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/google/go-cmp/cmp"

	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/profile"
	"github.com/nvandessel/convbench/internal/reduce"
)

func sample() *profile.Profile {
	p := &profile.Profile{System: "demo", Algorithm: flowsheet.SequentialModular, Trial: 2}
	for i := 0; i < 4; i++ {
		v := -float64(i)
		p.Append(profile.Sample{
			Time: 0.5 * float64(i+1), FlowError: v, TemperatureError: v - 1,
			FlowChange: v - 2, TemperatureChange: v - 3, EnergyBalance: -25, MaterialBalance: -25,
			Diverged: i == 1,
		})
	}
	return p
}

func readBack(t *testing.T, data []byte) (*arrow.Schema, arrow.Record) {
	t.Helper()
	r, err := ipc.NewFileReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	if r.NumRecords() != 1 {
		t.Fatalf("records = %d, want 1", r.NumRecords())
	}
	rec, err := r.Record(0)
	if err != nil {
		t.Fatal(err)
	}
	return r.Schema(), rec
}

func meta(t *testing.T, s *arrow.Schema, key string) string {
	t.Helper()
	md := s.Metadata()
	i := md.FindKey(key)
	if i < 0 {
		t.Fatalf("metadata %q missing", key)
	}
	return md.Values()[i]
}

func column(t *testing.T, s *arrow.Schema, rec arrow.Record, name string) arrow.Array {
	t.Helper()
	idx := s.FieldIndices(name)
	if len(idx) != 1 {
		t.Fatalf("column %q: %d matches", name, len(idx))
	}
	return rec.Column(idx[0])
}

func TestWriteProfile(t *testing.T) {
	p := sample()
	var buf bytes.Buffer
	if err := WriteProfile(&buf, p); err != nil {
		t.Fatal(err)
	}
	schema, rec := readBack(t, buf.Bytes())

	if rec.NumRows() != 4 {
		t.Errorf("rows = %d, want 4", rec.NumRows())
	}
	if got := rec.NumCols(); got != int64(2+len(profile.Signals)) {
		t.Errorf("cols = %d", got)
	}
	if diff := cmp.Diff([]float64(p.Time), column(t, schema, rec, ColumnTime).(*array.Float64).Float64Values()); diff != "" {
		t.Errorf("time (-want +got):\n%s", diff)
	}
	for _, sig := range profile.Signals {
		got := column(t, schema, rec, sig.Short()).(*array.Float64).Float64Values()
		if diff := cmp.Diff(p.Series(sig), got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", sig, diff)
		}
	}
	div := column(t, schema, rec, ColumnDiverged).(*array.Boolean)
	for i, want := range p.Diverged {
		if div.Value(i) != want {
			t.Errorf("diverged[%d] = %v, want %v", i, div.Value(i), want)
		}
	}
	if got := meta(t, schema, MetaSystem); got != "demo" {
		t.Errorf("system = %q", got)
	}
	if got := meta(t, schema, MetaAlgorithm); got != "sm" {
		t.Errorf("algorithm = %q", got)
	}
	if got := meta(t, schema, MetaTrial); got != "2" {
		t.Errorf("trial = %q", got)
	}
}

func TestWriteProfile_RejectsMisaligned(t *testing.T) {
	p := sample()
	p.EnergyBalance = p.EnergyBalance[:2]
	var buf bytes.Buffer
	if err := WriteProfile(&buf, p); err == nil {
		t.Error("misaligned profile exported")
	}
}

func TestWriteMean(t *testing.T) {
	a := &profile.Profile{System: "demo", Algorithm: flowsheet.PhenomenaOriented}
	b := &profile.Profile{System: "demo", Algorithm: flowsheet.PhenomenaOriented}
	for i, tm := range []float64{0, 1, 2, 3} {
		a.Append(profile.Sample{Time: tm, FlowError: -float64(i)})
		b.Append(profile.Sample{Time: tm + 1, FlowError: -float64(i) - 1, Diverged: i == 1})
	}
	m, err := reduce.Mean([]*profile.Profile{a, b}, profile.FlowError)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteMean(&buf, m); err != nil {
		t.Fatal(err)
	}
	schema, rec := readBack(t, buf.Bytes())

	if rec.NumRows() != int64(len(m.Time)) {
		t.Fatalf("rows = %d, want %d", rec.NumRows(), len(m.Time))
	}
	mean := column(t, schema, rec, "flow_error_mean").(*array.Float64)
	if !mean.IsNull(0) {
		t.Error("undefined mean exported as a value")
	}
	c := m.Curve(profile.FlowError)
	for i := 1; i < len(m.Time); i++ {
		if mean.IsNull(i) || mean.Value(i) != c.Mean[i] {
			t.Errorf("mean[%d] = %v, want %g", i, mean.Value(i), c.Mean[i])
		}
	}
	counts := column(t, schema, rec, "flow_error_count").(*array.Int64).Int64Values()
	if counts[0] != 0 || counts[1] != 2 {
		t.Errorf("counts = %v", counts)
	}
	div := column(t, schema, rec, ColumnDiverged).(*array.Int64).Int64Values()
	if div[1] != 1 {
		t.Errorf("diverged = %v", div)
	}
	if got := meta(t, schema, MetaTrials); got != "2" {
		t.Errorf("trials = %q", got)
	}
	if len(schema.FieldIndices("temperature_error_mean")) != 0 {
		t.Error("unreduced signal exported")
	}
}
