package convergence

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/convbench/internal/constants"
	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/profile"
)

// ErrNodeTagMismatch means a cached reference was computed for a different
// stream set than the one being tracked.
var ErrNodeTagMismatch = errors.New("node tags do not match reference")

// ErrLayoutMismatch means the tracked flow vector has a different shape than
// the reference's.
var ErrLayoutMismatch = errors.New("flow layout does not match reference")

// ConsistencyError reports where tracked streams and a reference diverge.
type ConsistencyError struct {
	Key   string
	Index int // first mismatching position, or -1 on length mismatch
	Want  string
	Got   string
	NWant int
	NGot  int
}

func (e *ConsistencyError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("reference %s: %d node tags, tracking %d streams", e.Key, e.NWant, e.NGot)
	}
	return fmt.Sprintf("reference %s: node tag %d is %q, tracked stream is %q", e.Key, e.Index, e.Want, e.Got)
}

func (e *ConsistencyError) Unwrap() error { return ErrNodeTagMismatch }

// Key identifies one reference steady state.
type Key struct {
	System    string
	Algorithm flowsheet.Algorithm
	Params    flowsheet.Params

	// Fingerprint identifies the revision of the system model and the solver
	// tolerances. References cached under a different fingerprint are
	// recomputed.
	Fingerprint string
}

// Name returns the cache blob name:
// "{algorithm}_{system}[_{k}_{v}...]_steady_state".
func (k Key) Name() string {
	parts := []string{k.Algorithm.Slug(), k.System}
	if p := k.Params.Key(); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, "steady_state")
	return strings.Join(parts, "_")
}

func (k Key) String() string {
	s := k.System + "/" + k.Algorithm.Short()
	if p := k.Params.Key(); p != "" {
		s += "/" + p
	}
	return s
}

// Reference is an extended-iteration approximation of the converged plant
// state. It is immutable once persisted.
type Reference struct {
	Flows        profile.Series `json:"flows"`
	Temperatures profile.Series `json:"temperatures"`
	NodeTags     []string       `json:"node_tags"`
	Phases       [][]string     `json:"phases"`

	// Benchmark is Σ stage flow errors + Σ stage temperature errors +
	// Σ|Δflows| across one extra step; how much was still moving.
	Benchmark float64 `json:"benchmark"`
}

// CheckTags asserts that tags match the reference's node tags exactly.
func CheckTags(key string, ref *Reference, tags []string) error {
	if len(ref.NodeTags) != len(tags) {
		return &ConsistencyError{Key: key, Index: -1, NWant: len(ref.NodeTags), NGot: len(tags)}
	}
	for i, tag := range tags {
		if ref.NodeTags[i] != tag {
			return &ConsistencyError{Key: key, Index: i, Want: ref.NodeTags[i], Got: tag, NWant: len(ref.NodeTags), NGot: len(tags)}
		}
	}
	return nil
}

// Disagreement is one flow entry on which two references differ.
type Disagreement struct {
	NodeTag string  `json:"node_tag"`
	Phase   string  `json:"phase,omitempty"`
	Index   int     `json:"index"`
	A       float64 `json:"a"`
	B       float64 `json:"b"`
}

// DefaultAgreementTolerance is the rtol and atol used when comparing the
// references of the two algorithms.
const DefaultAgreementTolerance = constants.DefaultAgreementTolerance

// Agreement compares the flows of two references of the same system and
// returns every entry where |a−b| > atol + rtol·|b|. Distinct steady states
// reached by the two algorithms show up here.
func Agreement(a, b *Reference, rtol, atol float64) ([]Disagreement, error) {
	if err := CheckTags("agreement", a, b.NodeTags); err != nil {
		return nil, err
	}
	if len(a.Flows) != len(b.Flows) {
		return nil, fmt.Errorf("flow vectors differ in length: %d vs %d", len(a.Flows), len(b.Flows))
	}
	slots := 0
	for _, phases := range a.Phases {
		slots += len(phases)
	}
	if slots == 0 || len(a.Flows)%slots != 0 {
		return nil, fmt.Errorf("phase layout does not divide %d flows", len(a.Flows))
	}
	chemicals := len(a.Flows) / slots

	var out []Disagreement
	offset := 0
	for i, phases := range a.Phases {
		for _, phase := range phases {
			if len(phases) == 1 {
				phase = ""
			}
			for j := 0; j < chemicals; j++ {
				x, y := a.Flows[offset+j], b.Flows[offset+j]
				if math.Abs(x-y) > atol+rtol*math.Abs(y) {
					out = append(out, Disagreement{NodeTag: a.NodeTags[i], Phase: phase, Index: j, A: x, B: y})
				}
			}
			offset += chemicals
		}
	}
	return out, nil
}
