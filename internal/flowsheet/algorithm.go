package flowsheet

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAlgorithm is returned when an algorithm name does not resolve to
// one of the supported convergence strategies.
var ErrInvalidAlgorithm = errors.New("invalid algorithm")

// Algorithm identifies a flowsheet convergence strategy.
type Algorithm int

const (
	// SequentialModular solves the flowsheet unit by unit in topological passes.
	SequentialModular Algorithm = iota + 1

	// PhenomenaOriented solves equilibrium and balance phenomena jointly
	// across all stages on every iteration.
	PhenomenaOriented
)

// Algorithms lists the supported strategies in reporting order.
var Algorithms = []Algorithm{SequentialModular, PhenomenaOriented}

// ParseAlgorithm resolves a user-supplied name. Spaces, dashes and
// underscores are interchangeable and matching is case-insensitive, so
// "Phenomena oriented", "phenomena-oriented" and "po" are all accepted.
// Anything else fails; there is no default.
func ParseAlgorithm(name string) (Algorithm, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.NewReplacer("-", " ", "_", " ").Replace(normalized)
	switch normalized {
	case "sequential modular", "sm":
		return SequentialModular, nil
	case "phenomena oriented", "phenomena based", "po":
		return PhenomenaOriented, nil
	default:
		return 0, fmt.Errorf("%w: %q (valid: sequential modular, phenomena oriented)", ErrInvalidAlgorithm, name)
	}
}

// String returns the human-readable name.
func (a Algorithm) String() string {
	switch a {
	case SequentialModular:
		return "Sequential modular"
	case PhenomenaOriented:
		return "Phenomena oriented"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// Short returns the two-letter abbreviation used in profile file names.
func (a Algorithm) Short() string {
	switch a {
	case SequentialModular:
		return "sm"
	case PhenomenaOriented:
		return "po"
	default:
		return "unknown"
	}
}

// Slug returns a file-name safe identifier, e.g. "phenomena-oriented".
func (a Algorithm) Slug() string {
	return strings.ReplaceAll(strings.ToLower(a.String()), " ", "-")
}

// Valid reports whether a is one of the supported strategies.
func (a Algorithm) Valid() bool {
	return a == SequentialModular || a == PhenomenaOriented
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAlgorithm, int(a))
	}
	return []byte(a.Slug()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
