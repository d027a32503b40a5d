package flowsheet

// UnitKind distinguishes plain stages from units made of inner stages.
type UnitKind int

const (
	// Leaf units are stages themselves.
	Leaf UnitKind = iota

	// Composite units (columns, mixer-settler trains) contribute their inner
	// stages instead of themselves.
	Composite
)

// Unit is a node of the flowsheet's unit path. Whether it is a leaf or a
// composite is decided when the unit is constructed.
type Unit struct {
	tag    string
	kind   UnitKind
	stages []Stage
}

// LeafUnit wraps a single stage.
func LeafUnit(tag string, stage Stage) Unit {
	return Unit{tag: tag, kind: Leaf, stages: []Stage{stage}}
}

// CompositeUnit groups inner stages under one node tag.
func CompositeUnit(tag string, stages ...Stage) Unit {
	inner := make([]Stage, len(stages))
	copy(inner, stages)
	return Unit{tag: tag, kind: Composite, stages: inner}
}

// NodeTag returns the unit's stable ordering key.
func (u Unit) NodeTag() string { return u.tag }

// Kind returns Leaf or Composite.
func (u Unit) Kind() UnitKind { return u.kind }

// Stages returns the stages the unit contributes: itself for a leaf, its
// inner stages for a composite.
func (u Unit) Stages() []Stage { return u.stages }
