// Package constants provides named constants used throughout convbench.
// This centralizes defaults shared by the configuration and the core
// packages.
package constants

// Directory layout
const (
	// ConfigDirName is the per-user settings directory under $HOME.
	ConfigDirName = ".convbench"

	// ConfigFileName is the YAML settings file inside ConfigDirName.
	ConfigFileName = "config.yaml"

	// CacheDirName is the default cache directory inside ConfigDirName.
	CacheDirName = "cache"
)

// Solver tolerances handed to tracked simulations.
const (
	// DefaultRelativeTolerance is the relative molar tolerance.
	DefaultRelativeTolerance = 1e-16

	// DefaultAbsoluteTolerance is the absolute molar tolerance.
	DefaultAbsoluteTolerance = 1e-9
)

// Benchmark defaults
const (
	// DefaultTrials is the number of profiles run per algorithm.
	DefaultTrials = 5

	// DefaultSteadyStateOffset is added to a profile's final combined error,
	// in decades, to obtain its steady-state cutoff.
	DefaultSteadyStateOffset = 1.0

	// DefaultDiscardWarmup drops the first trial from mean curves when
	// more than one trial is run.
	DefaultDiscardWarmup = true

	// MaxTrials bounds configured trial counts.
	MaxTrials = 1000
)

// DefaultAgreementTolerance is both the relative and the absolute tolerance
// used when comparing the reference flows of the two algorithms.
const DefaultAgreementTolerance = 0.01

// DefaultLogLevel is the operational log level.
const DefaultLogLevel = "info"
