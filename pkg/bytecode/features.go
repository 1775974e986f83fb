package bytecode

import (
	"errors"
	"fmt"
	"strings"
)

// Feature is a named group of instructions a host may or may not provide.
type Feature uint8

const (
	FeatureControlFlow Feature = iota
	FeatureRegisters
	FeatureStack
	FeatureStdIO
	FeatureFileIO
	FeatureMath
	FeatureObjects
	FeatureStrings
)

var featureNames = [...]string{
	FeatureControlFlow: "control_flow",
	FeatureRegisters:   "registers",
	FeatureStack:       "stack",
	FeatureStdIO:       "std_io",
	FeatureFileIO:      "file_io",
	FeatureMath:        "math",
	FeatureObjects:     "objects",
	FeatureStrings:     "strings",
}

// ErrMissingFeature is returned when a host lacks a feature a program
// declares essential.
var ErrMissingFeature = errors.New("missing essential feature")

// ErrUnknownFeature is returned when parsing an unrecognized feature name.
var ErrUnknownFeature = errors.New("unknown feature")

func (f Feature) String() string {
	if int(f) < len(featureNames) {
		return featureNames[f]
	}
	return fmt.Sprintf("Feature(%d)", f)
}

// ParseFeature returns the feature with the given name.
func ParseFeature(name string) (Feature, error) {
	for i, n := range featureNames {
		if n == name {
			return Feature(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownFeature, name)
}

// FeatureSet is a bitset of features.
type FeatureSet uint8

// AllFeatures contains every feature.
const AllFeatures FeatureSet = 0xFF

// NewFeatureSet returns a set containing fs.
func NewFeatureSet(fs ...Feature) FeatureSet {
	var s FeatureSet
	for _, f := range fs {
		s |= 1 << f
	}
	return s
}

// ParseFeatureSet builds a set from feature names.
func ParseFeatureSet(names []string) (FeatureSet, error) {
	var s FeatureSet
	for _, n := range names {
		f, err := ParseFeature(n)
		if err != nil {
			return 0, err
		}
		s |= 1 << f
	}
	return s, nil
}

// Has reports whether f is in the set.
func (s FeatureSet) Has(f Feature) bool {
	return s&(1<<f) != 0
}

// With returns the set with f added.
func (s FeatureSet) With(f Feature) FeatureSet {
	return s | 1<<f
}

// Features lists the members in bit order.
func (s FeatureSet) Features() []Feature {
	var out []Feature
	for f := Feature(0); f < 8; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Names lists member names in bit order.
func (s FeatureSet) Names() []string {
	var out []string
	for _, f := range s.Features() {
		out = append(out, f.String())
	}
	return out
}

func (s FeatureSet) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), " ")
}

// Negotiate checks a program's declared features against the features a
// host supports. It fails if any essential feature is missing and
// otherwise returns the enabled set: declared features the host provides.
// Optional features the host lacks are reported in unavailable.
func Negotiate(p *Program, supported FeatureSet) (enabled, unavailable FeatureSet, err error) {
	if missing := p.Essential &^ supported; missing != 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrMissingFeature, missing)
	}
	declared := p.Essential | p.Optional
	return declared & supported, p.Optional &^ supported, nil
}
