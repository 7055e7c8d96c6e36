package shield

import (
	"fmt"
	"strings"

	"github.com/oarkflow/shield/utils"
)

// ============================================================================
// PATTERN COMPILER
// ============================================================================

// SegmentKind classifies one compiled pattern segment.
type SegmentKind uint8

const (
	SegmentLiteral SegmentKind = iota
	SegmentParameter
	SegmentWildcard
)

// Segment is a single compiled element of a URI pattern. Value holds the
// literal text for SegmentLiteral and the parameter name for SegmentParameter.
type Segment struct {
	Kind  SegmentKind `json:"kind"`
	Value string      `json:"value,omitempty"`
}

// Specificity weights. A literal segment always outweighs any number of
// parameter segments in a pattern of the same length, and a parameter
// always outweighs a wildcard.
const (
	literalWeight   = 100
	parameterWeight = 10
	wildcardWeight  = 1
)

// CompiledPattern is the matchable form of a resource URI. It is immutable
// once built and safe for concurrent use.
type CompiledPattern struct {
	Raw      string    `json:"raw"`
	Segments []Segment `json:"segments"`

	literals     int
	parameters   int
	wildcards    int
	tailWildcard bool
}

// CompilePattern parses a raw URI pattern into its segment form.
// Segment grammar: plain text is a literal, "{name}" is a named parameter,
// "*" is a wildcard. A wildcard in the final position matches the remainder
// of the path (possibly empty); anywhere else it matches exactly one segment.
// Compilation is pure and deterministic, suitable for caching by raw string.
func CompilePattern(raw string) (*CompiledPattern, error) {
	perr := &PatternError{Pattern: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		perr.Problems = append(perr.Problems, "pattern is empty")
		return nil, perr
	}

	parts := utils.SplitSegments(trimmed)
	if len(parts) == 0 {
		perr.Problems = append(perr.Problems, "pattern has no path segments")
		return nil, perr
	}

	cp := &CompiledPattern{Raw: raw, Segments: make([]Segment, 0, len(parts))}
	seen := make(map[string]struct{}, 2)
	for i, part := range parts {
		switch {
		case part == "*":
			cp.wildcards++
			cp.Segments = append(cp.Segments, Segment{Kind: SegmentWildcard})
			if i == len(parts)-1 {
				cp.tailWildcard = true
			}
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			if name == "" {
				perr.Problems = append(perr.Problems, fmt.Sprintf("segment %d: empty parameter name", i+1))
				continue
			}
			if strings.ContainsAny(name, "{}") {
				perr.Problems = append(perr.Problems, fmt.Sprintf("segment %d: nested braces in parameter %q", i+1, part))
				continue
			}
			if _, dup := seen[name]; dup {
				perr.Problems = append(perr.Problems, fmt.Sprintf("segment %d: duplicate parameter name %q", i+1, name))
				continue
			}
			seen[name] = struct{}{}
			cp.parameters++
			cp.Segments = append(cp.Segments, Segment{Kind: SegmentParameter, Value: name})
		case strings.ContainsAny(part, "{}"):
			perr.Problems = append(perr.Problems, fmt.Sprintf("segment %d: unmatched '{' or '}' in %q", i+1, part))
		case strings.Contains(part, "*"):
			perr.Problems = append(perr.Problems, fmt.Sprintf("segment %d: wildcard must occupy the whole segment, got %q", i+1, part))
		default:
			cp.literals++
			cp.Segments = append(cp.Segments, Segment{Kind: SegmentLiteral, Value: part})
		}
	}
	if len(perr.Problems) > 0 {
		return nil, perr
	}
	return cp, nil
}

// IsLiteral reports whether the pattern consists of literal segments only.
func (p *CompiledPattern) IsLiteral() bool {
	return p.parameters == 0 && p.wildcards == 0
}

// HasParameter reports whether any segment is a named parameter.
func (p *CompiledPattern) HasParameter() bool { return p.parameters > 0 }

// HasWildcard reports whether any segment is a wildcard.
func (p *CompiledPattern) HasWildcard() bool { return p.wildcards > 0 }

// Score is the specificity of the pattern. Higher scores win when several
// patterns match the same URI.
func (p *CompiledPattern) Score() int {
	return p.literals*literalWeight + p.parameters*parameterWeight + p.wildcards*wildcardWeight
}

// Confidence normalizes Score into 0..1. A pure-literal pattern scores
// exactly 1.0; parameters and wildcards pull the value down.
func (p *CompiledPattern) Confidence() float64 {
	if len(p.Segments) == 0 {
		return 0
	}
	return float64(p.Score()) / float64(len(p.Segments)*literalWeight)
}

// LiteralPrefix returns the leading literal segments of the pattern, used
// for base-path discovery.
func (p *CompiledPattern) LiteralPrefix() []string {
	out := make([]string, 0, len(p.Segments))
	for _, s := range p.Segments {
		if s.Kind != SegmentLiteral {
			break
		}
		out = append(out, s.Value)
	}
	return out
}

// Match attempts the pattern against pre-split URI segments. On success it
// returns the extracted parameter bindings (never nil). Literal comparison
// is case-insensitive.
func (p *CompiledPattern) Match(segments []string) (map[string]string, bool) {
	n := len(p.Segments)
	if p.tailWildcard {
		// the tail wildcard may match zero or more remaining segments
		if len(segments) < n-1 {
			return nil, false
		}
	} else if len(segments) != n {
		return nil, false
	}

	params := make(map[string]string, p.parameters)
	for i, seg := range p.Segments {
		switch seg.Kind {
		case SegmentLiteral:
			if !utils.SegmentsEqualFold(seg.Value, segments[i]) {
				return nil, false
			}
		case SegmentParameter:
			params[seg.Value] = segments[i]
		case SegmentWildcard:
			if i == n-1 && p.tailWildcard {
				return params, true
			}
			// single-segment wildcard, nothing to record
		}
	}
	return params, true
}

// MatchURI is a convenience wrapper over Match for a raw URI string.
func (p *CompiledPattern) MatchURI(uri string) (map[string]string, bool) {
	return p.Match(utils.SplitSegments(utils.NormalizeURI(uri)))
}

// ============================================================================
// PROTECTION CLASSIFIER
// ============================================================================

// ProtectionLevel is the coarse classification of how strongly a URI is
// governed by the configured resources.
type ProtectionLevel string

const (
	Unprotected        ProtectionLevel = "unprotected"
	FullyProtected     ProtectionLevel = "fully_protected"
	ParameterProtected ProtectionLevel = "parameter_protected"
	WildcardProtected  ProtectionLevel = "wildcard_protected"
	PartiallyProtected ProtectionLevel = "partially_protected"
)

// ClassifyProtection derives the aggregate protection level for the set of
// patterns that matched a URI. Priority order, first satisfied wins:
// no matches, any pure-literal pattern, any parameterized pattern, any
// wildcard pattern, then the mixed fallback. Pure function over pattern
// shape; match confidence plays no part.
func ClassifyProtection(matches []*CompiledPattern) ProtectionLevel {
	if len(matches) == 0 {
		return Unprotected
	}
	hasParam, hasWild := false, false
	for _, p := range matches {
		if p == nil {
			continue
		}
		if p.IsLiteral() {
			return FullyProtected
		}
		if p.HasParameter() {
			hasParam = true
		}
		if p.HasWildcard() {
			hasWild = true
		}
	}
	switch {
	case hasParam:
		return ParameterProtected
	case hasWild:
		return WildcardProtected
	default:
		return PartiallyProtected
	}
}
