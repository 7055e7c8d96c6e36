package shield

import (
	"testing"
)

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
		wantSeg int
	}{
		{"literal", "/api/users", false, 2},
		{"parameter", "/api/users/{id}", false, 3},
		{"tail wildcard", "/api/admin/*", false, 3},
		{"mid wildcard", "/api/*/settings", false, 3},
		{"no leading slash", "api/users", false, 2},
		{"empty", "", true, 0},
		{"whitespace", "   ", true, 0},
		{"slashes only", "///", true, 0},
		{"empty parameter name", "/api/{}/x", true, 0},
		{"unmatched open brace", "/api/{id/x", true, 0},
		{"unmatched close brace", "/api/id}/x", true, 0},
		{"duplicate parameter", "/api/{id}/sub/{id}", true, 0},
		{"embedded wildcard", "/api/us*rs", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp, err := CompilePattern(tt.pattern)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.pattern)
				}
				perr, ok := err.(*PatternError)
				if !ok {
					t.Fatalf("expected *PatternError, got %T", err)
				}
				if len(perr.Problems) == 0 {
					t.Fatalf("expected problems recorded")
				}
				return
			}
			if err != nil {
				t.Fatalf("compile %q: %v", tt.pattern, err)
			}
			if len(cp.Segments) != tt.wantSeg {
				t.Fatalf("expected %d segments, got %d", tt.wantSeg, len(cp.Segments))
			}
		})
	}
}

func TestPatternMatchParameterBinding(t *testing.T) {
	cp, err := CompilePattern("/api/users/{id}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	params, ok := cp.MatchURI("/api/users/42")
	if !ok {
		t.Fatalf("expected match")
	}
	if params["id"] != "42" {
		t.Fatalf("expected id=42, got %v", params)
	}
	if _, ok := cp.MatchURI("/api/users"); ok {
		t.Fatalf("parameter pattern must not match shorter uri")
	}
	if _, ok := cp.MatchURI("/api/users/42/extra"); ok {
		t.Fatalf("parameter pattern must not match longer uri")
	}
}

func TestPatternMatchCaseInsensitiveLiterals(t *testing.T) {
	cp, _ := CompilePattern("/API/Users")
	if _, ok := cp.MatchURI("/api/users"); !ok {
		t.Fatalf("literal matching should ignore case")
	}
}

func TestPatternMatchTailWildcard(t *testing.T) {
	cp, _ := CompilePattern("/api/admin/*")
	if _, ok := cp.MatchURI("/api/admin/settings/advanced"); !ok {
		t.Fatalf("tail wildcard should match remainder of path")
	}
	if _, ok := cp.MatchURI("/api/admin/settings"); !ok {
		t.Fatalf("tail wildcard should match one segment")
	}
	if _, ok := cp.MatchURI("/api/admin"); !ok {
		t.Fatalf("tail wildcard should match empty remainder")
	}
	if _, ok := cp.MatchURI("/api/other"); ok {
		t.Fatalf("literal prefix must still be honored")
	}
}

func TestPatternMatchMidWildcardIsSingleSegment(t *testing.T) {
	cp, _ := CompilePattern("/api/*/settings")
	if _, ok := cp.MatchURI("/api/admin/settings"); !ok {
		t.Fatalf("mid wildcard should match one segment")
	}
	if _, ok := cp.MatchURI("/api/a/b/settings"); ok {
		t.Fatalf("mid wildcard must not span segments")
	}
}

func TestPatternMatchTrailingSlashNormalized(t *testing.T) {
	cp, _ := CompilePattern("/api/users")
	if _, ok := cp.MatchURI("/api/users/"); !ok {
		t.Fatalf("trailing slash should be trimmed before matching")
	}
	if _, ok := cp.MatchURI("/api/users?page=2"); !ok {
		t.Fatalf("query string should be ignored")
	}
}

func TestPatternScoreOrdering(t *testing.T) {
	literal, _ := CompilePattern("/api/users/all")
	param, _ := CompilePattern("/api/users/{id}")
	wild, _ := CompilePattern("/api/users/*")

	if literal.Score() <= param.Score() {
		t.Fatalf("literal must outrank parameter: %d vs %d", literal.Score(), param.Score())
	}
	if param.Score() <= wild.Score() {
		t.Fatalf("parameter must outrank wildcard: %d vs %d", param.Score(), wild.Score())
	}
}

func TestPatternConfidence(t *testing.T) {
	literal, _ := CompilePattern("/api/users")
	if literal.Confidence() != 1.0 {
		t.Fatalf("pure literal confidence must be 1.0, got %f", literal.Confidence())
	}
	param, _ := CompilePattern("/api/users/{id}")
	if c := param.Confidence(); c >= 1.0 || c <= 0 {
		t.Fatalf("parameterized confidence must be in (0,1), got %f", c)
	}
	wild, _ := CompilePattern("/api/*")
	if wild.Confidence() >= param.Confidence() {
		t.Fatalf("wildcard confidence must rank below parameter confidence")
	}
}

func TestClassifyProtection(t *testing.T) {
	literal, _ := CompilePattern("/api/users")
	param, _ := CompilePattern("/api/users/{id}")
	wild, _ := CompilePattern("/api/*")

	tests := []struct {
		name    string
		matches []*CompiledPattern
		want    ProtectionLevel
	}{
		{"no matches", nil, Unprotected},
		{"literal wins", []*CompiledPattern{wild, param, literal}, FullyProtected},
		{"parameter", []*CompiledPattern{param, wild}, ParameterProtected},
		{"wildcard only", []*CompiledPattern{wild}, WildcardProtected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyProtection(tt.matches); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLiteralPrefix(t *testing.T) {
	cp, _ := CompilePattern("/api/users/{id}/posts")
	prefix := cp.LiteralPrefix()
	if len(prefix) != 2 || prefix[0] != "api" || prefix[1] != "users" {
		t.Fatalf("expected [api users], got %v", prefix)
	}
}
