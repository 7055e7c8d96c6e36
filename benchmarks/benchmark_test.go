package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/oarkflow/shield"
)

func newBenchEngine(b *testing.B, n int) *shield.Engine {
	b.Helper()
	eng, err := shield.NewEngine(shield.NewMemoryResourceStore(), nil)
	if err != nil {
		b.Fatalf("new engine: %v", err)
	}
	b.Cleanup(func() { eng.Close() })

	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := eng.CreateResource(ctx, shield.CreateResourceRequest{
			URI: fmt.Sprintf("/api/svc%d/items/{id}", i),
		})
		if err != nil {
			b.Fatalf("seed resource %d: %v", i, err)
		}
	}
	_, err = eng.CreateResource(ctx, shield.CreateResourceRequest{URI: "/api/users/{id}/posts/{post_id}"})
	if err != nil {
		b.Fatalf("seed target: %v", err)
	}
	return eng
}

func BenchmarkShieldResolve(b *testing.B) {
	eng := newBenchEngine(b, 100)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		res, err := eng.Resolve(ctx, "/api/users/42/posts/7")
		if err != nil || res == nil {
			b.Fatalf("resolve failed: %v %v", res, err)
		}
	}
}

func BenchmarkShieldResolveUncached(b *testing.B) {
	eng, err := shield.NewEngine(shield.NewMemoryResourceStore(), nil, shield.WithResolveCacheTTL(0))
	if err != nil {
		b.Fatalf("new engine: %v", err)
	}
	defer eng.Close()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if _, err := eng.CreateResource(ctx, shield.CreateResourceRequest{URI: fmt.Sprintf("/api/svc%d/items/{id}", i)}); err != nil {
			b.Fatalf("seed: %v", err)
		}
	}
	if _, err := eng.CreateResource(ctx, shield.CreateResourceRequest{URI: "/api/users/{id}/posts/{post_id}"}); err != nil {
		b.Fatalf("seed: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		res, err := eng.Resolve(ctx, "/api/users/42/posts/7")
		if err != nil || res == nil {
			b.Fatalf("resolve failed: %v %v", res, err)
		}
	}
}

func BenchmarkShieldProtectionStatus(b *testing.B) {
	eng := newBenchEngine(b, 100)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := eng.ProtectionStatus(ctx, "/api/users/42/posts/7"); err != nil {
			b.Fatalf("status failed: %v", err)
		}
	}
}

func BenchmarkShieldCompilePattern(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := shield.CompilePattern("/api/users/{id}/posts/{post_id}/comments/*"); err != nil {
			b.Fatalf("compile failed: %v", err)
		}
	}
}

func BenchmarkShieldPatternMatch(b *testing.B) {
	cp, err := shield.CompilePattern("/api/users/{id}/posts/{post_id}")
	if err != nil {
		b.Fatalf("compile: %v", err)
	}
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, ok := cp.MatchURI("/api/users/42/posts/7"); !ok {
			b.Fatalf("expected match")
		}
	}
}

// Casbin's keyMatch2 covers the same /:param URL matching problem; this is
// the closest like-for-like comparison point.
func BenchmarkCasbinKeyMatch2(b *testing.B) {
	modelText := `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch2(r.obj, p.obj) && r.act == p.act
`

	m, err := model.NewModelFromString(modelText)
	if err != nil {
		b.Fatalf("model: %v", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		b.Fatalf("enforcer: %v", err)
	}
	for i := 0; i < 100; i++ {
		if _, err := e.AddPolicy("svc", fmt.Sprintf("/api/svc%d/items/:id", i), "GET"); err != nil {
			b.Fatalf("add policy: %v", err)
		}
	}
	if _, err := e.AddPolicy("svc", "/api/users/:id/posts/:post_id", "GET"); err != nil {
		b.Fatalf("add policy: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ok, err := e.Enforce("svc", "/api/users/42/posts/7", "GET")
		if err != nil || !ok {
			b.Fatalf("enforce failed: %v %v", ok, err)
		}
	}
}
