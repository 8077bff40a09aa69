package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"scoutd/internal/config"
)

func TestSplitModelID(t *testing.T) {
	cases := []struct {
		id, repo, file string
	}{
		{"acme/tiny", "acme/tiny", "model.gguf"},
		{"acme/tiny/weights.q4.gguf", "acme/tiny", "weights.q4.gguf"},
		{"meta-llama/Llama-4-Scout-17B-16E-Instruct", "meta-llama/Llama-4-Scout-17B-16E-Instruct", "model.gguf"},
	}
	for _, c := range cases {
		repo, file := splitModelID(c.id)
		if repo != c.repo || file != c.file {
			t.Fatalf("splitModelID(%q) = %q, %q; want %q, %q", c.id, repo, file, c.repo, c.file)
		}
	}
}

func TestResolveModelPathLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.gguf")
	if err := os.WriteFile(path, []byte("GGUF"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ResolveModelPath(context.Background(), config.ModelConfig{ModelID: path}, zerolog.Nop())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != path {
		t.Fatalf("expected pass-through, got %q", got)
	}
}

func TestResolveModelPathCacheHit(t *testing.T) {
	cache := t.TempDir()
	dest := filepath.Join(cache, "acme--tiny", "model.gguf")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("GGUF"), 0o644); err != nil {
		t.Fatal(err)
	}
	mc := config.ModelConfig{ModelID: "acme/tiny", CacheDir: cache}
	got, err := ResolveModelPath(context.Background(), mc, zerolog.Nop())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != dest {
		t.Fatalf("expected cache hit at %q, got %q", dest, got)
	}
}

func TestResolveModelPathRequiresToken(t *testing.T) {
	mc := config.ModelConfig{ModelID: "acme/tiny", CacheDir: t.TempDir()}
	if _, err := ResolveModelPath(context.Background(), mc, zerolog.Nop()); err == nil {
		t.Fatalf("fetch without a token must fail before any network call")
	}
}
