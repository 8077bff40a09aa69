package runtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"scoutd/internal/common/fsutil"
	"scoutd/internal/config"
)

const hubBaseURL = "https://huggingface.co"

// ResolveModelPath maps the configured model identifier to a local
// checkpoint file. An identifier that is already a path to an existing
// file is used directly; anything else is treated as a hub repository
// and fetched into the cache directory, authenticated with the access
// token. Fetching retries transient failures with exponential backoff.
func ResolveModelPath(ctx context.Context, mc config.ModelConfig, log zerolog.Logger) (string, error) {
	if local, err := fsutil.ExpandHome(mc.ModelID); err == nil && fileExists(local) {
		return local, nil
	}

	cacheDir, err := fsutil.ExpandHome(mc.CacheDir)
	if err != nil {
		return "", err
	}
	repo, file := splitModelID(mc.ModelID)
	dest := filepath.Join(cacheDir, strings.ReplaceAll(repo, "/", "--"), file)
	if fileExists(dest) {
		log.Debug().Str("path", dest).Msg("checkpoint already cached")
		return dest, nil
	}

	if mc.HFToken == "" {
		return "", fmt.Errorf("HF_TOKEN is required to fetch %s from the hub", repo)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", hubBaseURL, repo, file)
	log.Info().Str("url", url).Str("dest", dest).Msg("fetching checkpoint")

	op := func() error { return downloadTo(ctx, url, mc.HFToken, dest) }
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Minute
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", fmt.Errorf("checkpoint fetch failed: %w", err)
	}
	return dest, nil
}

// splitModelID separates an "org/repo" or "org/repo/weights.gguf"
// identifier into repository and file name.
func splitModelID(id string) (repo, file string) {
	parts := strings.Split(id, "/")
	last := parts[len(parts)-1]
	if len(parts) > 2 && strings.Contains(last, ".") {
		return strings.Join(parts[:len(parts)-1], "/"), last
	}
	return id, "model.gguf"
}

func downloadTo(ctx context.Context, url, token, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		// Retrying cannot fix credentials or a missing repo.
		return backoff.Permanent(fmt.Errorf("hub returned status %d for %s", resp.StatusCode, url))
	default:
		return fmt.Errorf("hub returned status %d for %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
