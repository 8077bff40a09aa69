// Package worker integrates the inference handler with the job-queue
// platform: it takes one job at a time, runs the handler synchronously,
// and posts the envelope back. Concurrency across requests belongs to
// the platform spinning up more workers, not to this loop.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"scoutd/internal/config"
	"scoutd/pkg/types"
)

// HandlerFunc is the registration contract: one event in, one envelope
// out, never a panic.
type HandlerFunc func(ctx context.Context, event json.RawMessage) types.Envelope

// job is the queue's wire shape for one unit of work.
type job struct {
	ID    string          `json:"id"`
	Input json.RawMessage `json:"input"`
}

type Worker struct {
	cfg    config.PlatformConfig
	handle HandlerFunc
	client *http.Client
	log    zerolog.Logger
}

func New(cfg config.PlatformConfig, handle HandlerFunc, log zerolog.Logger) *Worker {
	return &Worker{
		cfg:    cfg,
		handle: handle,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

// Run polls the queue until ctx is canceled. Transport errors back off
// exponentially; an empty queue waits the configured poll interval.
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.EndpointID == "" || w.cfg.APIKey == "" {
		return fmt.Errorf("worker loop cannot start: endpoint id and api key are required")
	}
	w.log.Info().Str("endpoint_id", w.cfg.EndpointID).Msg("worker loop started, ready to accept requests")

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // poll forever

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker loop stopped")
			return nil
		default:
		}

		j, err := w.takeJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			w.log.Warn().Err(err).Dur("retry_in", wait).Msg("job take failed")
			sleep(ctx, wait)
			continue
		}
		bo.Reset()

		if j == nil {
			sleep(ctx, w.cfg.PollWait)
			continue
		}

		w.log.Info().Str("job_id", j.ID).Msg("job received")
		event, _ := json.Marshal(types.Event{Input: j.Input})
		env := w.handle(ctx, event)
		if err := w.postResult(ctx, j.ID, env); err != nil {
			w.log.Error().Err(err).Str("job_id", j.ID).Msg("failed to deliver job result")
		}
	}
}

func (w *Worker) endpointURL(parts ...string) string {
	url := w.cfg.BaseURL + "/" + w.cfg.EndpointID
	for _, p := range parts {
		url += "/" + p
	}
	return url
}

func (w *Worker) workerID() string {
	if w.cfg.WorkerID != "" {
		return w.cfg.WorkerID
	}
	if w.cfg.PodID != "" {
		return w.cfg.PodID
	}
	return "local"
}

// takeJob asks the queue for work. Returns (nil, nil) when the queue is
// empty.
func (w *Worker) takeJob(ctx context.Context) (*job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpointURL("job-take", w.workerID()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("job take returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var j job
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return nil, fmt.Errorf("malformed job payload: %w", err)
	}
	if j.ID == "" {
		return nil, fmt.Errorf("job payload missing id")
	}
	return &j, nil
}

// postResult delivers the envelope for a completed job, retrying
// transient failures briefly so a slow queue does not drop results.
func (w *Worker) postResult(ctx context.Context, jobID string, env types.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			w.endpointURL("job-done", w.workerID(), jobID), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("job done returned status %d", resp.StatusCode)
		}
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
