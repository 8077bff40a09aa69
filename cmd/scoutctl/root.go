package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"scoutd/internal/common/logutil"
	"scoutd/internal/config"
	"scoutd/internal/handler"
	"scoutd/internal/loader"
	"scoutd/internal/runtime"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scoutctl",
		Short:         "operator tooling for a running scoutd worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newProbeCmd(), newEventCmd())
	return root
}

// newProbeCmd queries the health surface of a running worker and exits
// non-zero when any endpoint reports unhealthy. Suitable as a container
// health check command.
func newProbeCmd() *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "query /health, /ready and /liveness on a running worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 10 * time.Second}
			failed := 0
			for _, path := range []string{"/health", "/ready", "/liveness"} {
				status, body, err := fetch(client, base+path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%-10s unreachable: %v\n", path, err)
					failed++
					continue
				}
				fmt.Printf("%-10s %d %s\n", path, status, body)
				if status != http.StatusOK {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d probe(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base-url", "http://127.0.0.1:8000", "base URL of the worker's health server")
	return cmd
}

// newEventCmd runs a single job through an in-process handler, bypassing
// the platform queue. Useful for smoke-testing a container image.
func newEventCmd() *cobra.Command {
	var prompt string
	var maxNewTokens int
	cmd := &cobra.Command{
		Use:   "event",
		Short: "run one generation event through a local handler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve("")
			if err != nil {
				return err
			}
			log := logutil.New(cfg.Log)

			input := map[string]any{"prompt": prompt}
			if maxNewTokens > 0 {
				input["max_new_tokens"] = maxNewTokens
			}
			event, err := json.Marshal(map[string]any{"input": input})
			if err != nil {
				return err
			}

			gate := loader.New(cfg, runtime.NewFactory(cfg, log), log)
			h := handler.New(cfg, gate, log)
			env := h.Handle(context.Background(), event)

			out, err := json.MarshalIndent(env, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if env.Error != nil {
				return fmt.Errorf("event failed: %s", env.Error.Type)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "Write a haiku about the ocean.", "prompt to generate from")
	cmd.Flags().IntVar(&maxNewTokens, "max-new-tokens", 64, "generation length cap")
	return cmd
}

func fetch(client *http.Client, url string) (int, string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}
