package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// simulateResponse is the envelope returned by POST /api/warnings/simulate.
type simulateResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Simulation struct {
		RunID    string   `json:"run_id"`
		Start    string   `json:"start"`
		End      string   `json:"end"`
		Features int      `json:"features"`
		Events   []string `json:"events"`
		Sent     int      `json:"sent"`
		Failed   int      `json:"failed"`
	} `json:"simulation"`
}

func (c *cli) simulateCmd() *cobra.Command {
	var server, start, end string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a past window through a running service's webhooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := strings.TrimRight(server, "/") + "/api/warnings/simulate?" +
				url.Values{"start": {start}, "end": {end}}.Encode()

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, target, nil)
			if err != nil {
				return err
			}
			resp, err := (&http.Client{Timeout: c.timeout}).Do(req)
			if err != nil {
				return fmt.Errorf("simulate request: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			var sr simulateResponse
			if err := json.Unmarshal(body, &sr); err != nil {
				return fmt.Errorf("status %d: decode response: %w", resp.StatusCode, err)
			}
			if !sr.Success {
				return fmt.Errorf("status %d: %s", resp.StatusCode, sr.Error)
			}

			if c.jsonOut {
				return writeIndented(c.out, sr.Simulation)
			}
			s := sr.Simulation
			fmt.Fprintf(c.out, "run %s: %s to %s\n", s.RunID, s.Start, s.End)
			fmt.Fprintf(c.out, "features %d, warnings %d, sent %d, failed %d\n", s.Features, len(s.Events), s.Sent, s.Failed)
			for _, id := range s.Events {
				fmt.Fprintf(c.out, "  %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "base URL of the running alert service")
	cmd.Flags().StringVar(&start, "start", "", "window start")
	cmd.Flags().StringVar(&end, "end", "", "window end")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
