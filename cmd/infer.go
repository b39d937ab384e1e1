package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nsqe/nsqe/api"
)

func newInferCmd() *cobra.Command {
	var (
		tenant    string
		modelHint string
		prompt    string
		maxTokens int
		deadline  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Submit a prompt and stream tokens to stdout",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfer(cmd, api.InferRequest{
				TenantID:  tenant,
				ModelHint: modelHint,
				Prompt:    prompt,
				MaxTokens: maxTokens,
				Deadline:  deadline,
			})
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "default", "tenant id")
	cmd.Flags().StringVar(&modelHint, "model", "", "model architecture or id hint")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt text")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 256, "maximum tokens to generate")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "per-request deadline (0 disables)")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

// runInfer streams the raw SSE response body itself rather than going
// through postJSON, since the control plane only returns a JSON
// api.StatusError up front on failure; a successful request switches to
// an event stream of api.TokenFrame payloads.
func runInfer(cmd *cobra.Command, req api.InferRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return exitErr(ExitInvalidInput, err)
	}

	httpReq, err := newStreamRequest("/infer", raw)
	if err != nil {
		return exitErr(ExitInternal, err)
	}

	resp, err := doStream(httpReq)
	if err != nil {
		return exitErr(ExitInternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var se api.StatusError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&se); decodeErr == nil {
			se.StatusCode = resp.StatusCode
			return exitErr(exitCodeFor(se), se)
		}
		return exitErr(ExitInternal, fmt.Errorf("control plane returned %s", resp.Status))
	}

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame api.TokenFrame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			continue
		}
		fmt.Fprint(out, frame.Token)
		if frame.Finish != api.FinishNone {
			fmt.Fprintln(out)
			if frame.Finish == api.FinishError {
				return exitErr(ExitInternal, fmt.Errorf("stream ended in error: %s", frame.ErrorMsg))
			}
		}
	}
	return scanner.Err()
}
