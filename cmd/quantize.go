package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nsqe/nsqe/api"
)

// artifactFile is the on-disk JSON shape quantize reads: one
// architecture plus its tensor shapes and element kind, matching
// api.ArtifactDescriptor's wire fields so the same payload round-trips
// straight to POST /models.
type artifactFile struct {
	Architecture     string              `json:"architecture"`
	ElementKind      string              `json:"element_kind"`
	TensorShapes     map[string][]uint64 `json:"tensor_shapes"`
	PrecisionProfile map[string]string   `json:"precision_profile,omitempty"`
}

func newQuantizeCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "quantize",
		Short: "Register a quantized model artifact with the control plane",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuantize(cmd, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to an artifact descriptor JSON file")
	cmd.MarkFlagRequired("file")
	return cmd
}

func runQuantize(cmd *cobra.Command, file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return exitErr(ExitInvalidInput, err)
	}

	var artifact artifactFile
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return exitErr(ExitInvalidInput, fmt.Errorf("parsing %s: %w", file, err))
	}

	var resp api.RegisterModelResponse
	_, err = postJSON("/models", api.ArtifactDescriptor{
		Architecture:     artifact.Architecture,
		ElementKind:      artifact.ElementKind,
		TensorShapes:     artifact.TensorShapes,
		PrecisionProfile: artifact.PrecisionProfile,
	}, &resp)
	if err != nil {
		return exitErr(exitCodeFor(err), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "registered model %s\n", resp.ModelID)
	return nil
}
