// Package cmd implements the single-binary CLI: quantize, infer,
// cluster, and cache subcommands talking to a running control-plane
// server over HTTP, plus the serve subcommand that hosts it.
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nsqe/nsqe/envconfig"
)

// Exit codes per the CLI's fixed contract: flags map one-to-one onto
// request fields, and the process's exit status reports which kind of
// failure, if any, a request ended in.
const (
	ExitSuccess           = 0
	ExitInvalidInput      = 2
	ExitNoViableRoute     = 3
	ExitCapacityExhausted = 4
	ExitInternal          = 5
)

// EnvDoc documents one environment variable for --help output.
type EnvDoc struct {
	Name        string
	Description string
}

var coreEnvDocs = []EnvDoc{
	{"NSQE_HOST", "control plane API listen/dial address (default 127.0.0.1:11511)"},
	{"NSQE_LOG_LEVEL", "debug|info|warn|error (default info)"},
}

// appendEnvDocs appends an Environment Variables section to cmd's usage
// template, following the one-template-append-per-command idiom.
func appendEnvDocs(cmd *cobra.Command, envs []EnvDoc) {
	if len(envs) == 0 {
		return
	}
	usage := "\nEnvironment Variables:\n"
	for _, e := range envs {
		usage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}
	cmd.SetUsageTemplate(cmd.UsageTemplate() + usage)
}

// NewCLI builds the root command and wires every subcommand.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	root := &cobra.Command{
		Use:           "nsqe",
		Short:         "Neurosymbolic quantization and serving engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := newServeCmd()
	quantizeCmd := newQuantizeCmd()
	inferCmd := newInferCmd()
	clusterCmd := newClusterCmd()
	cacheCmd := newCacheCmd()

	appendEnvDocs(serveCmd, append(coreEnvDocs,
		EnvDoc{"NSQE_SUSPECT_AFTER", "heartbeat grace period before a node is marked Suspect (default 5s)"},
		EnvDoc{"NSQE_NODE_TIMEOUT", "Suspect grace period before a node is Evicted (default 15s)"},
		EnvDoc{"NSQE_PLACEMENT_RETRIES", "candidate nodes tried before a placement fails (default 3)"},
		EnvDoc{"NSQE_CACHE_CAPACITY_BYTES", "KV-cache arena size (default 2GiB)"},
		EnvDoc{"NSQE_ORIGINS", "comma separated allowed CORS origins"},
	))
	for _, c := range []*cobra.Command{quantizeCmd, inferCmd, clusterCmd, cacheCmd} {
		appendEnvDocs(c, coreEnvDocs)
	}

	root.AddCommand(serveCmd, quantizeCmd, inferCmd, clusterCmd, cacheCmd)
	return root
}

func baseURL() string {
	return "http://" + envconfig.Host()
}

// cliError pairs a command failure with the exit code the CLI's §6
// contract demands, letting every subcommand return plain errors from
// RunE while main still exits with the right status.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

// exitErr wraps err with its exit code. A nil err still needs a code,
// so callers check the error return before deciding to call this.
func exitErr(code int, err error) error {
	return &cliError{code: code, err: err}
}

// ExitCode extracts the exit code a command's error carries, defaulting
// unwrapped errors to ExitInternal and nil to ExitSuccess.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return ExitInternal
}
