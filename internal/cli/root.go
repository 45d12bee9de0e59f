// Package cli implements bariactl, the operator command line for the
// baria-go service.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer  string
	flagToken   string
	flagTimeout int
)

var rootCmd = &cobra.Command{
	Use:           "bariactl",
	Short:         "Operate the baria-go screening and retrieval service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the root command and exits with 1 on error, or with the code
// of an ExitError.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Err != nil {
				fmt.Fprintln(os.Stderr, exitErr.Err)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", envOr("BARIA_SERVER", "http://localhost:8000"), "service base URL")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("BARIA_TOKEN"), "admin access token for /api/v1 admin routes")
	rootCmd.PersistentFlags().IntVar(&flagTimeout, "timeout", 60, "request timeout in seconds")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
