package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hookrelay/packages/capture"
	"github.com/abdul-hamid-achik/hookrelay/packages/client"
	"github.com/abdul-hamid-achik/hookrelay/packages/core/config"
)

// Exit codes for hookrelay CLI
const (
	// ExitSuccess indicates the command succeeded
	ExitSuccess = 0

	// ExitNotFound indicates nothing was captured, or a body failed its schema
	ExitNotFound = 1

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// ExitError carries a specific exit code
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsageError, Err: err}
}

func configError(err error) error {
	return &ExitError{Code: ExitConfigError, Err: err}
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, client.ErrUnreachable):
		return ExitNetworkError
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, client.ErrNotFound), errors.Is(err, capture.ErrSchemaMismatch):
		return ExitNotFound
	}
	return 1
}

// exactArgs is cobra.ExactArgs reporting a usage error
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
