package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"udpwatch/internal/model"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitRemediated  = 3
	exitNotRunning  = 4
	exitDegraded    = 5
	exitInterrupted = 130
)

type exitError struct {
	code    int
	message string
	silent  bool
}

func (e exitError) Error() string {
	return e.message
}

func exitSilent(code int) error {
	return exitError{code: code, silent: true}
}

func exitWith(code int, err error) error {
	return exitError{code: code, message: err.Error()}
}

// usageError prints the command's usage block, which carries the example.
func usageError(cmd *cobra.Command, err error) error {
	return exitError{code: exitUsage, message: fmt.Sprintf("Error: %v\n\n%s", err, cmd.UsageString())}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError(cmd, fmt.Errorf("unexpected argument %q", args[0]))
	}
	return nil
}

// outcomeExitCode is only consulted with --outcome-exit-codes.
func outcomeExitCode(kind model.OutcomeKind) int {
	switch kind {
	case model.Remediated:
		return exitRemediated
	case model.NotRunning:
		return exitNotRunning
	case model.Degraded:
		return exitDegraded
	default:
		return exitOK
	}
}
