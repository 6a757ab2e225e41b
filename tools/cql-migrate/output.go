package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// CommandOutput is the structured result every command emits, either as human
// text or as machine-readable JSON.
type CommandOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// emit renders the output in the selected format on stdout.
func emit(output CommandOutput) error {
	if rootOpts.output == "json" {
		encoded, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}
		fmt.Println(string(encoded))
		return nil
	}
	fmt.Println(output.Message)
	return nil
}

// errAlreadyReported signals a non-zero exit for a command that has already
// emitted its structured output.
var errAlreadyReported = errors.New("command failed")

// emitError renders a failed command's outcome. Logs go to stderr, so JSON
// consumers on stdout still receive a well-formed document.
func emitError(err error) {
	if rootOpts.output == "json" {
		encoded, marshalErr := json.MarshalIndent(CommandOutput{Success: false, Message: err.Error()}, "", "  ")
		if marshalErr == nil {
			fmt.Println(string(encoded))
		}
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
