package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/refcache"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Sync failure (reference refresh failed, conflict not resolvable, etc.)
	ExitCommandError = 2 // Command error (bad flags, invalid config, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	ErrCode string // JSON error code (defaults to ErrCodeGeneric)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// codedError wraps err with an exit code and a JSON error code.
func codedError(code int, errCode, message string, err error) *ExitError {
	return &ExitError{Code: code, ErrCode: errCode, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// GetErrCode extracts the JSON error code from an error.
// Returns ErrCodeGeneric if none was assigned.
func GetErrCode(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.ErrCode != "" {
		return exitErr.ErrCode
	}
	return ErrCodeGeneric
}

// OutputFormatter writes command results as a JSON envelope or as text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string      `json:"code"` // see ErrCode constants
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// textWriter is implemented by results with their own terminal layout.
type textWriter interface {
	writeText(w io.Writer)
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

// Success writes data. In text mode a textWriter lays itself out; anything
// else is printed with its default format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if tw, ok := data.(textWriter); ok {
		tw.writeText(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Done reports a completed action: data in JSON mode, one formatted line in
// text mode.
func (f *OutputFormatter) Done(data interface{}, format string, args ...interface{}) error {
	if f.json() {
		return f.Success(data)
	}
	fmt.Fprintf(f.Writer, format+"\n", args...)
	return nil
}

// Error writes an error response.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line to GetErrWriter when verbose is on.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// conflictList renders pending conflicts one per line. It encodes as an
// empty array, never null.
type conflictList []model.Conflict

func (l conflictList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]model.Conflict(l))
}

func (l conflictList) writeText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No pending conflicts.")
		return
	}
	for _, c := range l {
		fmt.Fprintf(w, "%s  %-8s %-16s %-16s item=%d  %s\n",
			c.ID, c.EntityType, c.EntityID, c.ConflictType, c.QueueItemID, c.Message)
	}
}

// reportList renders reference refresh reports, one cache per line.
type reportList []refcache.Report

func (l reportList) writeText(w io.Writer) {
	for _, r := range l {
		if r.Err != nil {
			fmt.Fprintf(w, "  %-13s failed: %v\n", r.Entity, r.Err)
			continue
		}
		fmt.Fprintf(w, "  %-13s %d cached\n", r.Entity, r.Count)
	}
}

// Error codes reported in JSON error responses.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeConfig       = "E002" // Config could not be loaded or is invalid
	ErrCodeDatabase     = "E003" // Local database could not be opened
	ErrCodeRemote       = "E004" // Remote system unreachable or not configured
	ErrCodeNotFound     = "E005" // Conflict or queue item not found
	ErrCodeInvalidInput = "E006" // Bad argument or flag value
)

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
