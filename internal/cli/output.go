package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output, defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command's output.
type CLIResponse struct {
	Status string `json:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success prints data as JSON, or as text lines from the text func.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

func (f *OutputFormatter) Error(err error) error {
	if f.Format == "json" {
		if eerr := json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: err.Error()}); eerr != nil {
			return eerr
		}
		return err
	}
	fmt.Fprintf(f.Writer, "Error: %v\n", err)
	if f.Verbose {
		for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
			fmt.Fprintf(f.Writer, "  caused by: %v\n", cause)
		}
	}
	return err
}

// VerboseLog writes a diagnostic line only in verbose mode.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	f := &OutputFormatter{Format: opts.Format, Writer: w, Verbose: opts.Verbose}
	if f.Format == "json" {
		// keep stdout parseable
		f.ErrWriter = os.Stderr
	}
	return f
}
