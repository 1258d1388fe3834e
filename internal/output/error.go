package output

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// Describe converts err to its structured form. Plain errors become
// GENERAL_ERROR with their text as message.
func Describe(err error) ErrorDetail {
	var fe *finoraerr.FinoraError
	if errors.As(err, &fe) {
		msg := fe.Message
		var inner *finoraerr.FinoraError
		if fe.Cause != nil && !errors.As(fe.Cause, &inner) {
			msg += ": " + fe.Cause.Error()
		}
		return ErrorDetail{
			Code:       fe.Code,
			Message:    msg,
			Details:    fe.Details,
			Suggestion: fe.Suggestion,
			ExitCode:   fe.ExitCode,
		}
	}
	return ErrorDetail{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		ExitCode: finoraerr.ExitCode(err),
	}
}

// FormatError writes err in the given format. Nil writes nothing.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}
	detail := Describe(err)
	if format == FormatJSON {
		return writeJSON(w, ErrorOutput{Error: detail})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", detail.Message)
	if len(detail.Details) > 0 {
		sb.WriteString("\nDetails:\n")
		keys := make([]string, 0, len(detail.Details))
		for k := range detail.Details {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, detail.Details[k])
		}
	}
	if detail.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", detail.Suggestion)
	}
	_, writeErr := io.WriteString(w, sb.String())
	return writeErr
}

// FormatSuccess writes a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
