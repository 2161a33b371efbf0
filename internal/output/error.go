package output

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// ErrorOutput is the JSON envelope of a failed command.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes the failure.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// NewErrorDetail classifies err. Errors outside the taxonomy are reported as
// GENERAL_ERROR with their full message.
func NewErrorDetail(err error) ErrorDetail {
	var se *sigilerr.SigilError
	if errors.As(err, &se) {
		msg := se.Message
		if se.Cause != nil {
			msg += ": " + se.Cause.Error()
		}
		// keep the context a caller wrapped around the sentinel
		if err != error(se) {
			msg = err.Error()
		}
		return ErrorDetail{
			Code:       se.Code,
			Message:    msg,
			Details:    se.Details,
			Suggestion: se.Suggestion,
			ExitCode:   sigilerr.ExitCode(err),
		}
	}
	return ErrorDetail{
		Code:     sigilerr.ErrGeneral.Code,
		Message:  err.Error(),
		ExitCode: sigilerr.ExitGeneral,
	}
}

// FormatError writes err in the given format. A nil err writes nothing.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}
	d := NewErrorDetail(err)
	if format == FormatJSON {
		return WriteJSON(w, ErrorOutput{Error: d})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	if len(d.Details) > 0 {
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}
	_, werr := io.WriteString(w, sb.String())
	return werr
}

// FormatSuccess writes a one-line success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return WriteJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
