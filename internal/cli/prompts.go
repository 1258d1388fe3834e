package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

//nolint:gochecknoglobals // Replaced in tests
var (
	promptPasswordFn = promptPassword
	promptConfirmFn  = promptConfirm
)

// promptPassword prompts for a secret with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	fd := int(os.Stdin.Fd()) //nolint:gosec // G115: file descriptors fit in int
	if !term.IsTerminal(fd) {
		outln(os.Stderr)
		return nil, finoraerr.WithSuggestion(
			finoraerr.ErrInvalidInput,
			"stdin is not a terminal; set "+envKeystorePassword+" instead",
		)
	}

	password, err := term.ReadPassword(fd)
	outln(os.Stderr) // Add newline after hidden input

	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	return password, nil
}

// promptConfirm asks a yes/no question and reads the answer from r.
// Anything other than y or yes is a no.
func promptConfirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	out(w, "%s [y/N]: ", prompt)

	response, err := r.ReadString('\n')
	if err != nil && response == "" {
		outln(w)
		return false
	}

	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

// promptLine prints prompt and reads one trimmed line from r.
func promptLine(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	out(w, "%s", prompt)

	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// zeroBytes overwrites b.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
