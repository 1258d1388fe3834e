package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mrz1836/finora/internal/onboarding"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// Answers accepted at the code prompt besides a code.
const (
	answerResend = "resend"
	answerChange = "change"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var verifyEmail string

// verifyEmailCmd runs the email verification step of onboarding.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var verifyEmailCmd = &cobra.Command{
	Use:   "verify-email",
	Short: "Verify an email address with a one-time code",
	Long: `Send a six-digit code to an email address and read it back.

At the code prompt, type the code, "resend" for a fresh code or "change" to
enter a different address. Codes expire after onboarding.code_ttl_minutes.
No mail service is wired, so codes are printed to the terminal.`,
	Example: `  finora verify-email --email you@example.com
  echo 123456 | finora verify-email --email you@example.com`,
	GroupID: groupAccount,
	Args:    cobra.NoArgs,
	RunE:    runVerifyEmail,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(verifyEmailCmd)
	verifyEmailCmd.Flags().StringVar(&verifyEmail, "email", "", "email address to verify (prompted when empty)")
}

// consoleMailer delivers codes by printing them.
type consoleMailer struct {
	w io.Writer

	mu    sync.Mutex
	last  string
	email string
}

// SendCode implements onboarding.Mailer.
func (m *consoleMailer) SendCode(_ context.Context, email, code string) error {
	m.mu.Lock()
	m.last = code
	m.email = email
	m.mu.Unlock()

	out(m.w, "Verification code for %s: %s\n", email, code)
	return nil
}

// Last returns the last code sent and its address.
func (m *consoleMailer) Last() (email, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.email, m.last
}

// verifyResult is a completed verification.
type verifyResult struct {
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

func runVerifyEmail(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)
	ctx := baseContext(cmd)
	in := bufio.NewReader(cmd.InOrStdin())
	prompts := cmd.ErrOrStderr()

	flow := onboarding.New(&consoleMailer{w: prompts},
		onboarding.WithTTL(cc.Cfg.CodeTTL()),
		onboarding.WithDevCode(cc.Cfg.Onboarding.DevCode),
		onboarding.WithNotifier(cc.notifier(cmd)),
	)

	if err := requestCode(ctx, flow, in, prompts, verifyEmail); err != nil {
		return err
	}

	for flow.Stage() != onboarding.StageSuccess {
		answer, err := promptLine(in, prompts, "Code (or resend/change): ")
		if err != nil {
			return noCodeError(err)
		}

		switch strings.ToLower(answer) {
		case answerResend:
			if err := flow.Resend(ctx); err != nil {
				return err
			}
		case answerChange:
			flow.ChangeEmail()
			if err := requestCode(ctx, flow, in, prompts, ""); err != nil {
				return err
			}
		default:
			err := flow.Verify(answer)
			switch {
			case err == nil:
			case errors.Is(err, finoraerr.ErrCodeExpired):
				outln(prompts, "Code expired. Type resend for a new one.")
			case errors.Is(err, finoraerr.ErrInvalidCode):
			default:
				return err
			}
		}
	}

	cc.Log.Info("verified email %s", flow.Email())
	res := verifyResult{Email: flow.Email(), Verified: true}
	return cc.Fmt.Emit(res, func(w io.Writer) error {
		out(w, "Verified %s.\n", res.Email)
		return nil
	})
}

// requestCode sends a code to email, prompting for the address when it is
// empty or rejected.
func requestCode(ctx context.Context, flow *onboarding.Flow, in *bufio.Reader, prompts io.Writer, email string) error {
	for {
		if email == "" {
			line, err := promptLine(in, prompts, "Email: ")
			if err != nil {
				return finoraerr.WithSuggestion(finoraerr.ErrInvalidEmail, "pass --email")
			}
			email = line
		}

		err := flow.RequestCode(ctx, email)
		if !errors.Is(err, finoraerr.ErrInvalidEmail) {
			return err
		}
		email = ""
	}
}

func noCodeError(cause error) error {
	return finoraerr.WithSuggestion(
		finoraerr.WithCause(finoraerr.ErrInvalidInput, cause),
		"enter the six-digit code that was sent",
	)
}
