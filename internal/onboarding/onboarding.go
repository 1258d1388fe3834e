// Package onboarding verifies a user's email address with a one-time code.
//
// A Flow moves through three stages: the user submits an email address
// (StageEmail), receives a six-digit code and enters it (StageOTP), and is
// done (StageSuccess). Codes are stored only as SHA3-256 hashes and expire
// after a TTL.
package onboarding

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/go-sanitize"
	"golang.org/x/crypto/sha3"

	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// Stage is a step of the verification flow.
type Stage string

// Verification stages.
const (
	StageEmail   Stage = "email"
	StageOTP     Stage = "otp"
	StageSuccess Stage = "success"
)

// User-facing notifications.
const (
	MsgInvalidEmail = "Please enter a valid email address"
	MsgCodeSent     = "OTP sent to your email"
	MsgSendFailed   = "Failed to send OTP. Please try again."
	MsgInvalidCode  = "Invalid code. Please try again."
	MsgCodeResent   = "Code resent"
)

const (
	// CodeLength is the number of digits in a code.
	CodeLength = 6

	// DefaultTTL is how long a code stays valid.
	DefaultTTL = 10 * time.Minute

	// MaxAttempts is the number of wrong codes accepted before the code
	// is discarded and a new one must be requested.
	MaxAttempts = 5
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
)

// Mailer delivers a code to an email address.
type Mailer interface {
	SendCode(ctx context.Context, email, code string) error
}

// Notifier shows transient messages to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// Flow is one email verification. It is safe for concurrent use.
type Flow struct {
	mailer   Mailer
	notifier Notifier
	ttl      time.Duration
	devCode  string
	now      func() time.Time
	random   io.Reader

	mu       sync.Mutex
	stage    Stage
	email    string
	codeHash []byte
	expires  time.Time
	failures int
	round    int // advanced by every code request and email change
}

// Option configures a Flow.
type Option func(*Flow)

// WithTTL sets how long codes stay valid.
func WithTTL(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.ttl = d
		}
	}
}

// WithDevCode makes code also accepted in the OTP stage. Intended for
// local development against the mock backend only.
func WithDevCode(code string) Option {
	return func(f *Flow) { f.devCode = code }
}

// WithNotifier sets the user-facing message sink.
func WithNotifier(n Notifier) Option {
	return func(f *Flow) {
		if n != nil {
			f.notifier = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// WithRandom overrides the randomness used to draw codes.
func WithRandom(r io.Reader) Option {
	return func(f *Flow) { f.random = r }
}

// New creates a Flow in the email stage.
func New(mailer Mailer, opts ...Option) *Flow {
	f := &Flow{
		mailer:   mailer,
		notifier: nopNotifier{},
		ttl:      DefaultTTL,
		now:      time.Now,
		random:   rand.Reader,
		stage:    StageEmail,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Stage returns the current stage.
func (f *Flow) Stage() Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

// Email returns the address being verified.
func (f *Flow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// CleanEmail normalizes an address and reports whether it is well formed.
func CleanEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !emailPattern.MatchString(raw) {
		return "", false
	}
	email := sanitize.Email(raw, false)
	return email, emailPattern.MatchString(email)
}

// RequestCode sends a code to email and moves to the OTP stage.
func (f *Flow) RequestCode(ctx context.Context, email string) error {
	f.mu.Lock()
	if f.stage != StageEmail {
		defer f.mu.Unlock()
		return stageError(f.stage, StageEmail)
	}
	clean, ok := CleanEmail(email)
	if !ok {
		f.mu.Unlock()
		f.notifier.Error(MsgInvalidEmail)
		return finoraerr.WithDetails(finoraerr.ErrInvalidEmail, map[string]string{"email": email})
	}
	code, round, err := f.drawLocked()
	f.mu.Unlock()
	if err != nil {
		return err
	}

	if err := f.send(ctx, clean, code); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.currentLocked(round, StageEmail); err != nil {
		return err
	}
	f.storeLocked(code)
	f.email = clean
	f.stage = StageOTP
	f.notifier.Info(MsgCodeSent)
	return nil
}

// Resend issues a fresh code to the same address.
func (f *Flow) Resend(ctx context.Context) error {
	f.mu.Lock()
	if f.stage != StageOTP {
		defer f.mu.Unlock()
		return stageError(f.stage, StageOTP)
	}
	email := f.email
	code, round, err := f.drawLocked()
	f.mu.Unlock()
	if err != nil {
		return err
	}

	if err := f.send(ctx, email, code); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.currentLocked(round, StageOTP); err != nil {
		return err
	}
	f.storeLocked(code)
	f.notifier.Info(MsgCodeResent)
	return nil
}

// ChangeEmail discards the pending code and returns to the email stage. A
// send still in flight is abandoned.
func (f *Flow) ChangeEmail() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stage == StageOTP {
		f.round++
		f.resetLocked()
		f.stage = StageEmail
	}
}

// Verify checks code and moves to the success stage when it matches.
func (f *Flow) Verify(code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stage != StageOTP {
		return stageError(f.stage, StageOTP)
	}

	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		f.notifier.Error(MsgInvalidCode)
		return finoraerr.WithDetails(finoraerr.ErrInvalidCode, map[string]string{
			"reason": fmt.Sprintf("expected %d digits", CodeLength),
		})
	}

	if f.devCode != "" && subtle.ConstantTimeCompare([]byte(code), []byte(f.devCode)) == 1 {
		f.succeedLocked()
		return nil
	}

	if f.codeHash == nil || !f.now().Before(f.expires) {
		f.resetLocked()
		return finoraerr.WithSuggestion(finoraerr.ErrCodeExpired, "request a new code")
	}

	if subtle.ConstantTimeCompare(hashCode(code), f.codeHash) != 1 {
		f.failures++
		f.notifier.Error(MsgInvalidCode)
		if f.failures >= MaxAttempts {
			f.resetLocked()
			return finoraerr.WithSuggestion(finoraerr.ErrCodeExpired, "too many attempts, request a new code")
		}
		return finoraerr.ErrInvalidCode
	}

	f.succeedLocked()
	return nil
}

// drawLocked generates a code and opens a new request round.
func (f *Flow) drawLocked() (string, int, error) {
	code, err := f.generate()
	if err != nil {
		return "", 0, finoraerr.Wrap(err, "generating verification code")
	}
	f.round++
	return code, f.round, nil
}

// send mails code to email. It runs without holding the lock.
func (f *Flow) send(ctx context.Context, email, code string) error {
	if err := f.mailer.SendCode(ctx, email, code); err != nil {
		f.notifier.Error(MsgSendFailed)
		return finoraerr.WithCause(finoraerr.ErrNetworkUnavailable, err)
	}
	return nil
}

// currentLocked reports whether request round is still the latest one and
// the flow is still in stage want.
func (f *Flow) currentLocked(round int, want Stage) error {
	if f.stage != want {
		return stageError(f.stage, want)
	}
	if round != f.round {
		return finoraerr.WithDetails(finoraerr.ErrInvalidInput, map[string]string{
			"reason": "superseded by a newer code request",
		})
	}
	return nil
}

func (f *Flow) storeLocked(code string) {
	f.codeHash = hashCode(code)
	f.expires = f.now().Add(f.ttl)
	f.failures = 0
}

func (f *Flow) succeedLocked() {
	f.resetLocked()
	f.stage = StageSuccess
}

func (f *Flow) resetLocked() {
	f.codeHash = nil
	f.expires = time.Time{}
	f.failures = 0
}

// generate draws a uniformly random six-digit code.
func (f *Flow) generate() (string, error) {
	n, err := rand.Int(f.random, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

func hashCode(code string) []byte {
	sum := sha3.Sum256([]byte(code))
	return sum[:]
}

func stageError(have, want Stage) error {
	return finoraerr.WithDetails(finoraerr.ErrInvalidInput, map[string]string{
		"stage":    string(have),
		"expected": string(want),
	})
}

type nopNotifier struct{}

func (nopNotifier) Info(string)  {}
func (nopNotifier) Error(string) {}
