package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/onboarding"
	"github.com/mrz1836/finora/internal/output"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

const testDevCode = "424242"

func TestVerifyEmail_DevCode(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	env.cc.Cfg.Onboarding.DevCode = testDevCode

	stderr, err := env.run(t, verifyEmailCmd, "12345\n"+testDevCode+"\n",
		map[string]string{"email": " You@Example.com "})
	require.NoError(t, err)

	var res verifyResult
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &res))
	assert.True(t, res.Verified)
	assert.Equal(t, "you@example.com", res.Email)

	assert.Contains(t, stderr, "Verification code for you@example.com:")
	assert.Contains(t, env.notes.String(), onboarding.MsgCodeSent)
	assert.Contains(t, env.notes.String(), onboarding.MsgInvalidCode)
}

func TestVerifyEmail_PromptsForEmail(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.cc.Cfg.Onboarding.DevCode = testDevCode

	stderr, err := env.run(t, verifyEmailCmd, "not-an-email\nyou@example.com\n"+testDevCode+"\n", nil)
	require.NoError(t, err)

	assert.Contains(t, stderr, "Email: ")
	assert.Contains(t, env.notes.String(), onboarding.MsgInvalidEmail)
	assert.Contains(t, env.out.String(), "Verified you@example.com.")
}

func TestVerifyEmail_ResendAndChange(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.cc.Cfg.Onboarding.DevCode = testDevCode

	stdin := "resend\nchange\nother@example.com\n" + testDevCode + "\n"
	stderr, err := env.run(t, verifyEmailCmd, stdin, map[string]string{"email": "you@example.com"})
	require.NoError(t, err)

	assert.Contains(t, env.notes.String(), onboarding.MsgCodeResent)
	assert.Contains(t, stderr, "Verification code for other@example.com:")
	assert.Contains(t, env.out.String(), "Verified other@example.com.")
}

func TestVerifyEmail_NoCode(t *testing.T) {
	env := newTestEnv(t, output.FormatText)

	_, err := env.run(t, verifyEmailCmd, "", map[string]string{"email": "you@example.com"})
	require.ErrorIs(t, err, finoraerr.ErrInvalidInput)
	assert.Empty(t, env.out.String())
}

func TestVerifyEmail_NoEmail(t *testing.T) {
	env := newTestEnv(t, output.FormatText)

	_, err := env.run(t, verifyEmailCmd, "", nil)
	require.ErrorIs(t, err, finoraerr.ErrInvalidEmail)
}

func TestConsoleMailer(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	m := &consoleMailer{w: &buf}

	require.NoError(t, m.SendCode(context.Background(), "you@example.com", "123456"))

	email, code := m.Last()
	assert.Equal(t, "you@example.com", email)
	assert.Equal(t, "123456", code)
	assert.Equal(t, "Verification code for you@example.com: 123456\n", buf.String())
}
