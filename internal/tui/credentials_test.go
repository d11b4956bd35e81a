package tui

import (
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_Missing(t *testing.T) {
	c := &Credentials{}
	assert.Equal(t, []string{"Address", "Username", "Password"}, c.Missing(false))
	assert.Equal(t, []string{"Address"}, c.Missing(true))

	c = &Credentials{Address: "fw1", Username: "admin", Password: "pw"}
	assert.Empty(t, c.Missing(false))
}

func TestPrompter_NothingMissing(t *testing.T) {
	p := NewPrompter(WithInteractive(true), WithFormRunner(func(*huh.Form) error {
		t.Fatal("form should not run")
		return nil
	}))
	c := &Credentials{Address: "fw1", Username: "admin", Password: "pw"}
	require.NoError(t, p.Complete(c, false))
}

func TestPrompter_NonInteractive(t *testing.T) {
	p := NewPrompter(WithInteractive(false))
	c := &Credentials{Address: "fw1"}
	err := p.Complete(c, false)
	require.ErrorIs(t, err, ErrMissingCredentials)
	assert.Contains(t, err.Error(), "username, password")

	require.NoError(t, p.Complete(c, true))
}

func TestPrompter_FillsFromForm(t *testing.T) {
	c := &Credentials{Address: "fw1", Username: "admin"}
	var ran bool
	p := NewPrompter(WithInteractive(true), WithFormRunner(func(f *huh.Form) error {
		require.NotNil(t, f)
		ran = true
		c.Password = "typed"
		return nil
	}))

	require.NoError(t, p.Complete(c, false))
	assert.True(t, ran)
	assert.Equal(t, "typed", c.Password)
}

func TestPrompter_Errors(t *testing.T) {
	aborted := NewPrompter(WithInteractive(true), WithFormRunner(func(*huh.Form) error {
		return huh.ErrUserAborted
	}))
	err := aborted.Complete(&Credentials{}, false)
	assert.ErrorIs(t, err, huh.ErrUserAborted)

	empty := NewPrompter(WithInteractive(true), WithFormRunner(func(*huh.Form) error { return nil }))
	err = empty.Complete(&Credentials{Address: "fw1"}, false)
	assert.True(t, errors.Is(err, ErrMissingCredentials))
}

func TestAutoForm_RequiresStructPointer(t *testing.T) {
	assert.Panics(t, func() { AutoForm(Credentials{}) })
	assert.NotNil(t, AutoForm(&Credentials{}, "Password"))
}

func TestParseTag(t *testing.T) {
	props := parseTag("title=Password, type=password,validate=required,bogus")
	assert.Equal(t, map[string]string{
		"title":    "Password",
		"type":     "password",
		"validate": "required",
	}, props)
}

func TestValidators(t *testing.T) {
	assert.Error(t, Validators["required"]("  "))
	assert.NoError(t, Validators["required"]("x"))

	assert.NoError(t, Validators["host"]("fw1.example.net:8443"))
	assert.NoError(t, Validators["host"]("https://fw1/"))
	assert.Error(t, Validators["host"]("fw1 example"))
	assert.Error(t, Validators["host"](""))

	assert.NoError(t, Validators["cidr"]("10.0.0.0/24"))
	assert.NoError(t, Validators["cidr"](""))
	assert.Error(t, Validators["cidr"]("10.0.0.0"))
}

func TestHeadingAndDiff(t *testing.T) {
	assert.Contains(t, Heading("Addresses", 1), "(1 entry)")
	assert.Contains(t, Heading("Addresses", 3), "(3 entries)")

	out := ColorDiff("--- a\n+++ b\n@@ -1 +1 @@\n-old\n+new\n same")
	for _, want := range []string{"--- a", "+++ b", "-old", "+new", " same"} {
		assert.Contains(t, out, want)
	}
}
