package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrMissingCredentials is returned when a credential is empty and no
// terminal is available to ask for it.
var ErrMissingCredentials = errors.New("missing device credentials")

// Credentials are the device login values a run needs.
type Credentials struct {
	Address  string `tui:"title=Device address,desc=Firewall or Panorama host[:port],validate=host"`
	Username string `tui:"title=Username,validate=required"`
	Password string `tui:"title=Password,type=password,validate=required"`
}

// Missing returns the names of empty fields. An API key replaces the
// username and password.
func (c *Credentials) Missing(haveAPIKey bool) []string {
	var missing []string
	if c.Address == "" {
		missing = append(missing, "Address")
	}
	if haveAPIKey {
		return missing
	}
	if c.Username == "" {
		missing = append(missing, "Username")
	}
	if c.Password == "" {
		missing = append(missing, "Password")
	}
	return missing
}

// FormRunner runs a form to completion.
type FormRunner func(*huh.Form) error

// Prompter fills in credentials the profile, flags and environment left
// empty.
type Prompter struct {
	run         FormRunner
	interactive bool
}

// PrompterOption configures a Prompter.
type PrompterOption func(*Prompter)

// WithFormRunner replaces huh's terminal runner.
func WithFormRunner(run FormRunner) PrompterOption {
	return func(p *Prompter) {
		p.run = run
	}
}

// WithInteractive forces terminal detection on or off.
func WithInteractive(interactive bool) PrompterOption {
	return func(p *Prompter) {
		p.interactive = interactive
	}
}

// NewPrompter returns a Prompter that asks on the terminal when stdin is
// one.
func NewPrompter(opts ...PrompterOption) *Prompter {
	fd := os.Stdin.Fd()
	p := &Prompter{
		run:         func(f *huh.Form) error { return f.Run() },
		interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Complete prompts for the empty fields of c.
func (p *Prompter) Complete(c *Credentials, haveAPIKey bool) error {
	missing := c.Missing(haveAPIKey)
	if len(missing) == 0 {
		return nil
	}
	if !p.interactive {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.ToLower(strings.Join(missing, ", ")))
	}
	if err := p.run(AutoForm(c, missing...)); err != nil {
		return fmt.Errorf("credential prompt: %w", err)
	}
	if still := c.Missing(haveAPIKey); len(still) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.ToLower(strings.Join(still, ", ")))
	}
	return nil
}
