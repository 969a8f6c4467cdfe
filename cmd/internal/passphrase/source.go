package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves the admin keystore passphrase once and caches it. The
// environment variable takes precedence over the interactive prompt.
type Source struct {
	envVar string

	once  sync.Once
	value string
	err   error
}

// NewSource returns a source that consults envVar before prompting.
func NewSource(envVar string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar)}
}

// Get returns the passphrase, resolving it on first use. Whitespace-only
// secrets are rejected in both paths.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	return s.prompt()
}

func (s *Source) prompt() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if s.envVar != "" {
			return "", fmt.Errorf("admin keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("admin keystore passphrase required and no terminal available")
	}

	fmt.Fprint(os.Stderr, "Enter admin keystore passphrase: ")
	input, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if strings.TrimSpace(string(input)) == "" {
		return "", errors.New("admin keystore passphrase cannot be empty")
	}
	return string(input), nil
}
