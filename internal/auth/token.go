package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNoToken means no credential could be obtained
var ErrNoToken = errors.New("no auth token available")

// TokenProvider supplies a bearer credential on demand.
// Implementations are asked on every request and must not be assumed to cache.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Func adapts an ordinary function to TokenProvider
type Func func(ctx context.Context) (string, error)

func (f Func) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static always returns the same token
type Static string

func (s Static) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoToken
	}
	return strings.TrimSpace(string(s)), nil
}

// File reads the token from a file on every call
type File string

func (f File) Token(context.Context) (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Command runs an external token helper on every call and uses its stdout
type Command struct {
	Name string
	Args []string
}

func (c Command) Token(ctx context.Context) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("token command %s: %w: %s", c.Name, err, strings.TrimSpace(stderr.String()))
	}
	token := strings.TrimSpace(stdout.String())
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// ParseCommand splits a command line on whitespace into a Command
func ParseCommand(line string) (Command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false
	}
	return Command{Name: fields[0], Args: fields[1:]}, true
}

// Resolve fetches a token and maps an empty result to ErrNoToken
func Resolve(ctx context.Context, p TokenProvider) (string, error) {
	if p == nil {
		return "", ErrNoToken
	}
	token, err := p.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
