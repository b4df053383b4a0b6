package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
)

// TokenEnv is the environment variable holding the bearer token.
const TokenEnv = "AUTH_TOKEN"

// Prompter asks the user for a single line of input.
type Prompter interface {
	Prompt(ctx context.Context, label string) (string, error)
}

// ReadlinePrompter prompts on the terminal.
type ReadlinePrompter struct {
	Stdin  io.ReadCloser
	Stdout io.Writer
}

func (p ReadlinePrompter) Prompt(ctx context.Context, label string) (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: label,
		Stdin:  p.Stdin,
		Stdout: p.Stdout,
	})
	if err != nil {
		return "", err
	}
	defer rl.Close()

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := rl.Readline()
		ch <- result{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return strings.TrimSpace(r.line), r.err
	}
}

// TokenResolver returns the bearer token for a run: the environment value if
// set, otherwise whatever the prompter yields. The token format is not checked.
type TokenResolver struct {
	Lookup   func(string) (string, bool)
	Prompter Prompter
	Log      zerolog.Logger
}

// NewTokenResolver reads AUTH_TOKEN from the process environment and falls back to a terminal prompt.
func NewTokenResolver(log zerolog.Logger) *TokenResolver {
	return &TokenResolver{
		Lookup:   os.LookupEnv,
		Prompter: ReadlinePrompter{Stdin: os.Stdin, Stdout: os.Stdout},
		Log:      log,
	}
}

func (r *TokenResolver) Token(ctx context.Context) (string, error) {
	if v, ok := r.Lookup(TokenEnv); ok && v != "" {
		r.Log.Info().Str("source", "env").Msg("auth token resolved")
		return v, nil
	}
	if r.Prompter == nil {
		r.Log.Warn().Msg("no auth token in environment and no prompt available; continuing without one")
		return "", nil
	}
	tok, err := r.Prompter.Prompt(ctx, "Enter your authorization token received by email: ")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		// raw mode turns Ctrl-C into ErrInterrupt instead of SIGINT
		if errors.Is(err, readline.ErrInterrupt) {
			return "", fmt.Errorf("token prompt interrupted: %w", context.Canceled)
		}
		if errors.Is(err, io.EOF) {
			r.Log.Warn().Err(err).Msg("token prompt closed; continuing with empty token")
			return "", nil
		}
		r.Log.Warn().Err(err).Msg("token prompt failed; continuing with empty token")
		return "", nil
	}
	r.Log.Info().Str("source", "prompt").Msg("auth token resolved")
	return tok, nil
}
