package github

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// stubGH installs a fake gh binary on PATH with the given shell body and
// clears GITHUB_TOKEN so resolution falls through to it. Returns the stub
// directory so tests can read files the script writes.
func stubGH(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("gh stub is a shell script")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "gh"), []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write gh stub: %v", err)
	}
	t.Setenv("GITHUB_TOKEN", "")
	// Prepend rather than replace so the script can still find core
	// utilities like dirname; the stub still shadows any real gh.
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return dir
}

func TestResolveAuthTokenPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		provided   string
		env        string
		wantToken  string
		wantSource AuthTokenSource
	}{
		{"explicit beats env", " explicit ", "env-token", "explicit", AuthTokenSourceExplicit},
		{"env when nothing provided", "", "env-token", "env-token", AuthTokenSourceEnv},
		{"env value is trimmed", "", "  padded  ", "padded", AuthTokenSourceEnv},
		{"nothing anywhere", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GITHUB_TOKEN", tt.env)
			t.Setenv("PATH", t.TempDir()) // no gh on PATH

			tok, src, err := ResolveAuthToken(context.Background(), tt.provided)
			if err != nil {
				t.Fatalf("ResolveAuthToken error: %v", err)
			}
			if tok != tt.wantToken {
				t.Fatalf("token: want %q, got %q", tt.wantToken, tok)
			}
			if src != tt.wantSource {
				t.Fatalf("source: want %q, got %q", tt.wantSource, src)
			}
		})
	}
}

func TestResolveAuthTokenFallsBackToGH(t *testing.T) {
	dir := stubGH(t, `printf '%s\n' "$@" > "$(dirname "$0")/argv"
echo cli-token`)

	tok, src, err := ResolveAuthToken(context.Background(), "")
	if err != nil {
		t.Fatalf("ResolveAuthToken error: %v", err)
	}
	if tok != "cli-token" {
		t.Fatalf("token: want cli-token, got %q", tok)
	}
	if src != AuthTokenSourceGitHubCL {
		t.Fatalf("source: want %q, got %q", AuthTokenSourceGitHubCL, src)
	}

	argv, err := os.ReadFile(filepath.Join(dir, "argv"))
	if err != nil {
		t.Fatalf("read recorded argv: %v", err)
	}
	if got, want := string(argv), "auth\ntoken\n-h\ngithub.com\n"; got != want {
		t.Fatalf("gh invoked with %q, want %q", got, want)
	}
}

func TestResolveAuthTokenTreatsFailingGHAsAbsent(t *testing.T) {
	stubGH(t, "echo 'not logged in' >&2\nexit 1")

	tok, src, err := ResolveAuthToken(context.Background(), "")
	if err != nil {
		t.Fatalf("a failing gh must resolve like a missing one, got: %v", err)
	}
	if tok != "" || src != "" {
		t.Fatalf("want no token, got %q from %q", tok, src)
	}
}

func TestResolveAuthTokenRejectsMalformedGHOutput(t *testing.T) {
	stubGH(t, "printf 'one two\\n'")

	if _, _, err := ResolveAuthToken(context.Background(), ""); err == nil {
		t.Fatal("a token containing whitespace must be rejected")
	}
}

func TestResolveAuthTokenHonorsCanceledContext(t *testing.T) {
	stubGH(t, "echo cli-token")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := ResolveAuthToken(ctx, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
