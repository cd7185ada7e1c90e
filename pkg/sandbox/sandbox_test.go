package sandbox

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stashfs/stashfs/internal/apperr"
)

func TestAllowed(t *testing.T) {
	for _, cmd := range []string{"ls", "grep", "cat", "wc", "find"} {
		if !Allowed(cmd) {
			t.Errorf("Allowed(%q) = false", cmd)
		}
	}
	for _, cmd := range []string{"rm", "sh", "bash", "curl", "mv", ""} {
		if Allowed(cmd) {
			t.Errorf("Allowed(%q) = true", cmd)
		}
	}
}

func TestValidateArgs(t *testing.T) {
	if err := ValidateArgs([]string{"-la", "subdir", "*.txt"}); err != nil {
		t.Errorf("benign args rejected: %v", err)
	}

	bad := [][]string{
		{"../etc"},
		{"a;b"},
		{"a|b"},
		{"`id`"},
		{"$HOME"},
		{"a&b"},
		{"x\ny"},
		{"x\ry"},
		{"$(id)"},
	}
	for _, args := range bad {
		err := ValidateArgs(args)
		if err == nil {
			t.Errorf("ValidateArgs(%q) accepted", args)
			continue
		}
		if apperr.HTTPStatus(err) != http.StatusForbidden {
			t.Errorf("ValidateArgs(%q) status = %d, want 403", args, apperr.HTTPStatus(err))
		}
	}
}

func TestRun_ListsWorkingDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := NewRunner(2)
	res, err := r.Run(context.Background(), dir, "ls", nil, 10*time.Second, 1<<20)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code %d, stderr %q", res.ExitCode, res.Stderr)
	}
	if res.Stdout == "" || res.Truncated {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRun_RejectsUnknownCommand(t *testing.T) {
	r := NewRunner(1)
	_, err := r.Run(context.Background(), t.TempDir(), "rm", []string{"-rf", "/"}, time.Second, 1024)
	if apperr.HTTPStatus(err) != http.StatusForbidden {
		t.Errorf("status = %d, want 403", apperr.HTTPStatus(err))
	}
}

func TestRun_RejectsInjection(t *testing.T) {
	r := NewRunner(1)
	_, err := r.Run(context.Background(), t.TempDir(), "ls", []string{"; cat /etc/passwd"}, time.Second, 1024)
	if apperr.HTTPStatus(err) != http.StatusForbidden {
		t.Errorf("status = %d, want 403", apperr.HTTPStatus(err))
	}
}

func TestRun_Timeout(t *testing.T) {
	r := NewRunner(1)
	res, err := r.Run(context.Background(), t.TempDir(), "tail", []string{"-f", "/dev/null"}, 100*time.Millisecond, 1024)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code %d, want -1", res.ExitCode)
	}
	if res.Stderr != "Command timed out" {
		t.Errorf("stderr %q", res.Stderr)
	}
	if res.Stdout != "" {
		t.Errorf("stdout %q, want empty", res.Stdout)
	}
}

func TestRun_TruncatesOutput(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'x'
	}
	if err := os.WriteFile(filepath.Join(dir, "big.txt"), big, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := NewRunner(1)
	res, err := r.Run(context.Background(), dir, "cat", []string{"big.txt"}, 10*time.Second, 100)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false for over-limit output")
	}
	if len(res.Stdout) != 100 {
		t.Errorf("stdout length %d, want 100", len(res.Stdout))
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := NewRunner(1)
	res, err := r.Run(context.Background(), t.TempDir(), "cat", []string{"does-not-exist"}, 10*time.Second, 1024)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode == 0 {
		t.Error("expected non-zero exit code")
	}
	if res.Stderr == "" {
		t.Error("expected stderr output")
	}
}
