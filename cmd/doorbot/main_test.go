package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs the root command with args and returns captured stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestValidate(t *testing.T) {
	t.Setenv("DOORBOT_TELEGRAM_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	good := writeConfig(t, `
telegram:
  token: "123:abc"
door:
  url: https://door.example.org
  poll_interval: 30s
`)
	out, err := execute(t, "validate", "-c", good)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, want := range []string{"Config is valid!", "https://door.example.org", "30s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	noToken := writeConfig(t, "door:\n  poll_interval: 30s\n")
	if _, err := execute(t, "validate", "-c", noToken); err == nil {
		t.Fatalf("expected missing token error")
	}
	if _, err := execute(t, "validate", "--offline", "-c", noToken); err != nil {
		t.Fatalf("offline validate: %v", err)
	}

	bad := writeConfig(t, "door:\n  poll_interval: soon\n")
	if _, err := execute(t, "validate", "--offline", "-c", bad); err == nil {
		t.Fatalf("expected invalid interval error")
	}
}

func TestSubscribersAndHistory(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, fmt.Sprintf("storage:\n  driver: file\n  dir: %q\n", dir))

	for _, tt := range []struct {
		args []string
		want string
	}{
		{[]string{"subscribers", "add", "42"}, "42 added"},
		{[]string{"subscribers", "add", "42"}, "42 unchanged"},
		{[]string{"subscribers", "add", "7"}, "7 added"},
		{[]string{"subscribers", "list"}, "42\n7\n"},
		{[]string{"subscribers", "remove", "42"}, "42 removed"},
		{[]string{"subscribers", "remove", "42"}, "42 unchanged"},
		{[]string{"subscribers", "list"}, "7\n"},
		{[]string{"history", "-n", "5"}, "(0 of 0 samples)"},
	} {
		out, err := execute(t, append(tt.args, "-c", cfg)...)
		if err != nil {
			t.Fatalf("%v: %v", tt.args, err)
		}
		if !strings.Contains(out, tt.want) {
			t.Fatalf("%v: output %q, want %q", tt.args, out, tt.want)
		}
	}

	if _, err := execute(t, "subscribers", "add", "abc", "-c", cfg); err == nil {
		t.Fatalf("expected invalid id error")
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"geschlossen"}`)
	}))
	defer srv.Close()

	cfg := writeConfig(t, "door:\n  fetch_timeout: 2s\n")
	out, err := execute(t, "status", "--url", srv.URL, "-c", cfg)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if strings.TrimSpace(out) != "closed" {
		t.Fatalf("out=%q", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "doorbot dev") {
		t.Fatalf("out=%q", out)
	}
}
