package main

import (
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd("1.0.0", nil)

	if cmd == nil {
		t.Fatal("NewRootCmd returned nil")
	}

	if cmd.Use != "haconf" {
		t.Errorf("expected Use='haconf', got %q", cmd.Use)
	}

	if cmd.Version != "1.0.0" {
		t.Errorf("expected Version='1.0.0', got %q", cmd.Version)
	}
}

func TestRootCmdHasFlags(t *testing.T) {
	cmd := NewRootCmd("1.0.0", nil)

	for _, name := range []string{"root", "meta", "config", "author", "json"} {
		if f := cmd.PersistentFlags().Lookup(name); f == nil {
			t.Errorf("expected persistent flag %q to exist", name)
		}
	}
}

func TestRootCmdSubcommands(t *testing.T) {
	cmd := NewRootCmd("1.0.0", newApp(nil))

	want := []string{"init", "write", "append", "rm", "cat", "ls", "log", "show", "diff", "rollback", "status", "watch", "serve", "mcp"}
	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub == cmd {
			t.Errorf("expected subcommand %q", name)
		}
	}
}

func TestSubject(t *testing.T) {
	cases := map[string]string{
		"write config.yaml":            "write config.yaml",
		"tune lights\n\nlonger body\n": "tune lights",
		"set a: 4\n":                   "set a: 4",
		"":                             "",
	}
	for in, want := range cases {
		if got := subject(in); got != want {
			t.Errorf("subject(%q) = %q, want %q", in, got, want)
		}
	}
}
