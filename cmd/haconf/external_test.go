package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/4thel00z/haconf/internal"
)

func TestFindExternal(t *testing.T) {
	tmp := t.TempDir()
	script := filepath.Join(tmp, "haconf-test")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho ok"), 0755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PATH", tmp+string(os.PathListSeparator)+os.Getenv("PATH"))

	path, err := findExternal("test")
	if err != nil {
		t.Fatalf("expected to find haconf-test, got error: %v", err)
	}
	if path != script {
		t.Errorf("expected %s, got %s", script, path)
	}
}

func TestFindExternalNotFound(t *testing.T) {
	if _, err := findExternal("nonexistent-command-12345"); err == nil {
		t.Fatal("expected error for nonexistent command")
	}
}

func TestListExternalCommands(t *testing.T) {
	tmp := t.TempDir()

	for _, s := range []string{"haconf-foo", "haconf-bar", "other-script"} {
		if err := os.WriteFile(filepath.Join(tmp, s), []byte("#!/bin/sh"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmp, "haconf-noexec"), []byte("#!/bin/sh"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PATH", tmp)

	found := make(map[string]bool)
	for _, c := range listExternalCommands() {
		found[c] = true
	}

	for _, expected := range []string{"foo", "bar"} {
		if !found[expected] {
			t.Errorf("expected to find %q in external commands", expected)
		}
	}
	if found["other-script"] || found["noexec"] {
		t.Errorf("unexpected external commands: %v", found)
	}
}

func TestBuildExternalEnv(t *testing.T) {
	root := t.TempDir()
	t.Setenv(internal.EnvRoot, root)
	t.Setenv(internal.EnvMeta, "")

	env := buildExternalEnv("1.0.0")

	vars := make(map[string]string)
	for _, e := range env {
		if k, v, ok := strings.Cut(e, "="); ok && strings.HasPrefix(k, "HACONF_") {
			vars[k] = v
		}
	}

	if vars["HACONF_VERSION"] != "1.0.0" {
		t.Errorf("expected HACONF_VERSION=1.0.0, got %q", vars["HACONF_VERSION"])
	}
	if _, ok := vars["HACONF_BIN"]; !ok {
		t.Error("HACONF_BIN not found in env")
	}
	if vars[internal.EnvMeta] != filepath.Join(root, internal.MetaDirName) {
		t.Errorf("expected resolved meta path, got %q", vars[internal.EnvMeta])
	}
}
