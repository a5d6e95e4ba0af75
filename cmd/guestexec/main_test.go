package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != Version {
		t.Fatalf("output = %q", out.String())
	}
}

func TestServeRequiresConfig(t *testing.T) {
	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve"})
	if err := root.Execute(); err == nil {
		t.Fatalf("serve without config must fail")
	}
}

func TestServeRejectsMissingFile(t *testing.T) {
	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--config=/nonexistent/agent.toml"})
	if err := root.Execute(); err == nil {
		t.Fatalf("missing config file must fail")
	}
}
