package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionShort(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Fatalf("output = %q, want %q", out.String(), version)
	}
}
