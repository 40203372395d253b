package main

import (
	"testing"
)

func TestParseArgs(t *testing.T) {
	kv, err := parseArgs([]string{"name=web01", "size=1024", "path=[ds1] a=b.vmdk"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if kv["name"] != "web01" || kv["size"] != "1024" {
		t.Errorf("kv = %v", kv)
	}
	// Only the first '=' splits; values may contain more.
	if kv["path"] != "[ds1] a=b.vmdk" {
		t.Errorf("path = %q", kv["path"])
	}

	if _, err := parseArgs([]string{"noequals"}); err == nil {
		t.Error("bare argument should be rejected")
	}
	if _, err := parseArgs([]string{"=value"}); err == nil {
		t.Error("empty key should be rejected")
	}
}

func TestCommandTable(t *testing.T) {
	for verb, cmd := range commands {
		if cmd.usage == "" {
			t.Errorf("command %q has no usage", verb)
		}
		if cmd.help == "" {
			t.Errorf("command %q has no help", verb)
		}
		if cmd.run == nil {
			t.Errorf("command %q has no handler", verb)
		}
	}
}

func TestGetPasswordPrecedence(t *testing.T) {
	t.Setenv("VSPHERE_PASSWORD", "from-env")
	if got := getPassword("from-flag"); got != "from-flag" {
		t.Errorf("flag should win, got %q", got)
	}
	if got := getPassword(""); got != "from-env" {
		t.Errorf("env should be next, got %q", got)
	}
}
