package cli

import "testing"

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd("1.2.3")

	if root.Use != "pushdeck" {
		t.Fatalf("expected root use pushdeck, got %q", root.Use)
	}
	if root.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %q", root.Version)
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatal("expected persistent --config flag")
	}

	want := []string{
		"run", "servers", "subscribe", "unsubscribe", "mute",
		"topics", "inbox", "read", "show", "delete", "favorite", "settings",
	}
	names := make(map[string]struct{})
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = struct{}{}
	}
	for _, name := range want {
		if _, ok := names[name]; !ok {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}
