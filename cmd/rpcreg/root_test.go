package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/rpckit/registry"
	"github.com/vinayprograms/rpckit/rpcurl"
)

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCommandsExist(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"register", "lookup", "watch", "extensions"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Errorf("Command %s not found: %v", name, err)
			continue
		}
		if cmd.Name() != name {
			t.Errorf("Expected command name %s, got %s", name, cmd.Name())
		}
	}
}

func TestExtensions(t *testing.T) {
	out, err := run(t, context.Background(), "extensions")
	if err != nil {
		t.Fatalf("extensions error: %v", err)
	}
	for _, want := range []string{"local (default)", "nats", "zk", "json (default)", "toml", "yaml"} {
		if !strings.Contains(out, want) {
			t.Errorf("extensions output missing %q:\n%s", want, out)
		}
	}
}

func TestLookup(t *testing.T) {
	reg, err := registry.Get(rpcurl.MustParse("local://127.0.0.1:0"))
	if err != nil {
		t.Fatalf("registry.Get error: %v", err)
	}
	echo := rpcurl.MustParse("rpckit://10.0.0.1:20880?interface=com.example.Echo")
	if err := reg.Register(echo); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	defer reg.Unregister(echo)

	out, err := run(t, context.Background(), "--registry", "local://127.0.0.1:9", "lookup", "com.example.Echo")
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if strings.TrimSpace(out) != echo.String() {
		t.Errorf("lookup output = %q, want %q", out, echo.String())
	}

	out, err = run(t, context.Background(), "-r", "local://127.0.0.1:9", "lookup", "-o", "json", "com.example.Echo")
	if err != nil {
		t.Fatalf("lookup -o json error: %v", err)
	}
	if !strings.Contains(out, `"providers":[`) {
		t.Errorf("json output = %q", out)
	}
}

func TestLookup_Errors(t *testing.T) {
	if _, err := run(t, context.Background(), "-r", "local://127.0.0.1:9", "lookup", "-o", "xml", "Echo"); err == nil {
		t.Error("expected error for unknown output format")
	}
	if _, err := run(t, context.Background(), "-r", "carrier-pigeon://127.0.0.1:9", "lookup", "Echo"); err == nil {
		t.Error("expected error for unknown registry protocol")
	}
	if _, err := run(t, context.Background(), "--log-level", "loud", "extensions"); err == nil {
		t.Error("expected error for bad log level")
	}
}

func TestRegister_WithdrawsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := run(t, ctx, "-r", "local://127.0.0.1:10", "register",
			"rpckit://10.0.0.5:20880?interface=com.example.Held")
		done <- err
	}()

	watcher, err := registry.Get(rpcurl.MustParse("local://127.0.0.1:11"))
	if err != nil {
		t.Fatalf("registry.Get error: %v", err)
	}
	held := rpcurl.MustParse("rpckit://0.0.0.0:0?interface=com.example.Held")

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _ := watcher.Lookup(held)
		if containsHost(got, "10.0.0.5") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("provider never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("register error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("register did not exit on cancel")
	}
}

func containsHost(urls []*rpcurl.URL, host string) bool {
	for _, u := range urls {
		if u.Host() == host {
			return true
		}
	}
	return false
}

func TestCondition(t *testing.T) {
	c := condition("com.example.Echo")
	if c.ServiceName() != "com.example.Echo" {
		t.Errorf("ServiceName = %q", c.ServiceName())
	}
	c = condition("rpckit://1.2.3.4:5?interface=com.example.Other")
	if c.ServiceName() != "com.example.Other" || c.Host() != "1.2.3.4" {
		t.Errorf("condition from url = %s", c)
	}
}
