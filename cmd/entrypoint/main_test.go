package main

import (
	"os/exec"
	"testing"
	"time"
)

func TestExitCode(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Fatalf("exitCode(nil) = %d, want 0", got)
	}
	err := exec.Command("sh", "-c", "exit 3").Run()
	if got := exitCode(err); got != 3 {
		t.Fatalf("exitCode(exit 3) = %d, want 3", got)
	}
}

func TestGetenvDefault(t *testing.T) {
	t.Setenv("PINMAP_TEST_VALUE", "")
	if got := getenvDefault("PINMAP_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("got %q, want fallback", got)
	}
	t.Setenv("PINMAP_TEST_VALUE", "set")
	if got := getenvDefault("PINMAP_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("got %q, want set", got)
	}
}

func TestWaitForChildrenKillsOnTimeout(t *testing.T) {
	child, err := startChild("sleeper", exec.Command("sleep", "30"))
	if err != nil {
		t.Fatalf("start child: %v", err)
	}
	exitCh := make(chan processExit, 1)
	go waitChild(child, exitCh)

	start := time.Now()
	waitForChildren(make(chan processExit), 1, 50*time.Millisecond, []*childProcess{child})
	select {
	case <-exitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("child was not killed")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("waitForChildren did not honor timeout")
	}
}
