// Package main supervises the pins API and the MCP bridge in one container.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	platformgrpc "github.com/louisbranch/pinmap/internal/platform/grpc"
	pinsserver "github.com/louisbranch/pinmap/internal/services/pins/app"
)

const (
	defaultPinsPort    = "3000"
	defaultHealthPort  = "3001"
	defaultMCPHTTPAddr = "0.0.0.0:3002"
	startupTimeout     = 30 * time.Second
	shutdownTimeout    = 10 * time.Second
)

type childProcess struct {
	name string
	cmd  *exec.Cmd
}

type processExit struct {
	name string
	err  error
}

// main starts the pins server, waits for it to report healthy so the schema
// exists, then starts the MCP bridge. Both stop together when either exits
// or a signal arrives.
func main() {
	log.SetPrefix("[ENTRYPOINT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthPort := getenvDefault("PINMAP_HEALTH_PORT", defaultHealthPort)
	pinsCmd := exec.Command(
		"/app/pins",
		"-port="+getenvDefault("PINMAP_PORT", defaultPinsPort),
		"-health-port="+healthPort,
	)
	pins, err := startChild("pins", pinsCmd)
	if err != nil {
		log.Fatalf("failed to start pins server: %v", err)
	}

	startupCtx, cancelStartup := context.WithTimeout(ctx, startupTimeout)
	err = platformgrpc.WaitForAddr(startupCtx, "127.0.0.1:"+healthPort, pinsserver.HealthServiceName, log.Printf)
	cancelStartup()
	if err != nil {
		terminateChildren([]*childProcess{pins})
		log.Fatalf("pins server did not become healthy: %v", err)
	}

	mcpCmd := exec.Command(
		"/app/mcp",
		"-transport=http",
		"-http-addr="+getenvDefault("PINMAP_MCP_HTTP_ADDR", defaultMCPHTTPAddr),
	)
	mcp, err := startChild("mcp", mcpCmd)
	if err != nil {
		terminateChildren([]*childProcess{pins})
		log.Fatalf("failed to start MCP server: %v", err)
	}

	children := []*childProcess{pins, mcp}
	exitCh := make(chan processExit, len(children))
	for _, child := range children {
		go waitChild(child, exitCh)
	}

	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
		terminateChildren(children)
		waitForChildren(exitCh, len(children), shutdownTimeout, children)
	case exit := <-exitCh:
		log.Printf("%s exited: %v", exit.name, exit.err)
		terminateChildren(children)
		waitForChildren(exitCh, len(children)-1, shutdownTimeout, children)
		os.Exit(exitCode(exit.err))
	}
}

func startChild(name string, cmd *exec.Cmd) (*childProcess, error) {
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	log.Printf("started %s (pid %d)", name, cmd.Process.Pid)
	return &childProcess{name: name, cmd: cmd}, nil
}

func waitChild(child *childProcess, exitCh chan<- processExit) {
	err := child.cmd.Wait()
	exitCh <- processExit{name: child.name, err: err}
}

func terminateChildren(children []*childProcess) {
	for _, child := range children {
		if child == nil || child.cmd == nil || child.cmd.Process == nil {
			continue
		}
		_ = child.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// waitForChildren waits for the remaining exits or forces shutdown.
func waitForChildren(exitCh <-chan processExit, remaining int, timeout time.Duration, children []*childProcess) {
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for remaining > 0 {
		select {
		case <-exitCh:
			remaining--
		case <-timer.C:
			forceKill(children)
			return
		}
	}
}

// forceKill stops children that ignored SIGTERM.
func forceKill(children []*childProcess) {
	for _, child := range children {
		if child == nil || child.cmd == nil || child.cmd.Process == nil {
			continue
		}
		_ = child.cmd.Process.Kill()
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return 1
}

// getenvDefault returns the env value or a fallback when unset.
func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
