package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/chirpling-ai/chirpling/pkg/proxy"
)

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, proxyDeps{
		loadConfig: func() (proxy.Config, error) {
			return proxy.Config{}, errors.New("boom")
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if stderr.String() == "" {
		t.Fatal("expected stderr output for startup error")
	}
}

func TestRunMain_RejectsInvalidTarget(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, proxyDeps{
		loadConfig: func() (proxy.Config, error) {
			return proxy.Config{Addr: ":0", TargetURL: "not a url"}, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
}

func TestRunProxy_StopsOnSignal(t *testing.T) {
	t.Parallel()

	sigCh := make(chan chan<- os.Signal, 1)
	deps := proxyDeps{
		loadConfig: func() (proxy.Config, error) {
			return proxy.Config{
				Addr:               "127.0.0.1:0",
				TargetURL:          "http://127.0.0.1:9",
				CORSAllowedOrigins: map[string]struct{}{},
			}, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			sigCh <- c
		},
		signalStop: func(c chan<- os.Signal) {},
	}

	done := make(chan error, 1)
	go func() {
		done <- runProxy(context.Background(), nil, deps)
	}()

	c := <-sigCh
	c <- os.Interrupt

	if err := <-done; err != nil {
		t.Fatalf("runProxy: %v", err)
	}
}
