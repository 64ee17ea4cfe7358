// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/styletransfer/graph"
)

// ErrThreadClosed is returned when enqueueing on a closed thread.
var ErrThreadClosed = errors.New("render: thread closed")

// Command records passes onto b. The thread executes b after the command
// returns; a command that returns an error has its recording discarded.
type Command func(ctx context.Context, b *graph.Recorder) error

type request struct {
	name   string
	cmd    Command
	done   chan struct{}
	result chan error
}

// Thread executes commands on a single goroutine, in the order they were
// enqueued.
type Thread struct {
	dev   graph.Device
	queue chan request
	exit  chan struct{}

	mu     sync.Mutex
	closed bool

	errMu sync.Mutex
	errs  []error
}

// queueDepth bounds the number of commands waiting to execute.
const queueDepth = 64

// NewThread starts a rendering timeline executing on dev.
func NewThread(dev graph.Device) *Thread {
	t := &Thread{
		dev:   dev,
		queue: make(chan request, queueDepth),
		exit:  make(chan struct{}),
	}
	go t.loop()
	return t
}

// Device returns the device commands execute on.
func (t *Thread) Device() graph.Device { return t.dev }

// Enqueue schedules cmd. Errors it produces are reported by the next Flush.
func (t *Thread) Enqueue(name string, cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("render: nil command %q", name)
	}
	return t.send(request{name: name, cmd: cmd})
}

// Do runs cmd on the thread and waits for it, returning its own error.
func (t *Thread) Do(name string, cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("render: nil command %q", name)
	}
	result := make(chan error, 1)
	if err := t.send(request{name: name, cmd: cmd, result: result}); err != nil {
		return err
	}
	return <-result
}

// Flush blocks until every previously enqueued command has executed and
// returns their joined errors. The error list is reset.
func (t *Thread) Flush() error {
	done := make(chan struct{})
	if err := t.send(request{done: done}); err != nil {
		return err
	}
	<-done
	return t.takeErrors()
}

// Close flushes pending commands and stops the thread. It is safe to call
// more than once.
func (t *Thread) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	<-t.exit
	return t.takeErrors()
}

func (t *Thread) send(r request) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrThreadClosed
	}
	t.queue <- r
	return nil
}

func (t *Thread) takeErrors() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	err := errors.Join(t.errs...)
	t.errs = nil
	return err
}

func (t *Thread) loop() {
	defer close(t.exit)
	ctx := context.Background()
	for r := range t.queue {
		if r.cmd == nil {
			close(r.done)
			continue
		}
		err := t.execute(ctx, r)
		if r.result != nil {
			r.result <- err
			continue
		}
		if err != nil {
			t.errMu.Lock()
			t.errs = append(t.errs, err)
			t.errMu.Unlock()
		}
	}
}

func (t *Thread) execute(ctx context.Context, r request) error {
	rec := graph.NewRecorder(t.dev)
	if err := r.cmd(ctx, rec); err != nil {
		slogger().Debug("render: command failed", "command", r.name, "err", err)
		return fmt.Errorf("render: %s: %w", r.name, err)
	}
	if err := rec.Execute(ctx); err != nil {
		slogger().Warn("render: graph execution failed", "command", r.name, "err", err)
		return fmt.Errorf("render: %s: %w", r.name, err)
	}
	slogger().Debug("render: executed", "command", r.name, "passes", len(rec.Passes()))
	return nil
}
