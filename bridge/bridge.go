// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package bridge runs blocking native calls on dedicated worker
// goroutines, each locked to its own OS thread, and hands the result back
// to the caller over a single-use reply channel.
//
// A context passed to Call bounds how long the caller waits. It cannot
// interrupt a native call that has already started: the worker finishes
// it and the reply is dropped.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/berrytern/ifx"
)

// ErrClosed is returned for calls submitted after Close.
var ErrClosed = errors.New("bridge: closed")

// Bridge is a fixed set of workers.
type Bridge struct {
	logger *slog.Logger
	jobs   chan func()
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger that receives recovered panics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New starts workers worker goroutines.
func New(workers int, opts ...Option) (*Bridge, error) {
	if workers < 1 {
		return nil, &ifx.Error{Kind: ifx.KindInvalidArgument, Msg: fmt.Sprintf("bridge needs at least one worker, got %d", workers)}
	}
	b := &Bridge{
		logger: slog.New(slog.DiscardHandler),
		jobs:   make(chan func()),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.wg.Add(workers)
	for range workers {
		go b.work()
	}
	return b, nil
}

func (b *Bridge) work() {
	defer b.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		select {
		case job := <-b.jobs:
			job()
		case <-b.done:
			return
		}
	}
}

// Close stops accepting calls and waits for running calls to return.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
	b.wg.Wait()
}

type result[T any] struct {
	v   T
	err error
}

// Call runs fn on a worker and returns its result, or the context's error
// if ctx ends first.
func Call[T any](ctx context.Context, b *Bridge, fn func() (T, error)) (T, error) {
	return run(ctx, b, fn, nil)
}

// run is Call with a release hook the worker runs once fn has returned,
// or that run itself calls if fn was never handed to a worker.
func run[T any](ctx context.Context, b *Bridge, fn func() (T, error), release func()) (T, error) {
	var zero T
	if release == nil {
		release = func() {}
	}
	reply := make(chan result[T], 1)
	job := func() {
		defer release()
		var r result[T]
		defer func() {
			if p := recover(); p != nil {
				b.logger.Error("bridged call panicked", slog.Any("panic", p))
				r = result[T]{err: fmt.Errorf("bridge: call panicked: %v", p)}
			}
			reply <- r
		}()
		r.v, r.err = fn()
	}

	select {
	case b.jobs <- job:
	case <-b.done:
		release()
		return zero, ErrClosed
	case <-ctx.Done():
		release()
		return zero, fmt.Errorf("bridge: call not started: %w", ctx.Err())
	}

	select {
	case r := <-reply:
		return r.v, r.err
	case <-ctx.Done():
		return zero, fmt.Errorf("bridge: stopped waiting: %w", ctx.Err())
	}
}
