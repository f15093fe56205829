// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docagent

import (
	"context"
	"slices"
	"sync"
)

// Pool keeps one Runner per document. Requests for different documents
// run in parallel; a request for a document that is already running
// fails with ErrRunInProgress.
type Pool struct {
	// New creates the Runner for a document the first time it is
	// seen. Each Runner must have its own Supervisor (or none, letting
	// the Runner create one).
	New func(documentPath string) *Runner

	mu      sync.Mutex
	runners map[string]*Runner
}

// Runner returns the Runner for documentPath, creating it on first use.
func (p *Pool) Runner(documentPath string) *Runner {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runners == nil {
		p.runners = make(map[string]*Runner)
	}
	runner, ok := p.runners[documentPath]
	if !ok {
		if p.New != nil {
			runner = p.New(documentPath)
		} else {
			runner = &Runner{}
		}
		p.runners[documentPath] = runner
	}
	return runner
}

// Run executes request on its document's Runner.
func (p *Pool) Run(ctx context.Context, request Request, notify NotifyFunc) Response {
	return p.Runner(request.DocumentPath).Run(ctx, request, notify)
}

// Terminate cancels the run in progress for documentPath, if any.
func (p *Pool) Terminate(documentPath string) {
	p.mu.Lock()
	runner := p.runners[documentPath]
	p.mu.Unlock()
	if runner != nil {
		runner.Terminate()
	}
}

// TerminateAll cancels every run in progress.
func (p *Pool) TerminateAll() {
	p.mu.Lock()
	runners := make([]*Runner, 0, len(p.runners))
	for _, runner := range p.runners {
		runners = append(runners, runner)
	}
	p.mu.Unlock()
	for _, runner := range runners {
		runner.Terminate()
	}
}

// Running returns the documents with a run in progress, sorted.
func (p *Pool) Running() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var running []string
	for documentPath, runner := range p.runners {
		if runner.IsRunning() {
			running = append(running, documentPath)
		}
	}
	slices.Sort(running)
	return running
}
