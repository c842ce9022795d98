/*
Copyright 2021 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package pollloop is the scheduler that alternates the reconciler's apply
// pass with a sleep that can be woken early by a ProjectMapping watch event
// (spec.md §4.7).
package pollloop

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/mikolajroszak/kubetruth/internal/gateway"
	"github.com/mikolajroszak/kubetruth/internal/sleep"
)

// WithPolling runs body forever at roughly interval cadence, waking early
// whenever gw's ProjectMapping watch delivers an event. Every opened
// watcher is Stop()ped exactly once per iteration, even if body panics or
// the context is canceled; body's own errors never terminate the loop.
// The loop exits only when ctx is canceled.
func WithPolling(ctx context.Context, gw gateway.Gateway, interval time.Duration, body func(context.Context) error) {
	sleeper := sleep.New()

	for {
		if ctx.Err() != nil {
			return
		}

		runIteration(ctx, gw, interval, body, sleeper)
	}
}

func runIteration(ctx context.Context, gw gateway.Gateway, interval time.Duration, body func(context.Context) error, sleeper *sleep.InterruptibleSleep) {
	watcher, err := gw.WatchProjectMappings(ctx)
	if err != nil {
		klog.Errorf("pollloop: opening watch: %v", err)
		// No watcher to wake us early this iteration; still run body and
		// sleep so a single bad watch attempt doesn't wedge the process.
		runBody(body, ctx)
		sleeper.Sleep(interval)

		return
	}
	// Guaranteed exactly once per iteration, even if body panics: runBody
	// recovers internally, so this defer always runs on the way out.
	defer watcher.Stop()

	go func() {
		for range watcher.ResultChan() {
			sleeper.Interrupt()
			return
		}
	}()

	runBody(body, ctx)
	sleeper.Sleep(interval)
}

func runBody(body func(context.Context) error, ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("pollloop: body panicked: %v", r)
		}
	}()

	if err := body(ctx); err != nil {
		klog.Errorf("pollloop: body returned error: %v", err)
	}
}
