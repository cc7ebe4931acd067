package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrder(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "points-reconcile"}
	jobB := &stubJob{name: "outbox-retention"}
	for _, job := range []Job{jobA, jobB} {
		if err := registry.Register(job); err != nil {
			t.Fatalf("register %s: %v", job.Name(), err)
		}
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsInvalidJobs(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil job rejected")
	}
	if err := registry.Register(&stubJob{}); err == nil {
		t.Fatalf("expected unnamed job rejected")
	}
	if err := registry.Register(&stubJob{name: "points-reconcile"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&stubJob{name: "points-reconcile"}); err == nil {
		t.Fatalf("expected duplicate name rejected")
	}
}
