package app

import (
	"testing"
	"time"
)

func TestSchedulerStartRejectsInvalidSchedule(t *testing.T) {
	repo := newStubRepository()
	registry := reconcilerRegistry(t)
	reconciler := NewReconciler(repo, registry, 24*time.Hour, testLogger())
	health := NewHealthCache(registry)

	scheduler := NewScheduler(reconciler, health, "not a schedule", "@every 5m", testLogger())
	if err := scheduler.Start(); err == nil {
		t.Fatal("expected an unparseable reconciliation schedule to fail Start")
	}

	scheduler = NewScheduler(reconciler, health, "@hourly", "also not a schedule", testLogger())
	if err := scheduler.Start(); err == nil {
		t.Fatal("expected an unparseable health schedule to fail Start")
	}
}

func TestSchedulerStartAcceptsValidSchedules(t *testing.T) {
	repo := newStubRepository()
	registry := reconcilerRegistry(t)
	reconciler := NewReconciler(repo, registry, 24*time.Hour, testLogger())
	health := NewHealthCache(registry)

	scheduler := NewScheduler(reconciler, health, "@hourly", "@every 5m", testLogger())
	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-scheduler.Stop().Done()
}
