package scheduler

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func newTestScheduler() (*Scheduler, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return New(logrus.NewEntry(logger)), hook
}

func TestAddSweepRejectsBadInput(t *testing.T) {
	s, _ := newTestScheduler()

	if err := s.AddSweep("bad", "not a spec", func() int { return 0 }); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
	if err := s.AddSweep("nil", EveryMinute, nil); err == nil {
		t.Fatalf("expected error for nil sweep")
	}
	if len(s.cron.Entries()) != 0 {
		t.Fatalf("expected no registered entries")
	}
}

func TestSweepJobLogsRemovals(t *testing.T) {
	s, hook := newTestScheduler()

	calls := 0
	if err := s.AddSweep("pending_sweep", EveryMinute, func() int {
		calls++
		return 3
	}); err != nil {
		t.Fatalf("AddSweep returned error: %v", err)
	}

	entries := s.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entries[0].Job.Run()

	if calls != 1 {
		t.Fatalf("expected sweep to run once, got %d", calls)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "job_swept" || entry.Data["removed"] != 3 || entry.Data["job"] != "pending_sweep" {
		t.Fatalf("unexpected log entry %+v", entry)
	}
}

func TestSweepJobQuietWhenNothingRemoved(t *testing.T) {
	s, hook := newTestScheduler()
	if err := s.AddSweep("throttle_sweep", EveryMinute, func() int { return 0 }); err != nil {
		t.Fatalf("AddSweep returned error: %v", err)
	}

	s.cron.Entries()[0].Job.Run()

	if len(hook.AllEntries()) != 0 {
		t.Fatalf("expected no log entries, got %d", len(hook.AllEntries()))
	}
}

func TestSweepJobRecoversPanic(t *testing.T) {
	s, hook := newTestScheduler()
	if err := s.AddSweep("boom", EveryMinute, func() int { panic("bad sweep") }); err != nil {
		t.Fatalf("AddSweep returned error: %v", err)
	}

	s.cron.Entries()[0].Job.Run()

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "job_panic" {
		t.Fatalf("expected job_panic log, got %+v", entry)
	}
}

func TestStartStop(t *testing.T) {
	s, hook := newTestScheduler()
	if err := s.AddSweep("noop", EveryMinute, func() int { return 0 }); err != nil {
		t.Fatalf("AddSweep returned error: %v", err)
	}

	s.Start()
	s.Stop()

	entries := hook.AllEntries()
	if len(entries) != 2 || entries[0].Data["event"] != "scheduler_started" || entries[1].Data["event"] != "scheduler_stopped" {
		t.Fatalf("unexpected lifecycle logs %+v", entries)
	}
}
