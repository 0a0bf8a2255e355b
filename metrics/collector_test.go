package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("processor", "127.0.0.1:8080", "fs")

	c.IncDatagramReceived()
	c.IncDatagramReceived()
	c.AddDatagramSent(100)
	c.AddDatagramSent(28)
	c.IncMalformed("truncated")
	c.IncMalformed("truncated")
	c.IncMalformed("bad_index")
	c.IncProgressReceived()
	c.IncProgressSent()
	c.IncPayloadSent()
	c.IncSendFailure()
	c.IncFragmentAccepted()
	c.IncFragmentDuplicate()
	c.IncAssemblyCompleted()
	c.IncAssemblyReplaced()
	c.IncRunStarted()
	c.IncRunCompleted()
	c.IncRunFailed()
	c.IncRunRejected()
	c.IncRunRejected()
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()
	c.IncPublishSuccess()
	c.IncPublishFailure()

	s := c.Snapshot()

	checks := []struct {
		name      string
		got, want int64
	}{
		{"DatagramsReceived", s.DatagramsReceived, 2},
		{"DatagramsSent", s.DatagramsSent, 2},
		{"BytesSent", s.BytesSent, 128},
		{"MalformedDatagrams", s.MalformedDatagrams, 3},
		{"MalformedByKind[truncated]", s.MalformedByKind["truncated"], 2},
		{"MalformedByKind[bad_index]", s.MalformedByKind["bad_index"], 1},
		{"ProgressFramesReceived", s.ProgressFramesReceived, 1},
		{"ProgressFramesSent", s.ProgressFramesSent, 1},
		{"PayloadsSent", s.PayloadsSent, 1},
		{"SendFailures", s.SendFailures, 1},
		{"FragmentsAccepted", s.FragmentsAccepted, 1},
		{"FragmentsDuplicate", s.FragmentsDuplicate, 1},
		{"AssembliesCompleted", s.AssembliesCompleted, 1},
		{"AssembliesReplaced", s.AssembliesReplaced, 1},
		{"RunsStarted", s.RunsStarted, 1},
		{"RunsCompleted", s.RunsCompleted, 1},
		{"RunsFailed", s.RunsFailed, 1},
		{"RunsRejected", s.RunsRejected, 2},
		{"ArchiveWriteSuccess", s.ArchiveWriteSuccess, 1},
		{"ArchiveWriteFailure", s.ArchiveWriteFailure, 1},
		{"PublishSuccess", s.PublishSuccess, 1},
		{"PublishFailure", s.PublishFailure, 1},
	}
	for _, ch := range checks {
		if ch.got != ch.want {
			t.Errorf("%s = %d, want %d", ch.name, ch.got, ch.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	s := NewCollector("requester", "10.0.0.1:9000", "s3").Snapshot()
	if s.Role != "requester" || s.Addr != "10.0.0.1:9000" || s.StorageBackend != "s3" {
		t.Errorf("dimensions = %q/%q/%q", s.Role, s.Addr, s.StorageBackend)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.IncDatagramReceived()
	c.AddDatagramSent(10)
	c.IncMalformed("empty")
	c.IncFragmentAccepted()
	c.IncRunStarted()
	c.IncPublishFailure()

	s := c.Snapshot()
	if s.DatagramsReceived != 0 || s.MalformedByKind != nil {
		t.Errorf("nil collector snapshot = %+v, want zero value", s)
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector("processor", "", "")
	c.IncMalformed("decode")

	s := c.Snapshot()
	s.MalformedByKind["decode"] = 99

	if got := c.Snapshot().MalformedByKind["decode"]; got != 1 {
		t.Errorf("collector mutated through snapshot: %d", got)
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector("processor", "", "")

	const goroutines = 50
	const perGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range perGoroutine {
				c.IncDatagramReceived()
				c.IncFragmentAccepted()
				c.IncMalformed("truncated")
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * perGoroutine)
	if s.DatagramsReceived != want || s.FragmentsAccepted != want || s.MalformedByKind["truncated"] != want {
		t.Errorf("counts = %d/%d/%d, want %d", s.DatagramsReceived, s.FragmentsAccepted, s.MalformedByKind["truncated"], want)
	}
}

func TestSnapshot_Fields(t *testing.T) {
	c := NewCollector("processor", "", "")
	c.IncRunCompleted()
	f := c.Snapshot().Fields()
	if f["runs_completed"] != int64(1) {
		t.Errorf("runs_completed field = %v, want 1", f["runs_completed"])
	}
}
