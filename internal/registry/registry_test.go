package registry

import (
	"testing"
	"time"
)

func TestCreateStartsInQueuedState(t *testing.T) {
	r := New()
	now := time.Now()
	job := r.Create("job-1", "cam-1", now, now.Add(time.Minute), now)

	if job.State != StateQueued {
		t.Fatalf("State = %v, want StateQueued", job.State)
	}
	if job.Progress != 0 {
		t.Fatalf("Progress = %v, want 0", job.Progress)
	}
}

func TestUpdateProgressIsMonotonic(t *testing.T) {
	r := New()
	now := time.Now()
	r.Create("job-1", "cam-1", now, now.Add(time.Minute), now)

	high := 0.5
	r.Update("job-1", Delta{Progress: &high}, now)

	low := 0.2
	job, ok := r.Update("job-1", Delta{Progress: &low}, now)
	if !ok {
		t.Fatalf("Update() ok = false, want true")
	}
	if job.Progress != 0.5 {
		t.Fatalf("Progress regressed to %v, want it to stay at 0.5", job.Progress)
	}

	higher := 0.9
	job, _ = r.Update("job-1", Delta{Progress: &higher}, now)
	if job.Progress != 0.9 {
		t.Fatalf("Progress = %v, want 0.9", job.Progress)
	}
}

func TestUpdateUnknownIDReturnsFalse(t *testing.T) {
	r := New()
	_, ok := r.Update("missing", Delta{}, time.Now())
	if ok {
		t.Fatalf("Update() ok = true for unknown id, want false")
	}
}

func TestPathOnlyReturnsTrueWhenSet(t *testing.T) {
	r := New()
	now := time.Now()
	r.Create("job-1", "cam-1", now, now.Add(time.Minute), now)

	if _, ok := r.Path("job-1"); ok {
		t.Fatalf("Path() ok = true before OutputPath is set, want false")
	}

	path := "/exports/job-1.mp4"
	r.Update("job-1", Delta{OutputPath: &path}, now)

	got, ok := r.Path("job-1")
	if !ok || got != path {
		t.Fatalf("Path() = (%q, %v), want (%q, true)", got, ok, path)
	}
}

func TestListReturnsAllJobs(t *testing.T) {
	r := New()
	now := time.Now()
	r.Create("job-1", "cam-1", now, now.Add(time.Minute), now)
	r.Create("job-2", "cam-2", now, now.Add(time.Minute), now)

	jobs := r.List()
	if len(jobs) != 2 {
		t.Fatalf("List() returned %d jobs, want 2", len(jobs))
	}
}
