package glance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/iskodirajga/sauce-hipchat-service/internal/sauce"
)

type fakeAPI struct {
	jobs []sauce.RawJob
	err  error
}

func (f *fakeAPI) ListJobs(context.Context) ([]sauce.RawJob, error)           { return f.jobs, f.err }
func (f *fakeAPI) GetJob(context.Context, string) (sauce.RawJob, error)       { return nil, nil }
func (f *fakeAPI) GetJobAssets(context.Context, string) (sauce.Assets, error) { return sauce.Assets{}, nil }
func (f *fakeAPI) GetAccountDetails(context.Context) error                    { return nil }
func (f *fakeAPI) CreatePublicLink(id string) string                          { return "" }

func jobWithStatus(status string) sauce.RawJob {
	return sauce.RawJob{"consolidated_status": status}
}

func TestSummarizeBucketsSumToCount(t *testing.T) {
	t.Parallel()
	jobs := []sauce.RawJob{
		jobWithStatus("passed"), jobWithStatus("passed"),
		jobWithStatus("failed"), jobWithStatus("new"),
		jobWithStatus("in progress"),
		{"id": "no-status-yet"},
	}
	stats := Summarize(jobs)
	if stats.Count != 6 {
		t.Fatalf("Count = %d, want 6", stats.Count)
	}
	sum := 0
	for _, n := range stats.Statuses {
		sum += n
	}
	if sum != stats.Count {
		t.Fatalf("bucket sum = %d, want %d", sum, stats.Count)
	}
	if stats.Statuses["passed"] != 2 || stats.Statuses["failed"] != 1 {
		t.Fatalf("buckets = %v", stats.Statuses)
	}
	// A statusless job still occupies a bucket.
	if stats.Statuses[""] != 1 {
		t.Fatalf("statusless bucket = %d, want 1 (buckets %v)", stats.Statuses[""], stats.Statuses)
	}
}

func TestBadgeOnlyWhenNewJobsExist(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		jobs      []sauce.RawJob
		wantBadge string
	}{
		{name: "no jobs", jobs: nil},
		{name: "no new", jobs: []sauce.RawJob{jobWithStatus("passed"), jobWithStatus("failed")}},
		{name: "one new", jobs: []sauce.RawJob{jobWithStatus("new")}, wantBadge: "1 NEW"},
		{name: "three new", jobs: []sauce.RawJob{jobWithStatus("new"), jobWithStatus("new"), jobWithStatus("new"), jobWithStatus("error")}, wantBadge: "3 NEW"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := FromStats(Summarize(tt.jobs))
			if p.Label.Value != "Sauce Labs" || p.Label.Type != "html" {
				t.Fatalf("label = %+v", p.Label)
			}
			if tt.wantBadge == "" {
				if p.Status != nil {
					t.Fatalf("unexpected badge %+v", p.Status)
				}
				return
			}
			if p.Status == nil {
				t.Fatal("missing badge")
			}
			if p.Status.Type != "lozenge" || p.Status.Value.Type != "error" {
				t.Fatalf("badge = %+v", p.Status)
			}
			if p.Status.Value.Label != tt.wantBadge {
				t.Fatalf("badge text = %q, want %q", p.Status.Value.Label, tt.wantBadge)
			}
		})
	}
}

func TestAggregateSingleJob(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{jobs: []sauce.RawJob{{
		"id":                  "abc",
		"consolidated_status": "passed",
		"creation_time":       float64(1000),
		"end_time":            float64(1100),
	}}}
	payload, stats, err := Aggregate(context.Background(), api)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.Count != 1 || stats.Statuses["passed"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if payload.Status != nil {
		t.Fatalf("payload carries badge %+v, want none", payload.Status)
	}
}

func TestAggregatePropagatesProviderError(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{err: fmt.Errorf("%w: boom", sauce.ErrProviderUnavailable)}
	_, _, err := Aggregate(context.Background(), api)
	if !errors.Is(err, sauce.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}
