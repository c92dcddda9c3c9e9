// Package glance computes the per-room status widget payload from a
// tenant's job history.
package glance

import (
	"context"
	"fmt"

	"github.com/iskodirajga/sauce-hipchat-service/internal/sauce"
)

// Payload is the glance JSON pushed to the chat platform. Status is
// omitted entirely unless the "new" bucket is nonzero.
type Payload struct {
	Label  Label   `json:"label"`
	Status *Status `json:"status,omitempty"`
}

type Label struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type Status struct {
	Type  string  `json:"type"`
	Value Lozenge `json:"value"`
}

type Lozenge struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Stats summarizes a job list: total count plus a bucket per
// consolidated status.
type Stats struct {
	Count    int            `json:"count"`
	Statuses map[string]int `json:"statuses"`
}

const glanceLabel = "Sauce Labs"

// Aggregate fetches the jobs visible to the client and derives the
// glance payload. One network call; the payload is never persisted.
func Aggregate(ctx context.Context, api sauce.API) (Payload, Stats, error) {
	jobs, err := api.ListJobs(ctx)
	if err != nil {
		return Payload{}, Stats{}, err
	}
	stats := Summarize(jobs)
	return FromStats(stats), stats, nil
}

// Summarize buckets raw jobs by consolidated status. Every job lands
// in exactly one bucket — jobs without a status go in the ""
// bucket — so the bucket counts always sum to Count.
func Summarize(jobs []sauce.RawJob) Stats {
	stats := Stats{Count: len(jobs), Statuses: map[string]int{}}
	for _, raw := range jobs {
		s, _ := raw["consolidated_status"].(string)
		stats.Statuses[s]++
	}
	return stats
}

// FromStats applies the badge policy: a lozenge appears exactly when
// the "new" bucket is nonzero, with text "<n> NEW" and severity
// "error". Anything else yields a label-only payload.
func FromStats(stats Stats) Payload {
	p := Payload{Label: Label{Type: "html", Value: glanceLabel}}
	if n := stats.Statuses["new"]; n > 0 {
		p.Status = &Status{
			Type:  "lozenge",
			Value: Lozenge{Label: fmt.Sprintf("%d NEW", n), Type: "error"},
		}
	}
	return p
}

// SignIn is the degraded payload interactive requests fall back to when
// the tenant has no usable credential.
func SignIn() Payload {
	return Payload{Label: Label{Type: "html", Value: glanceLabel + " (sign in)"}}
}
