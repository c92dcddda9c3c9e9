package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/iskodirajga/sauce-hipchat-service/internal/card"
	"github.com/iskodirajga/sauce-hipchat-service/internal/glance"
	"github.com/iskodirajga/sauce-hipchat-service/internal/hipchat"
	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
	"github.com/iskodirajga/sauce-hipchat-service/internal/metrics"
	"github.com/iskodirajga/sauce-hipchat-service/internal/sauce"
	"github.com/iskodirajga/sauce-hipchat-service/internal/settings"
	"github.com/iskodirajga/sauce-hipchat-service/internal/tenant"
)

type fakeAPI struct {
	jobs []sauce.RawJob
	err  error
}

func (f *fakeAPI) ListJobs(context.Context) ([]sauce.RawJob, error)           { return f.jobs, f.err }
func (f *fakeAPI) GetJob(context.Context, string) (sauce.RawJob, error)       { return nil, nil }
func (f *fakeAPI) GetJobAssets(context.Context, string) (sauce.Assets, error) { return sauce.Assets{}, nil }
func (f *fakeAPI) GetAccountDetails(context.Context) error                    { return nil }
func (f *fakeAPI) CreatePublicLink(string) string                             { return "" }

type push struct {
	clientKey string
	roomID    int64
	payload   glance.Payload
}

type fakeChat struct {
	mu     sync.Mutex
	pushes []push
}

func (f *fakeChat) SendMessage(context.Context, hipchat.ClientInfo, int64, string, *hipchat.MessageOptions, *card.Card) error {
	return nil
}

func (f *fakeChat) UpdateGlance(_ context.Context, ci hipchat.ClientInfo, target hipchat.RoomTarget, _ string, payload glance.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, push{clientKey: ci.ClientKey, roomID: target.RoomID, payload: payload})
	return nil
}

func (f *fakeChat) byTenant() map[string][]push {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]push{}
	for _, p := range f.pushes {
		out[p.clientKey] = append(out[p.clientKey], p)
	}
	return out
}

func install(t *testing.T, store settings.Store, clientKey string, rooms ...int64) {
	t.Helper()
	ci := hipchat.ClientInfo{ClientKey: clientKey, GroupID: 1, RoomIDs: rooms}
	if err := settings.SetJSON(context.Background(), store, settings.ClientInfoName, ci, clientKey); err != nil {
		t.Fatalf("install %s: %v", clientKey, err)
	}
}

func configure(t *testing.T, store settings.Store, clientKey, user string) {
	t.Helper()
	cred := sauce.Credential{Hostname: "saucelabs.com", Username: user, AccessKey: "k"}
	if err := settings.SetJSON(context.Background(), store, "sauceAccount", cred, clientKey); err != nil {
		t.Fatalf("configure %s: %v", clientKey, err)
	}
}

func TestRunSweepIsolatesTenants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := settings.NewMemory()

	// Tenant A: configured, two rooms, one new job.
	install(t, store, "a", 101, 102)
	configure(t, store, "a", "user-a")
	// Tenant B: configured, but the provider is down for it.
	install(t, store, "b", 201)
	configure(t, store, "b", "user-b")
	// Tenant C: installed, never configured.
	install(t, store, "c", 301)

	apis := map[string]sauce.API{
		"user-a": &fakeAPI{jobs: []sauce.RawJob{
			{"consolidated_status": "new"},
			{"consolidated_status": "passed"},
		}},
		"user-b": &fakeAPI{err: fmt.Errorf("%w: dial tcp", sauce.ErrProviderUnavailable)},
	}
	resolver := tenant.NewResolver(store, func(c sauce.Credential) sauce.API {
		return apis[c.Username]
	})

	chat := &fakeChat{}
	s := New(Config{RatePerSec: 1000}, store, resolver, chat, metrics.New(), logx.Nop())
	s.RunSweep(ctx)

	got := chat.byTenant()
	if len(got["a"]) != 2 {
		t.Fatalf("tenant a pushes = %d, want 2 (one per room)", len(got["a"]))
	}
	if len(got["b"]) != 0 || len(got["c"]) != 0 {
		t.Fatalf("unexpected pushes: b=%d c=%d", len(got["b"]), len(got["c"]))
	}

	// Both rooms got the same snapshot, badge included.
	for _, p := range got["a"] {
		if p.payload.Status == nil || p.payload.Status.Value.Label != "1 NEW" {
			t.Fatalf("room %d payload = %+v", p.roomID, p.payload)
		}
	}
	rooms := map[int64]bool{got["a"][0].roomID: true, got["a"][1].roomID: true}
	if !rooms[101] || !rooms[102] {
		t.Fatalf("pushed rooms = %v, want 101 and 102", rooms)
	}
}

func TestRunSweepEmptyStore(t *testing.T) {
	t.Parallel()
	store := settings.NewMemory()
	resolver := tenant.NewResolver(store, nil)
	s := New(Config{}, store, resolver, &fakeChat{}, nil, logx.Nop())
	s.RunSweep(context.Background()) // must not panic or block
}
