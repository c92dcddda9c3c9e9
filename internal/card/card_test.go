package card

import (
	"strings"
	"testing"

	"github.com/iskodirajga/sauce-hipchat-service/internal/sauce"
)

func TestStatusColor(t *testing.T) {
	t.Parallel()
	tests := []struct{ status, want string }{
		{"error", "red"},
		{"failed", "red"},
		{"passed", "green"},
		{"complete", "green"},
		{"in progress", "gray"},
		{"new", "gray"},
		{"something-else", "gray"},
	}
	for _, tt := range tests {
		if got := StatusColor(tt.status); got != tt.want {
			t.Fatalf("StatusColor(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func testJob() sauce.Job {
	return sauce.Job{
		ID:             "0123456789abcdef0123456789abcdef",
		Name:           "checkout flow",
		Owner:          "roy",
		Status:         "passed",
		OS:             "Linux",
		Browser:        "firefox",
		BrowserVersion: "120",
		CreationTime:   1700000000000,
		EndTime:        1700000120000,
	}
}

func TestBuildCard(t *testing.T) {
	t.Parallel()
	job := testJob()
	c, plain := Build(job, sauce.Assets{HasScreenshots: true}, "saucelabs.com")

	if c.URL != "https://saucelabs.com/beta/tests/0123456789abcdef0123456789abcdef" {
		t.Fatalf("URL = %q", c.URL)
	}
	if c.Style != "application" || c.Format != "medium" {
		t.Fatalf("style/format = %q/%q", c.Style, c.Format)
	}
	if c.ID == "" {
		t.Fatal("card id empty")
	}
	if c.Metadata["sauceJobId"] != job.ID {
		t.Fatalf("metadata = %v", c.Metadata)
	}

	wantLabels := []string{
		"Owner", "Status", "Platform", "Start Time", "End Time",
		"Duration", "Has Screenshot(s)?", "Has Video?",
	}
	if len(c.Attributes) != len(wantLabels) {
		t.Fatalf("got %d attributes, want %d", len(c.Attributes), len(wantLabels))
	}
	for i, want := range wantLabels {
		if c.Attributes[i].Label != want {
			t.Fatalf("attribute[%d] = %q, want %q", i, c.Attributes[i].Label, want)
		}
	}
	if c.Attributes[2].Value.Label != "Linux firefox 120" {
		t.Fatalf("platform = %q", c.Attributes[2].Value.Label)
	}
	if c.Attributes[5].Value.Label != "2 minutes" {
		t.Fatalf("duration = %q", c.Attributes[5].Value.Label)
	}
	if c.Attributes[6].Value.Label != "yes" || c.Attributes[7].Value.Label != "no" {
		t.Fatalf("asset attrs = %q/%q", c.Attributes[6].Value.Label, c.Attributes[7].Value.Label)
	}

	if !strings.HasPrefix(plain, "<b>checkout flow</b>: ") {
		t.Fatalf("plain = %q", plain)
	}
}

func TestCardFreshIDPerBuild(t *testing.T) {
	t.Parallel()
	a, _ := Build(testJob(), sauce.Assets{}, "saucelabs.com")
	b, _ := Build(testJob(), sauce.Assets{}, "saucelabs.com")
	if a.ID == b.ID {
		t.Fatal("card ids reused across builds")
	}
}

func TestDescriptionEscapesEmbeddedJSON(t *testing.T) {
	t.Parallel()
	job := testJob()
	job.ID = `<img src=x>"&'`
	c, _ := Build(job, sauce.Assets{}, "saucelabs.com")

	v := c.Description.Value
	// Strip the anchor markup itself; the attribute payload must carry
	// no raw metacharacters.
	payload := strings.TrimSuffix(strings.SplitN(v, "data-target-options='", 2)[1], "'>Video</a>")
	for _, bad := range []string{"<", ">", `"`} {
		if strings.Contains(payload, bad) {
			t.Fatalf("unescaped %q in payload %q", bad, payload)
		}
	}
	if !strings.Contains(payload, "&lt;img") {
		t.Fatalf("expected escaped markup in %q", payload)
	}
}
