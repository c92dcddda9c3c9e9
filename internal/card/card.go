// Package card turns a single Sauce Labs job into a rich chat
// notification card plus a plain-text fallback message.
package card

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/iskodirajga/sauce-hipchat-service/internal/sauce"
)

// colorByStatus maps a consolidated status to the message color.
// Kept as a literal table (not a conditional chain) so the mapping is
// exhaustively testable; unknown statuses fall back to gray.
var colorByStatus = map[string]string{
	"error":    "red",
	"failed":   "red",
	"passed":   "green",
	"complete": "green",
	// in progress / running / new: default
}

const defaultColor = "gray"

// StatusColor returns the card color for a consolidated status.
func StatusColor(status string) string {
	if c, ok := colorByStatus[status]; ok {
		return c
	}
	return defaultColor
}

const iconURL = "https://hipchat-public-m5.atlassian.com/assets/img/hipchat/bookmark-icons/favicon-192x192.png"

// timeFormat approximates a locale medium date-time.
const timeFormat = "Jan 2, 2006 3:04 PM"

// Card is the chat platform's application card JSON.
type Card struct {
	Style       string            `json:"style"`
	ID          string            `json:"id"`
	Metadata    map[string]string `json:"metadata"`
	Format      string            `json:"format"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Description Description       `json:"description"`
	Icon        Icon              `json:"icon"`
	Attributes  []Attribute       `json:"attributes"`
}

type Description struct {
	Format string `json:"format"`
	Value  string `json:"value"`
}

type Icon struct {
	URL string `json:"url"`
}

type Attribute struct {
	Label string         `json:"label"`
	Value AttributeValue `json:"value"`
}

type AttributeValue struct {
	Label string `json:"label"`
}

// Build constructs the notification card and its plain-text fallback.
// Every card gets a fresh id; cards are never updated in place.
func Build(job sauce.Job, assets sauce.Assets, hostname string) (Card, string) {
	c := Card{
		Style:    "application",
		ID:       uuid.NewString(),
		Metadata: map[string]string{"sauceJobId": job.ID},
		Format:   "medium",
		URL:      fmt.Sprintf("https://%s/beta/tests/%s", hostname, job.ID),
		Title:    job.Name,
		Description: Description{
			Format: "html",
			Value:  videoLink(job.ID),
		},
		Icon: Icon{URL: iconURL},
		Attributes: []Attribute{
			attr("Owner", job.Owner),
			attr("Status", job.Status),
			attr("Platform", fmt.Sprintf("%s %s %s", job.OS, job.Browser, job.BrowserVersion)),
			attr("Start Time", formatMillis(job.CreationTime)),
			attr("End Time", formatMillis(job.EndTime)),
			attr("Duration", duration(job.CreationTime, job.EndTime)),
			attr("Has Screenshot(s)?", yesNo(assets.HasScreenshots)),
			attr("Has Video?", yesNo(assets.HasVideo)),
		},
	}
	plain := "<b>" + c.Title + "</b>: " + c.Description.Value
	return c, plain
}

// videoLink renders the card's single actionable link. The dialog
// target options are JSON embedded in an HTML attribute, so the payload
// is HTML-escaped before embedding; skipping the escape would let a
// hostile job id break out of the attribute.
func videoLink(jobID string) string {
	// Plain JSON first (no JSON-level < escaping), then a single
	// HTML-escape pass over the whole payload.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(map[string]any{
		"urlTemplateValues": map[string]string{"jobId": jobID},
	})
	payload := strings.TrimSuffix(buf.String(), "\n")
	return "<a href='#' data-target='job.video.dialog' data-target-options='" +
		html.EscapeString(payload) + "'>Video</a>"
}

func attr(label, value string) Attribute {
	return Attribute{Label: label, Value: AttributeValue{Label: value}}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format(timeFormat)
}

// duration renders the elapsed span between start and end in a
// human-readable form ("2 minutes", "about an hour").
func duration(startMS, endMS int64) string {
	if startMS == 0 || endMS == 0 || endMS < startMS {
		return ""
	}
	return strings.TrimSpace(humanize.RelTime(time.UnixMilli(startMS), time.UnixMilli(endMS), "", ""))
}
