package sauce

import "regexp"

// RawJob is a provider job record exactly as decoded from the API.
// Fields the service does not recognize stay in the map untouched so
// downstream consumers (sidebar, dialogs) can render them.
type RawJob map[string]any

// timeFields are the epoch-seconds fields the provider sends.
var timeFields = []string{"creation_time", "end_time"}

// NormalizeJob converts the provider's epoch-second time fields to
// milliseconds. This is the only shape change applied to provider
// payloads: the input map is never mutated, every other field passes
// through unchanged, and a missing or non-numeric time field is left
// exactly as it arrived.
func NormalizeJob(raw RawJob) RawJob {
	out := make(RawJob, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for _, f := range timeFields {
		if n, ok := asNumber(out[f]); ok {
			out[f] = n * 1000
		}
	}
	return out
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Job is the typed view of a normalized job record. Raw carries the
// full normalized map for consumers that need provider fields beyond
// the typed ones.
type Job struct {
	ID             string
	Name           string
	Owner          string
	Status         string
	OS             string
	Browser        string
	BrowserVersion string
	CreationTime   int64 // milliseconds since epoch
	EndTime        int64 // milliseconds since epoch

	Raw RawJob
}

// JobFromRaw normalizes a provider record and extracts the typed view.
func JobFromRaw(raw RawJob) Job {
	n := NormalizeJob(raw)
	j := Job{
		ID:             str(n["id"]),
		Name:           str(n["name"]),
		Owner:          str(n["owner"]),
		Status:         str(n["consolidated_status"]),
		OS:             str(n["os"]),
		Browser:        str(n["browser"]),
		BrowserVersion: str(n["browser_version"]),
		Raw:            n,
	}
	if t, ok := asNumber(n["creation_time"]); ok {
		j.CreationTime = int64(t)
	}
	if t, ok := asNumber(n["end_time"]); ok {
		j.EndTime = int64(t)
	}
	return j
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

var authTokenPattern = regexp.MustCompile(`auth=([a-zA-Z0-9]+)`)

// AuthTokenFromLink extracts the auth token from a public job link.
// Returns "" when the link carries no token.
func AuthTokenFromLink(link string) string {
	m := authTokenPattern.FindStringSubmatch(link)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
