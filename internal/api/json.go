package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Problem is the RFC 7807 body the planner API returns for every request
// error: validation failures, role denials, locked-day and pass conflicts.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem renders a problem document. The title is a short summary
// ("Day locked", "Invalid plan request"); detail carries the specific cause
// and instance the request path.
func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     problemType(title),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// problemType derives a stable URN from the title so collaborators can
// match on type instead of parsing titles.
func problemType(title string) string {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "-")
	if slug == "" {
		return "urn:poleplan:problem:unknown"
	}
	return "urn:poleplan:problem:" + slug
}
