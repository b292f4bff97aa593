package device

import "strings"

// SameOrigin is where the collaborator listens when the console runs next to it.
const SameOrigin = "http://127.0.0.1:8080"

// ResolveBase picks the collaborator base address once per session: the first
// non-empty override wins, otherwise the result is empty (same-origin).
func ResolveBase(overrides ...string) string {
	for _, o := range overrides {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if !strings.Contains(o, "://") {
			o = "http://" + o
		}
		return strings.TrimRight(o, "/")
	}
	return ""
}
