// Package entitycontext filters Home Assistant entity states down to the
// short device list injected into the Gemini Live system prompt.
package entitycontext

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// EntityView is the trimmed view of one Home Assistant entity state that
// survives filtering.
type EntityView struct {
	EntityID     string
	FriendlyName string
	State        string
	Domain       string
}

// RawState is the subset of a Home Assistant /api/states entry we read.
type RawState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

func domainOf(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		return entityID[:i]
	}
	return ""
}

func matchesAny(patterns []string, value string) bool {
	for _, pat := range patterns {
		g, err := glob.Compile(pat)
		if err != nil {
			// An unparsable pattern never matches; it is not this
			// package's job to validate operator-supplied globs.
			continue
		}
		if g.Match(value) {
			return true
		}
	}
	return false
}

// FilterEntities applies the allowed-domains, allowlist, and blocklist
// filters in that order, stopping once maxEntities survive.
func FilterEntities(states []RawState, allowedDomains, allowlist, blocklist []string, maxEntities int) []EntityView {
	out := make([]EntityView, 0)

	for _, s := range states {
		if len(out) >= maxEntities {
			break
		}
		entityID := strings.TrimSpace(s.EntityID)
		if entityID == "" {
			continue
		}

		dom := domainOf(entityID)
		if len(allowedDomains) > 0 && !contains(allowedDomains, dom) {
			continue
		}

		if len(allowlist) > 0 && !matchesAny(allowlist, entityID) {
			continue
		}
		if len(blocklist) > 0 && matchesAny(blocklist, entityID) {
			continue
		}

		name := entityID
		if s.Attributes != nil {
			if fn, ok := s.Attributes["friendly_name"].(string); ok && fn != "" {
				name = fn
			}
		}
		state := s.State
		if state == "" {
			state = "unknown"
		}

		out = append(out, EntityView{EntityID: entityID, FriendlyName: name, State: state, Domain: dom})
	}

	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// BuildContextLines renders the filtered entities as "- Name (entity_id) =
// state" lines for prompt injection, with a placeholder line when nothing
// matched.
func BuildContextLines(states []RawState, allowedDomains, allowlist, blocklist []string, maxEntities int) []string {
	entities := FilterEntities(states, allowedDomains, allowlist, blocklist, maxEntities)

	lines := make([]string, 0, len(entities))
	for _, e := range entities {
		lines = append(lines, fmt.Sprintf("- %s (%s) = %s", e.FriendlyName, e.EntityID, e.State))
	}

	if len(lines) == 0 {
		lines = append(lines, "(No entities matched the current filters.)")
	}
	return lines
}
