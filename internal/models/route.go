package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntryKind distinguishes the two variants of a RouteEntry
type EntryKind int

const (
	EntryLocation EntryKind = iota
	EntrySentinel
)

// legacySentinelPrefix marks sentinel tokens in routes stored as plain strings
const legacySentinelPrefix = "__"

// RouteEntry is either a reference to a Location or an opaque Sentinel marker.
// Only location references are ever permuted by the optimizer.
type RouteEntry struct {
	Kind  EntryKind
	Value string

	// raw keeps a legacy sentinel token that is not in "__tag__" form
	raw string
}

// LocationRef creates a route entry that refers to a catalog location
func LocationRef(id string) RouteEntry {
	return RouteEntry{Kind: EntryLocation, Value: id}
}

// Sentinel creates a marker entry such as "start" or "end"
func Sentinel(tag string) RouteEntry {
	return RouteEntry{Kind: EntrySentinel, Value: tag}
}

// IsSentinel reports whether the entry is a marker
func (e RouteEntry) IsSentinel() bool {
	return e.Kind == EntrySentinel
}

func (e RouteEntry) String() string {
	if e.IsSentinel() {
		if e.raw != "" {
			return e.raw
		}
		return legacySentinelPrefix + e.Value + legacySentinelPrefix
	}
	return e.Value
}

type routeEntryJSON struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Tag  string `json:"tag,omitempty"`
	Raw  string `json:"raw,omitempty"`
}

func (e RouteEntry) MarshalJSON() ([]byte, error) {
	if e.IsSentinel() {
		return json.Marshal(routeEntryJSON{Type: "sentinel", Tag: e.Value, Raw: e.raw})
	}
	return json.Marshal(routeEntryJSON{Type: "location", ID: e.Value})
}

// UnmarshalJSON accepts the object form and the legacy bare-string form,
// where strings beginning with "__" are sentinels.
func (e *RouteEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = ParseRouteToken(s)
		return nil
	}

	var raw routeEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("route entry: %w", err)
	}

	switch raw.Type {
	case "location":
		if raw.ID == "" {
			return fmt.Errorf("route entry: location without id")
		}
		*e = LocationRef(raw.ID)
	case "sentinel":
		*e = Sentinel(raw.Tag)
		if raw.Raw != "" {
			*e = ParseRouteToken(raw.Raw)
		}
	default:
		return fmt.Errorf("route entry: unknown type %q", raw.Type)
	}
	return nil
}

// ParseRouteToken converts a legacy string token into a RouteEntry.
// Tokens starting with "__" are sentinels tagged with the text between the
// prefix and an optional "__" suffix; Tokens renders them back unchanged.
func ParseRouteToken(s string) RouteEntry {
	if !strings.HasPrefix(s, legacySentinelPrefix) {
		return LocationRef(s)
	}
	tag := strings.TrimSuffix(strings.TrimPrefix(s, legacySentinelPrefix), legacySentinelPrefix)
	e := Sentinel(tag)
	if e.String() != s {
		e.raw = s
	}
	return e
}

// Route is an ordered sequence of route entries
type Route []RouteEntry

// ParseRoute converts legacy string tokens into a Route
func ParseRoute(tokens []string) Route {
	route := make(Route, len(tokens))
	for i, t := range tokens {
		route[i] = ParseRouteToken(t)
	}
	return route
}

// LocationIDs returns the location references in route order
func (r Route) LocationIDs() []string {
	ids := make([]string, 0, len(r))
	for _, e := range r {
		if !e.IsSentinel() {
			ids = append(ids, e.Value)
		}
	}
	return ids
}

// Tokens renders the route in the legacy string form
func (r Route) Tokens() []string {
	tokens := make([]string, len(r))
	for i, e := range r {
		tokens[i] = e.String()
	}
	return tokens
}
