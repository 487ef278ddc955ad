package schemas

import (
	"maps"
	"slices"
	"strings"
)

// Page is one captured app screen flow: an ordered list of states that share an
// element vocabulary.
type Page struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	States []State `json:"states"`
}

// State is one distinct snapshot of the app under test. Versions is keyed by a
// lowercase platform name ("android", "ios").
type State struct {
	ID       string                  `json:"id"`
	Title    string                  `json:"title"`
	Versions map[string]StateVersion `json:"versions"`
}

// StateVersion holds the captured artifacts for one platform of a state.
type StateVersion struct {
	// Screenshot is the image encoded as base64 text, optionally as a data URI.
	Screenshot string      `json:"screenshot"`
	PageSource string      `json:"pageSource"`
	Device     *DeviceInfo `json:"device,omitempty"`
}

// DeviceInfo is optional metadata about the device a state was captured on.
type DeviceInfo struct {
	Name         string  `json:"name,omitempty"`
	OSVersion    string  `json:"osVersion,omitempty"`
	ScreenWidth  int     `json:"screenWidth,omitempty"`
	ScreenHeight int     `json:"screenHeight,omitempty"`
	PixelRatio   float64 `json:"pixelRatio,omitempty"`
}

// StateIDs returns the set of every state id on the page.
func (p Page) StateIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.States))
	for _, s := range p.States {
		ids[s.ID] = struct{}{}
	}
	return ids
}

// State looks a state up by id.
func (p Page) State(id string) (State, bool) {
	for _, s := range p.States {
		if s.ID == id {
			return s, true
		}
	}
	return State{}, false
}

// StatesFor returns the states that carry a version for the given platform, in
// page order.
func (p Page) StatesFor(platform string) []State {
	var out []State
	for _, s := range p.States {
		if _, ok := s.Version(platform); ok {
			out = append(out, s)
		}
	}
	return out
}

// Version resolves the state version for a platform. An exact key match wins;
// otherwise the first key that matches case-insensitively is used.
func (s State) Version(platform string) (StateVersion, bool) {
	return LookupPlatform(s.Versions, platform)
}

// LookupPlatform reads a platform-keyed map, tolerating key case differences.
func LookupPlatform[V any](m map[string]V, platform string) (V, bool) {
	if v, ok := m[platform]; ok {
		return v, true
	}
	// Sorted so that "Android" and "ANDROID" resolve the same way on every call.
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if strings.EqualFold(k, platform) {
			return m[k], true
		}
	}
	var zero V
	return zero, false
}

// NormalizePlatform lowercases and trims a platform name.
func NormalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}
