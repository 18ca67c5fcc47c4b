// Package featureflags evaluates FEATURE_FLAGS rollouts such as
// "study_room_chat=on,peer_broker=25%,legacy_forum=off".
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Flags the server consults.
const (
	StudyRoomChat = "study_room_chat"
	PeerBroker    = "peer_broker"
)

// Flag is one configured rule.
type Flag struct {
	Name    string `json:"name"`
	Rule    string `json:"rule"`
	Percent int    `json:"percent"`
}

// Manager holds the parsed rules. A nil Manager reports every flag off.
type Manager struct {
	flags map[string]Flag
}

// NewManager parses a comma-separated list of name=rule pairs. Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	flags := make(map[string]Flag)
	for _, pair := range strings.Split(raw, ",") {
		name, rule, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		name, rule = normalize(name), normalize(rule)
		if name == "" {
			continue
		}
		pct, ok := parseRule(rule)
		if !ok {
			continue
		}
		flags[name] = Flag{Name: name, Rule: rule, Percent: pct}
	}
	return &Manager{flags: flags}
}

// parseRule turns on/off/N% into a rollout percentage.
func parseRule(rule string) (int, bool) {
	switch rule {
	case "on", "true", "1":
		return 100, true
	case "off", "false", "0":
		return 0, true
	}
	if !strings.HasSuffix(rule, "%") {
		return 0, false
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(rule, "%"))
	if err != nil {
		return 0, false
	}
	return min(max(pct, 0), 100), true
}

// Enabled reports whether name is on for userID. Partial rollouts bucket users
// deterministically and never include anonymous callers.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	f, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}
	switch {
	case f.Percent >= 100:
		return true
	case f.Percent <= 0, userID == 0:
		return false
	}
	return bucket(f.Name, userID) < f.Percent
}

// List returns the configured rules sorted by name.
func (m *Manager) List() []Flag {
	if m == nil {
		return nil
	}
	out := make([]Flag, 0, len(m.flags))
	for _, f := range m.flags {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot evaluates every configured flag for one user.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool)
	if m == nil {
		return out
	}
	for name := range m.flags {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + ":" + strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
