package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Process identifies the local process that opened a session.
type Process struct {
	PID            int    `json:"pid"`
	Name           string `json:"name"`
	CommandLine    string `json:"command_line,omitempty"`
	ExecutablePath string `json:"executable_path,omitempty"`
}

// Container identifies the Docker container a session originated from.
type Container struct {
	Image string `json:"image"`
	Name  string `json:"name"`
}

// Session is one observed flow of egress traffic. Values are treated as
// immutable by the monitor; only the analyzer writes annotations, and only
// into its own copies.
type Session struct {
	ID          string     `json:"id"`
	Protocol    string     `json:"protocol"`
	SrcIP       string     `json:"src_ip"`
	SrcPort     string     `json:"src_port"`
	DstIP       string     `json:"dst_ip"`
	DstPort     string     `json:"dst_port"`
	Domain      string     `json:"domain"`
	Process     Process    `json:"process"`
	Container   *Container `json:"container,omitempty"`
	Decision    string     `json:"decision,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Connections int        `json:"connections"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastSeen    time.Time  `json:"last_seen"`
	Criticality string     `json:"criticality,omitempty"`
}

// Key derives the stable identity of a flow from its protocol and 5-tuple.
// Two connection records with the same key belong to the same session.
func Key(protocol, srcIP, srcPort, dstIP, dstPort string) string {
	raw := strings.ToLower(protocol) + "|" + srcIP + "|" + srcPort + "|" + dstIP + "|" + dstPort
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:8])
}

// HasDomain reports whether the destination was resolved to a name.
func (s Session) HasDomain() bool {
	return s.Domain != "" && s.Domain != "unknown"
}

// Destination returns the domain when known, the IP otherwise.
func (s Session) Destination() string {
	if s.HasDomain() {
		return s.Domain
	}
	return s.DstIP
}

// IDs returns the identities of the given sessions, in order.
func IDs(sessions []Session) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}

// Clone returns a copy of sessions that can be annotated without touching
// the original slice.
func Clone(sessions []Session) []Session {
	out := make([]Session, len(sessions))
	copy(out, sessions)
	for i := range out {
		if out[i].Container != nil {
			c := *out[i].Container
			out[i].Container = &c
		}
	}
	return out
}
