package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/egresswatch/internal/session"
)

// DefaultFeed is where runner egress agents write their connection log.
const DefaultFeed = "/var/log/gha-agent/connections.log"

// DockerInfo is the container block of a connection record.
type DockerInfo struct {
	ContainerImage string `json:"containerImage"`
	ContainerName  string `json:"containerName"`
}

// ConnectionRecord is one line of the connection feed.
type ConnectionRecord struct {
	Timestamp      int64       `json:"timestamp"` // unix milliseconds
	Decision       string      `json:"decision"`
	Protocol       string      `json:"protocol"`
	SrcIP          string      `json:"srcIP"`
	SrcPort        string      `json:"srcPort"`
	DstIP          string      `json:"dstIP"`
	DstPort        string      `json:"dstPort"`
	Domain         string      `json:"domain"`
	Reason         string      `json:"reason"`
	PID            int         `json:"pid"`
	ProcessName    string      `json:"processName"`
	CommandLine    string      `json:"commandLine"`
	ExecutablePath string      `json:"executablePath"`
	Docker         *DockerInfo `json:"docker,omitempty"`
}

// ParseRecord decodes one feed line.
func ParseRecord(line []byte) (ConnectionRecord, error) {
	var r ConnectionRecord
	if err := json.Unmarshal(line, &r); err != nil {
		return r, fmt.Errorf("engine: parse record: %w", err)
	}
	if r.DstIP == "" {
		return r, fmt.Errorf("engine: parse record: missing dstIP")
	}
	return r, nil
}

// Key returns the session identity for the record.
func (r ConnectionRecord) Key() string {
	return session.Key(r.Protocol, r.SrcIP, r.SrcPort, r.DstIP, r.DstPort)
}

// Time returns the record timestamp, or fallback when the record has none.
func (r ConnectionRecord) Time(fallback time.Time) time.Time {
	if r.Timestamp <= 0 {
		return fallback
	}
	return time.UnixMilli(r.Timestamp).UTC()
}

// toSession builds a fresh session from its first record.
func (r ConnectionRecord) toSession(at time.Time) session.Session {
	s := session.Session{
		ID:       r.Key(),
		Protocol: r.Protocol,
		SrcIP:    r.SrcIP,
		SrcPort:  r.SrcPort,
		DstIP:    r.DstIP,
		DstPort:  r.DstPort,
		Domain:   r.Domain,
		Process: session.Process{
			PID:            r.PID,
			Name:           r.ProcessName,
			CommandLine:    r.CommandLine,
			ExecutablePath: r.ExecutablePath,
		},
		Decision:    r.Decision,
		Reason:      r.Reason,
		Connections: 1,
		FirstSeen:   at,
		LastSeen:    at,
	}
	if r.Docker != nil {
		s.Container = &session.Container{Image: r.Docker.ContainerImage, Name: r.Docker.ContainerName}
	}
	return s
}
