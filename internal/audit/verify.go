package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid          bool   `json:"valid"`
	Lines          int    `json:"lines"`
	Runs           int    `json:"runs"`
	Violations     int    `json:"violations"`
	Cancellations  int    `json:"cancellations"`
	Halted         int    `json:"halted"`
	CancelFailures int    `json:"cancel_failures"`
	Orphans        int    `json:"orphans"`
	Error          string `json:"error,omitempty"`
	ErrorLine      int    `json:"error_line,omitempty"`
}

// Verify reads a JSONL audit log and validates the hash chain and the shape
// of every entry. Returns Valid=true if the log is intact, or details about
// the first bad line.
//
// Entries whose run has no run_started line in this log are counted as
// orphans, not errors: the log may have been rotated mid-run. Cancellations
// from the halt command never belong to a run.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	v := newVerifier()
	scanner := newScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := v.add(scanner.Bytes()); err != nil {
			return VerifyResult{Error: err.Error(), ErrorLine: lineNum}
		}
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}

	v.result.Valid = true
	v.result.Lines = lineNum
	return v.result
}

// verifier walks the log one line at a time.
type verifier struct {
	prevHash string
	started  map[string]bool
	result   VerifyResult
}

func newVerifier() *verifier {
	return &verifier{prevHash: GenesisHash, started: make(map[string]bool)}
}

func (v *verifier) add(line []byte) error {
	var entry Entry
	if err := json.Unmarshal(line, &entry); err != nil {
		return fmt.Errorf("parse error: %v", err)
	}
	if entry.PrevHash != v.prevHash {
		if v.prevHash == GenesisHash {
			return fmt.Errorf("first entry prev_hash is %q, expected genesis hash", entry.PrevHash)
		}
		return fmt.Errorf("hash mismatch: expected %s, got %s", v.prevHash, entry.PrevHash)
	}
	if err := v.event(entry); err != nil {
		return err
	}
	v.prevHash = HashLine(line)
	return nil
}

func (v *verifier) event(e Entry) error {
	switch e.Event {
	case EventRunStarted:
		if e.RunID == "" {
			return errors.New("run_started without run_id")
		}
		v.started[e.RunID] = true
		v.result.Runs++

	case EventViolation:
		if e.Counts == nil || e.Counts.Total() == 0 {
			return fmt.Errorf("violation for run %q has no session counts", e.RunID)
		}
		if n := len(e.Sessions); n > 0 && n != e.Counts.Total() {
			return fmt.Errorf("violation for run %q lists %d sessions, counts say %d", e.RunID, n, e.Counts.Total())
		}
		v.orphan(e)
		v.result.Violations++

	case EventCancellation:
		if e.Strategy == "" {
			return fmt.Errorf("cancellation for run %q has no strategy", e.RunID)
		}
		if e.Mode != "halt" {
			v.orphan(e)
		}
		v.result.Cancellations++
		if e.Succeeded {
			v.result.Halted++
		} else {
			v.result.CancelFailures++
		}

	default:
		return fmt.Errorf("unknown event %q", e.Event)
	}
	return nil
}

func (v *verifier) orphan(e Entry) {
	if !v.started[e.RunID] {
		v.result.Orphans++
	}
}
