package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/egresswatch/internal/audit"
	"github.com/ppiankov/egresswatch/internal/engine"
	"github.com/ppiankov/egresswatch/internal/policy"
	"github.com/ppiankov/egresswatch/internal/report"
)

// resetFlags points every persistent flag at an isolated temp directory.
func resetFlags(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	// Provider markers count when set to anything, so unset them outright.
	for _, k := range []string{"EGRESSWATCH_CANCEL_SCRIPT", "GITHUB_ACTIONS", "GITLAB_CI", "GITHUB_REPOSITORY", "CI_PROJECT_ID"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	verbosity = 0
	configPath = filepath.Join(dir, "config.yaml")
	logFormat = "text"
	otelEnabled = false
	otelEndpoint = ""
	otelInsecure = false
	metricsAddr = ""
	auditLogPath = filepath.Join(dir, "audit.jsonl")

	scanFlags = checkFlags{}
	scanUntilSignal = false
	scanOutput = ""
	watchFlags = checkFlags{}
	whitelistFile = ""
	whitelistSources = nil
	replayEvent = ""
	replayMode = ""
	versionShort = false
	return dir
}

func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	return cmd, &out, &errOut
}

func writeFeed(t *testing.T, dir string, records ...engine.ConnectionRecord) string {
	t.Helper()
	var b strings.Builder
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatal(err)
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, "connections.log")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

var (
	githubRecord = engine.ConnectionRecord{Protocol: "TCP", SrcIP: "10.1.0.4", SrcPort: "40000", DstIP: "140.82.112.6", DstPort: "443", Domain: "api.github.com", ProcessName: "git"}
	ngrokRecord  = engine.ConnectionRecord{Protocol: "TCP", SrcIP: "10.1.0.4", SrcPort: "40001", DstIP: "3.3.3.3", DstPort: "443", Domain: "abc.ngrok.io", ProcessName: "curl"}
)

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return -1
}

func TestRunScanClean(t *testing.T) {
	dir := resetFlags(t)
	scanFlags.sources = []string{writeFeed(t, dir, githubRecord)}

	cmd, out, _ := testCommand()
	if err := runScan(cmd, []string{"1"}); err != nil {
		t.Fatalf("runScan: %v", err)
	}
	if !strings.Contains(out.String(), "no violations") {
		t.Fatalf("expected clean report, got:\n%s", out.String())
	}
}

func TestRunScanBlacklistedExitsOne(t *testing.T) {
	dir := resetFlags(t)
	scanFlags.sources = []string{writeFeed(t, dir, githubRecord, ngrokRecord)}
	scanFlags.noCancel = true
	scanFlags.noWhitelist = true

	cmd, out, _ := testCommand()
	err := runScan(cmd, []string{"1"})
	if code := exitCode(err); code != 1 {
		t.Fatalf("expected exit 1, got %v", err)
	}
	if !strings.Contains(out.String(), report.SectionBlacklist+" (1):") {
		t.Fatalf("expected blacklisted section, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "abc.ngrok.io") {
		t.Error("expected offending session printed")
	}

	result := audit.Verify(auditLogPath)
	if !result.Valid {
		t.Fatalf("audit log invalid: %s", result.Error)
	}
	if result.Runs != 1 || result.Violations != 1 {
		t.Errorf("expected 1 run and 1 violation in audit, got %+v", result)
	}
}

func TestRunScanCancelsWithNoStrategy(t *testing.T) {
	dir := resetFlags(t)
	scanFlags.sources = []string{writeFeed(t, dir, ngrokRecord)}

	cmd, out, _ := testCommand()
	err := runScan(cmd, []string{"1"})
	if code := exitCode(err); code != 1 {
		t.Fatalf("expected exit 1, got %v", err)
	}
	if !strings.Contains(out.String(), "cancel: FAILED") {
		t.Fatalf("expected cancellation failure line, got:\n%s", out.String())
	}
}

func TestRunScanOutputReport(t *testing.T) {
	dir := resetFlags(t)
	scanFlags.sources = []string{writeFeed(t, dir, githubRecord)}
	scanOutput = "report"

	cmd, out, _ := testCommand()
	if err := runScan(cmd, []string{"1"}); err != nil {
		t.Fatalf("runScan: %v", err)
	}
	if !strings.Contains(out.String(), `"api.github.com"`) {
		t.Fatalf("expected session JSON, got:\n%s", out.String())
	}
}

func TestRunScanOutputViolations(t *testing.T) {
	dir := resetFlags(t)
	scanFlags.sources = []string{writeFeed(t, dir, githubRecord, ngrokRecord)}
	scanFlags.noCancel = true
	scanFlags.noWhitelist = true
	scanOutput = "violations"

	cmd, out, _ := testCommand()
	if code := exitCode(runScan(cmd, []string{"1"})); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	text := out.String()
	if !strings.Contains(text, report.SessionReportHeader) {
		t.Errorf("expected session report, got:\n%s", text)
	}
	if !strings.Contains(text, `"has_violation": true`) {
		t.Fatalf("expected violation report JSON, got:\n%s", text)
	}
}

func TestRunScanRejectsZeroWindow(t *testing.T) {
	dir := resetFlags(t)
	scanFlags.sources = []string{writeFeed(t, dir)}

	cmd, _, _ := testCommand()
	if err := runScan(cmd, []string{"0"}); !errors.Is(err, policy.ErrZeroWindow) {
		t.Fatalf("expected ErrZeroWindow, got %v", err)
	}
}

func TestRunWatchRejectsZeroCadence(t *testing.T) {
	dir := resetFlags(t)
	watchFlags.sources = []string{writeFeed(t, dir)}

	cmd, _, _ := testCommand()
	if err := runWatch(cmd, []string{"0"}); !errors.Is(err, policy.ErrZeroCadence) {
		t.Fatalf("expected ErrZeroCadence, got %v", err)
	}
}

func TestSecondsArg(t *testing.T) {
	if n, err := secondsArg(nil, 30); err != nil || n != 30 {
		t.Errorf("default: got %d, %v", n, err)
	}
	if n, err := secondsArg([]string{"45"}, 30); err != nil || n != 45 {
		t.Errorf("explicit: got %d, %v", n, err)
	}
	for _, bad := range []string{"-1", "soon"} {
		if _, err := secondsArg([]string{bad}, 30); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestRunHaltNoStrategy(t *testing.T) {
	resetFlags(t)

	cmd, out, errOut := testCommand()
	err := runHalt(cmd, []string{"manual", "stop"})
	if code := exitCode(err); code != 1 {
		t.Fatalf("expected exit 1, got %v", err)
	}
	if !strings.Contains(errOut.String(), "halt failed") {
		t.Errorf("expected failure message, got %q", errOut.String())
	}
	if !strings.Contains(out.String(), "cancel: FAILED") {
		t.Errorf("expected chain output, got %q", out.String())
	}
}

func TestRunHaltScript(t *testing.T) {
	dir := resetFlags(t)
	marker := filepath.Join(dir, "reason.txt")
	script := "#!/bin/bash\necho \"$1\" > " + marker + "\n"
	if err := os.WriteFile(filepath.Join(dir, "cancel_pipeline.sh"), []byte(script), 0o700); err != nil {
		t.Fatal(err)
	}

	cmd, _, _ := testCommand()
	if err := runHalt(cmd, []string{"manual", "stop"}); err != nil {
		t.Fatalf("runHalt: %v", err)
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("script did not run: %v", err)
	}
	if strings.TrimSpace(string(data)) != "manual stop" {
		t.Errorf("script got reason %q", data)
	}
}

func TestRunCreateWhitelistAndAugment(t *testing.T) {
	dir := resetFlags(t)
	feed := writeFeed(t, dir, githubRecord)
	whitelistSources = []string{feed}
	whitelistFile = filepath.Join(dir, "whitelist.json")

	cmd, _, _ := testCommand()
	if err := runCreateWhitelist(cmd, []string{"1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	data, err := os.ReadFile(whitelistFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "api.github.com") {
		t.Fatalf("expected captured endpoint, got %s", data)
	}

	writeFeed(t, dir, ngrokRecord)
	cmd, _, errOut := testCommand()
	if err := runCreateWhitelist(cmd, []string{"1", "true"}); err != nil {
		t.Fatalf("augment: %v", err)
	}
	data, err = os.ReadFile(whitelistFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "api.github.com") || !strings.Contains(string(data), "abc.ngrok.io") {
		t.Fatalf("expected merged document, got %s", data)
	}
	if !strings.Contains(errOut.String(), "added 1 endpoints") {
		t.Errorf("expected added count, got %q", errOut.String())
	}
}

func TestRunCreateWhitelistRejectsBadArgs(t *testing.T) {
	resetFlags(t)
	cmd, _, _ := testCommand()
	if err := runCreateWhitelist(cmd, []string{"0"}); !errors.Is(err, policy.ErrZeroWindow) {
		t.Errorf("expected ErrZeroWindow, got %v", err)
	}
	if err := runCreateWhitelist(cmd, []string{"5", "maybe"}); err == nil {
		t.Error("expected error for non-boolean augment")
	}
}

func TestRunAuditVerifyAndReplay(t *testing.T) {
	dir := resetFlags(t)
	path := filepath.Join(dir, "verify.jsonl")
	l, err := audit.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []audit.Entry{
		{RunID: "run-a", Event: audit.EventRunStarted, Mode: "scan"},
		{RunID: "run-a", Event: audit.EventViolation, Mode: "scan", Counts: &audit.Counts{Blacklist: 2}},
		{RunID: "run-a", Event: audit.EventCancellation, Mode: "scan", Strategy: "none"},
	} {
		if err := l.Record(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	cmd, out, _ := testCommand()
	if err := runAuditVerify(cmd, []string{path}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out.String(), "OK: 3 entries verified") || !strings.Contains(out.String(), "0 halted, 1 failed") {
		t.Errorf("unexpected verify output %q", out.String())
	}
	if strings.Contains(out.String(), "note:") {
		t.Errorf("run-a is started in this log, got %q", out.String())
	}

	replayRun, replayEvent, replayMode, replayFrom, replayTo, replayFormat = "run-a", "", "", "", "", "text"
	cmd, out, _ = testCommand()
	if err := runReplay(cmd, []string{path}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out.String(), "Run: run-a") {
		t.Errorf("unexpected timeline %q", out.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"blacklist":2`, `"blacklist":0`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0o600); err != nil {
		t.Fatal(err)
	}
	cmd, _, _ = testCommand()
	if code := exitCode(runAuditVerify(cmd, []string{path})); code != 1 {
		t.Fatalf("expected tampered log to fail verification, got code %d", code)
	}
}

func TestRunReplayRejectsBadFlags(t *testing.T) {
	dir := resetFlags(t)
	path := filepath.Join(dir, "empty.jsonl")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name                        string
		event, from, to, format, in string
	}{
		{name: "format", format: "yaml", in: "--format"},
		{name: "event", format: "text", event: "deleted", in: "--event"},
		{name: "from", format: "text", from: "yesterday", in: "--from"},
		{name: "inverted range", format: "text", from: "2026-03-02", to: "2026-03-01", in: "before"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replayRun, replayMode = "", ""
			replayEvent, replayFrom, replayTo, replayFormat = tt.event, tt.from, tt.to, tt.format
			cmd, _, _ := testCommand()
			err := runReplay(cmd, []string{path})
			if err == nil || !strings.Contains(err.Error(), tt.in) {
				t.Fatalf("expected error mentioning %q, got %v", tt.in, err)
			}
		})
	}
}

func TestParseBound(t *testing.T) {
	from, err := parseBound("--from", "2026-03-01", false)
	if err != nil || !from.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from = %v, %v", from, err)
	}
	to, err := parseBound("--to", "2026-03-01", true)
	if err != nil || to.Day() != 1 || to.Hour() != 23 {
		t.Fatalf("a date upper bound must cover the day, got %v, %v", to, err)
	}
	exact, err := parseBound("--to", "2026-03-01T12:00:00Z", true)
	if err != nil || exact.Hour() != 12 {
		t.Fatalf("RFC3339 bound must be exact, got %v, %v", exact, err)
	}
	if zero, err := parseBound("--to", "", true); err != nil || !zero.IsZero() {
		t.Fatalf("empty bound must be zero, got %v, %v", zero, err)
	}
}

func TestRunVersion(t *testing.T) {
	resetFlags(t)
	cmd, out, _ := testCommand()
	if err := runVersion(cmd, nil); err != nil {
		t.Fatal(err)
	}
	var info versionInfo
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out.String())
	}
	if info.Name != "egresswatch" || info.Version != version {
		t.Errorf("unexpected version info %+v", info)
	}

	versionShort = true
	cmd, out, _ = testCommand()
	if err := runVersion(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("short version = %q, want %q", got, version)
	}
}

func TestExitWith(t *testing.T) {
	if exitWith(0) != nil {
		t.Error("exit 0 must be nil")
	}
	if code := exitCode(exitWith(1)); code != 1 {
		t.Errorf("expected code 1, got %d", code)
	}
}
