package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redpesk-addons/afb-jscli/internal/testutil"
)

func j1Scenario(uri string, steps ...string) string {
	return fmt.Sprintf(`name: cli
connections:
  - {name: b, kind: j1, uri: %q}
steps:
%s
`, uri, strings.Join(steps, "\n"))
}

func call(op, verb string) string {
	return fmt.Sprintf("  - {op: %s, conn: b, api: hello, verb: %s, args: 1}", op, verb)
}

func TestRun_AllPass(t *testing.T) {
	srv := testutil.NewJ1Server(t, nil)
	path := writeFile(t, t.TempDir(), "pass.yaml", j1Scenario(srv.URI(),
		call("call_success", "ping"),
		call("call_error", "pingfail"),
	))

	stdout, _, err := execute(context.Background(), "run", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ok 1 "))
	assert.True(t, strings.HasPrefix(lines[1], "ok 2 "))
	assert.Equal(t, "1..2", lines[2])
}

func TestRun_ScenarioAfterTimeoutStillSettles(t *testing.T) {
	srv := testutil.NewJ1Server(t, nil)
	dir := t.TempDir()
	stuck := writeFile(t, dir, "stuck.yaml", j1Scenario(srv.URI(),
		"  - {op: expect_event}",
		"  - {op: wait_events, timeout: 50ms}",
	))
	pass := writeFile(t, dir, "pass.yaml", j1Scenario(srv.URI(),
		call("call_success", "ping"),
	))

	stdout, _, err := execute(context.Background(), "run", "--timeout", "5s", stuck, pass)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 assertions failed", err.Error())

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3, stdout)
	assert.True(t, strings.HasPrefix(lines[0], "not ok 1 "), lines[0])
	assert.Contains(t, lines[0], "steps[1] (wait_events)")
	assert.True(t, strings.HasPrefix(lines[1], "ok 2 "), lines[1])
	assert.Equal(t, "1..2", lines[2])
}

func TestRun_FailureSetsExitCode(t *testing.T) {
	srv := testutil.NewJ1Server(t, nil)
	path := writeFile(t, t.TempDir(), "fail.yaml", j1Scenario(srv.URI(),
		call("call_success", "pingfail"),
		call("call_success", "ping"),
	))

	stdout, _, err := execute(context.Background(), "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "1 of 2 assertions failed", err.Error())
	assert.Contains(t, stdout, "not ok 1 ")
	assert.Contains(t, stdout, "ok 2 ")
	assert.True(t, strings.HasSuffix(stdout, "1..2\n"))
}

func TestRun_StopOnFailure(t *testing.T) {
	srv := testutil.NewJ1Server(t, nil)
	path := writeFile(t, t.TempDir(), "stop.yaml", j1Scenario(srv.URI(),
		call("call_success", "pingfail"),
		call("call_success", "pingbug"),
	))

	stdout, _, err := execute(context.Background(), "run", "--stop-on-failure", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, 1, strings.Count(stdout, "not ok"))
	assert.NotContains(t, stdout, "1..")
}

func TestRun_ModeFlagOverridesScenario(t *testing.T) {
	srv := testutil.NewJ1Server(t, nil)
	doc := strings.Replace(j1Scenario(srv.URI(), call("call_success", "ping")),
		"name: cli\n", "name: cli\noptions: {mode: old}\n", 1)
	path := writeFile(t, t.TempDir(), "mode.yaml", doc)

	stdout, _, err := execute(context.Background(), "run", "--mode", "success", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "SUCCESS: "))
	assert.Contains(t, stdout, "success: 1 / 1\nfailure: 0 / 1\n")
}

func TestRun_ScenarioOptionsApply(t *testing.T) {
	srv := testutil.NewJ1Server(t, nil)
	doc := strings.Replace(j1Scenario(srv.URI(), call("call_success", "ping")),
		"name: cli\n", "name: cli\noptions: {mode: old}\n", 1)
	path := writeFile(t, t.TempDir(), "old.yaml", doc)

	stdout, _, err := execute(context.Background(), "run", path)
	require.NoError(t, err)
	assert.Equal(t, "success: 1 / 1\nfailure: 0 / 1\n", stdout)
}

func TestRun_UnreachableBindingIsAFailure(t *testing.T) {
	path := writeFile(t, t.TempDir(), "down.yaml", j1Scenario("127.0.0.1:1/api", call("call", "ping")))

	stdout, _, err := execute(context.Background(), "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, strings.HasPrefix(stdout, `not ok 1 {"error":"connection \"b\": `), stdout)
	assert.Contains(t, stdout, `"scenario":"cli"}`)
}

func TestRun_InvalidScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "name: bad\n")

	stdout, _, err := execute(context.Background(), "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "cannot load")
	assert.Empty(t, stdout)

	_, _, err = execute(context.Background(), "run", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_JournalAndReport(t *testing.T) {
	srv := testutil.NewJ1Server(t, nil)
	dir := t.TempDir()
	db := filepath.Join(dir, "journal.db")
	path := writeFile(t, dir, "journal.yaml", j1Scenario(srv.URI(),
		call("call_success", "ping"),
		call("call_success", "pingfail"),
	))

	_, _, err := execute(context.Background(), "run", "--journal", db, path)
	require.Error(t, err)

	stdout, _, err := execute(context.Background(), "report", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "SCENARIO")
	assert.Contains(t, lines[1], "cli")
	assert.Regexp(t, `\s2\s+1\s+1$`, lines[1])

	stdout, _, err = execute(context.Background(), "report", db, "last")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "# run "))
	assert.True(t, strings.HasPrefix(lines[1], "ok 1 "))
	assert.True(t, strings.HasPrefix(lines[2], "not ok 2 "))
	assert.Equal(t, "1..2", lines[3])
}
