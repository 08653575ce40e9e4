package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type cli struct {
	dir  string
	data string
}

func newCLI(t *testing.T) cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CAPPLAN_LOGGING_LEVEL", "error")
	t.Setenv("CAPPLAN_MIRROR_DRIVER", "sqlite")
	t.Setenv("CAPPLAN_MIRROR_SQLITE_PATH", filepath.Join(dir, "mirror.db"))
	t.Setenv("CAPPLAN_MIRROR_ON_WRITE", "false")
	t.Setenv("CAPPLAN_ARCHIVE_DRIVER", "fs")
	t.Setenv("CAPPLAN_ARCHIVE_FS_ROOT", filepath.Join(dir, "archive"))
	return cli{dir: dir, data: filepath.Join(dir, "capacity.json")}
}

func (c cli) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(c.dir, "none.env"), "--data-file", c.data}, args...))
	err := cmd.Execute()
	return out.String(), err
}

type cliReport struct {
	Report json.RawMessage `json:"report"`
	Write  writeOutcome    `json:"write"`
}

func decodeReport(t *testing.T, out string) cliReport {
	t.Helper()
	var r cliReport
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

const legacyDoc = `{
  "projects": [{"id": "P1", "customerName": "Acme", "projectName": "Rollout", "projectType": "Software"}],
  "teamMembers": [{"id": "M1", "name": "Maria", "email": "maria@example.com"}],
  "allocations": [],
  "allocationHistory": [
    {"id": "H1", "allocationId": "A1", "changeType": "created",
     "newValue": {"id": "A1", "projectId": "P1", "pmId": "M1", "year": 2025, "month": 11, "sprint": 1, "percentage": 50}}
  ]
}`

func TestRepairCommands(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, os.WriteFile(c.data, []byte(legacyDoc), 0o644))

	out, err := c.run(t, "", "normalize", "--dry-run")
	require.NoError(t, err)
	r := decodeReport(t, out)
	require.False(t, r.Write.Written)

	out, err = c.run(t, "", "normalize")
	require.NoError(t, err)
	r = decodeReport(t, out)
	require.True(t, r.Write.Written)
	require.NotNil(t, r.Write.Backup)

	out, err = c.run(t, "", "reconcile")
	require.NoError(t, err)
	r = decodeReport(t, out)
	require.True(t, r.Write.Written)
	require.Contains(t, string(r.Report), `"A1"`)

	out, err = c.run(t, "", "reconcile")
	require.NoError(t, err)
	require.False(t, decodeReport(t, out).Write.Written, "reconcile is idempotent")

	out, err = c.run(t, "", "migrate-ids")
	require.NoError(t, err)
	require.True(t, decodeReport(t, out).Write.Written)

	out, err = c.run(t, "", "backups", "list")
	require.NoError(t, err)
	require.Len(t, strings.Fields(out), 3)

	out, err = c.run(t, "", "backups", "list", "--archived")
	require.NoError(t, err)
	require.Len(t, strings.Fields(out), 3)
}

func TestRecoverAndRestore(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, os.WriteFile(c.data, []byte(`{"teams":[{"id":"T1","name":"Core"}]}`+"\n"+`{"teams":[{"id":"T2"`), 0o644))

	_, err := c.run(t, "", "reconcile")
	require.Error(t, err, "corrupt file blocks normal writes")

	out, err := c.run(t, "", "recover", "--write")
	require.NoError(t, err)
	r := decodeReport(t, out)
	require.True(t, r.Write.Written)
	require.NotNil(t, r.Write.Backup)
	corrupt := *r.Write.Backup

	out, err = c.run(t, "", "backups", "restore", corrupt)
	require.NoError(t, err)
	require.Contains(t, out, `"written": true`)
	raw, err := os.ReadFile(c.data)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"T1"`)
	require.NotContains(t, string(raw), `"T2"`, "a corrupt backup is salvaged before it is restored")

	_, err = c.run(t, "", "backups", "restore", "nope.json")
	require.Error(t, err)
}

func TestImportMirrorAndExport(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "Customer: Umbrella\nProject: Vaccine tracker\nAmount: 1.2M\n", "import-email", "-")
	require.NoError(t, err)
	require.Contains(t, out, `"customerName": "Umbrella"`)

	out, err = c.run(t, "", "mirror", "push")
	require.NoError(t, err)
	require.Contains(t, out, "sqlite")

	require.NoError(t, os.WriteFile(c.data, []byte(`{"projects":[]}`), 0o644))
	_, err = c.run(t, "", "mirror", "pull")
	require.NoError(t, err)
	raw, err := os.ReadFile(c.data)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Umbrella")

	_, err = c.run(t, "", "export")
	require.NoError(t, err)
	matches, err := filepath.Glob(filepath.Join(c.dir, "capacity.export-projects.*.csv"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)
}
