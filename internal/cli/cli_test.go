package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphc/internal/config"
)

const (
	fixturesDir = "../harness/testdata/fixtures"
	goldenDir   = "../harness/testdata/golden"
)

const animalsConfig = `
backend: match
sql:
  dialect: sqlite
  tables: {Animal: animal}
  joins:
    Animal:
      out_Animal_ParentOf: {from_column: uuid, to_column: parent}
cache:
  driver: none
`

func fixturePath(name string) string {
	return filepath.Join(fixturesDir, name+".yaml")
}

// isolate clears GRAPHC_* variables and points the CLI at a fresh config.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range []string{config.EnvBackend, config.EnvSchema, config.EnvCacheDriver, config.EnvCachePath} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	path := filepath.Join(t.TempDir(), "graphc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(animalsConfig), 0o644))
	return path
}

// execute runs the CLI with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "graphc", cmd.Use)
	for _, name := range []string{"compile", "check", "test", "fingerprint", "cache"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCases := []struct {
		name      string
		shorthand string
		def       string
	}{
		{name: "verbose", shorthand: "v", def: "false"},
		{name: "format", def: "text"},
		{name: "config", shorthand: "c", def: ""},
		{name: "env", def: ".env"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := cmd.PersistentFlags().Lookup(tc.name)
			require.NotNil(t, f)
			assert.Equal(t, tc.shorthand, f.Shorthand)
			assert.Equal(t, tc.def, f.DefValue)
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	cfg := isolate(t)
	_, err := execute(t, "--format", "xml", "-c", cfg, "fingerprint", fixturePath("simple_output"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCompileText(t *testing.T) {
	cfg := isolate(t)
	out, err := execute(t, "-c", cfg, "compile", fixturePath("simple_output"))
	require.NoError(t, err)

	golden, err := os.ReadFile(filepath.Join(goldenDir, "simple_output.match.golden"))
	require.NoError(t, err)
	assert.Equal(t, "-- simple_output (match)\n"+string(golden), out)
}

func TestCompileJSONAcrossFixtures(t *testing.T) {
	cfg := isolate(t)
	out, err := execute(t, "-c", cfg, "--format", "json", "compile", "--backend", "cypher",
		fixturePath("simple_output"), fixturePath("recursion"))
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   CompileReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Queries, 2)
	assert.Equal(t, "simple_output", resp.Data.Queries[0].Name)
	assert.Equal(t, "recursion", resp.Data.Queries[1].Name)
	assert.Equal(t, "cypher", resp.Data.Queries[1].Backend)
	assert.Contains(t, resp.Data.Queries[1].Query, "*0..3")
	assert.NotEmpty(t, resp.Data.Queries[0].ID)
	assert.Len(t, resp.Data.Queries[0].Fingerprint, 64)
}

func TestCompileSQLWithArgs(t *testing.T) {
	cfg := isolate(t)
	out, err := execute(t, "-c", cfg, "--format", "json", "compile", "-b", "sql", fixturePath("traverse_with_filter"))
	require.NoError(t, err)

	var resp struct {
		Data CompileReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Queries, 1)
	assert.Equal(t, []Arg{{Name: "wanted"}}, resp.Data.Queries[0].Args)
}

func TestCompileUnsupportedFeature(t *testing.T) {
	cfg := isolate(t)
	out, err := execute(t, "-c", cfg, "compile", "-b", "sql", fixturePath("fold"), fixturePath("simple_output"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ fold ["+ErrCodeNotImplemented+"]")
	assert.Contains(t, out, "-- simple_output (sql)")
}

func TestCompileWritesOutputFile(t *testing.T) {
	cfg := isolate(t)
	path := filepath.Join(t.TempDir(), "out.txt")
	_, err := execute(t, "-c", cfg, "compile", "-o", path, fixturePath("simple_output"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "-- simple_output (match)\nSELECT "))
}

func TestCompileUsesCache(t *testing.T) {
	cfg := isolate(t)
	t.Setenv(config.EnvCacheDriver, config.CacheSQLite)
	t.Setenv(config.EnvCachePath, filepath.Join(t.TempDir(), "cache.db"))

	run := func() CompiledQuery {
		out, err := execute(t, "-c", cfg, "--format", "json", "compile", fixturePath("simple_output"))
		require.NoError(t, err)
		var resp struct {
			Data CompileReport `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Data.Queries, 1)
		return resp.Data.Queries[0]
	}
	first := run()
	second := run()
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Query, second.Query)
	assert.Equal(t, first.ID, second.ID)
}

func TestCacheList(t *testing.T) {
	cfg := isolate(t)
	t.Setenv(config.EnvCacheDriver, config.CacheSQLite)
	t.Setenv(config.EnvCachePath, filepath.Join(t.TempDir(), "cache.db"))

	out, err := execute(t, "-c", cfg, "cache", "ls")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = execute(t, "-c", cfg, "compile", fixturePath("simple_output"), fixturePath("fold"))
	require.NoError(t, err)

	fpOut, err := execute(t, "fingerprint", fixturePath("simple_output"))
	require.NoError(t, err)
	fp := strings.Fields(fpOut)[0]

	out, err = execute(t, "-c", cfg, "--format", "json", "cache", "ls")
	require.NoError(t, err)
	var resp struct {
		Data CacheListing `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "match", resp.Data.Backend)
	require.Len(t, resp.Data.Fingerprints, 2)
	assert.Contains(t, resp.Data.Fingerprints, fp)

	out, err = execute(t, "-c", cfg, "cache", "ls", "-b", "cypher")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = execute(t, "-c", cfg, "cache", "ls", "-b", "sparql")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileCommandErrors(t *testing.T) {
	cfg := isolate(t)
	testCases := []struct {
		name string
		args []string
	}{
		{name: "unknown backend", args: []string{"-c", cfg, "compile", "-b", "sparql", fixturePath("simple_output")}},
		{name: "missing fixture", args: []string{"-c", cfg, "compile", "nope.yaml"}},
		{name: "missing config", args: []string{"-c", "nope.yaml", "compile", fixturePath("simple_output")}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestCheck(t *testing.T) {
	cfg := isolate(t)
	out, err := execute(t, "-c", cfg, "check", fixturePath("simple_output"), fixturePath("fold"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ simple_output.yaml")
	assert.Contains(t, out, "2 valid, 0 invalid")
}

func TestCheckAgainstSchema(t *testing.T) {
	cfg := isolate(t)
	sdl := filepath.Join(t.TempDir(), "plants.graphql")
	require.NoError(t, os.WriteFile(sdl, []byte("type Plant { name: String }\ntype Query { Plant: [Plant] }\n"), 0o644))
	t.Setenv(config.EnvSchema, sdl)

	out, err := execute(t, "-c", cfg, "--format", "json", "check", fixturePath("simple_output"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data CheckReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Results, 1)
	assert.False(t, resp.Data.Results[0].Valid)
	assert.Equal(t, "E204", resp.Data.Results[0].Code)
}

func TestCheckRejectsBrokenFixture(t *testing.T) {
	cfg := isolate(t)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	doc := `
name: broken
locations:
  - {location: Animal, type: Animal}
blocks:
  - mark_location: Animal
  - query_root: [Animal]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := execute(t, "-c", cfg, "check", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml [E300]")
}

func TestTestCommand(t *testing.T) {
	cfg := isolate(t)
	out, err := execute(t, "-c", cfg, "test", fixturesDir, "--golden", goldenDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ fold/sql (not_implemented)")
	assert.Contains(t, out, "18 passed, 0 failed, 18 total")
}

func TestTestCommandFilterAndUpdate(t *testing.T) {
	cfg := isolate(t)
	golden := t.TempDir()
	out, err := execute(t, "-c", cfg, "test", fixturesDir, "--golden", golden, "--filter", "recursion", "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ recursion/cypher (golden updated)")
	assert.NotContains(t, out, "simple_output")

	out, err = execute(t, "-c", cfg, "--format", "json", "test", fixturesDir, "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	// recursion passes on all four backends; fold/sql needs no golden file.
	assert.Equal(t, 5, resp.Data.Passed)
	assert.Equal(t, 13, resp.Data.Failed)
}

func TestTestCommandMissingDir(t *testing.T) {
	cfg := isolate(t)
	_, err := execute(t, "-c", cfg, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFingerprint(t *testing.T) {
	isolate(t)
	out, err := execute(t, "fingerprint", fixturePath("simple_output"), fixturePath("fold"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "  simple_output"))
	assert.Len(t, strings.Fields(lines[0])[0], 64)

	again, err := execute(t, "fingerprint", fixturePath("simple_output"))
	require.NoError(t, err)
	assert.Equal(t, lines[0]+"\n", again)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, f.Error("E204", "unknown type", map[string]string{"type": "Plant"}))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E204", resp.Error.Code)

	buf.Reset()
	var diag bytes.Buffer
	f = &OutputFormatter{Format: "text", Writer: &buf, ErrWriter: &diag, Verbose: true}
	f.VerboseLog("pass %d", 3)
	require.NoError(t, f.Success("done"))
	assert.Equal(t, "done\n", buf.String())
	assert.Equal(t, "pass 3\n", diag.String())
}
