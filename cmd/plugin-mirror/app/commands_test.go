package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/plugin-mirror/internal/status"
	"github.com/stacklok/plugin-mirror/internal/versions"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "sync", "version", "migrate"})
	assert.NotNil(t, cmd.PersistentFlags().Lookup("debug"))
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, "", "version", "--format", "json")
	require.NoError(t, err)

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Platform)
}

func TestMigrateCmd_Errors(t *testing.T) {
	noDatabase := writeConfig(t, "devMode: true\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "config is required", args: []string{"migrate", "up"}, wantErr: "required flag"},
		{name: "database is required", args: []string{"migrate", "up", "--config", noDatabase, "--yes"},
			wantErr: "database configuration is required"},
		{name: "down needs a step count", args: []string{"migrate", "down", "--config", noDatabase, "--yes"},
			wantErr: "--num-steps must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{input: "yes\n", want: true},
		{input: "Y\n", want: true},
		{input: "y", want: true},
		{input: "no\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &out, "Continue?"))
			assert.Equal(t, "Continue? (yes/no): ", out.String())
		})
	}
}

func TestConfirmMigration(t *testing.T) {
	t.Parallel()

	newCmd := func(stdin string) *cobra.Command {
		cmd := newMigrateCmd()
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetErr(&bytes.Buffer{})
		return cmd
	}

	cmd := newCmd("")
	require.NoError(t, cmd.PersistentFlags().Set("yes", "true"))
	ok, err := confirmMigration(cmd, "Continue?")
	require.NoError(t, err)
	assert.True(t, ok, "--yes skips the prompt")

	ok, err = confirmMigration(newCmd("yes\n"), "Continue?")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = confirmMigration(newCmd("no\n"), "Continue?")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSyncCmd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") != "query_plugins" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"info": {"page": 1, "pages": 1, "results": 1},
			"plugins": [{"slug": "akismet", "name": "Akismet", "version": "5.3", "last_updated": "2024-03-05 4:15pm GMT"}]
		}`))
	}))
	server.Config.SetKeepAlivesEnabled(false)
	defer server.Close()

	dataDir := t.TempDir()
	path := writeConfig(t, fmt.Sprintf("dataDir: %s\nremote:\n  baseURL: %s\n", dataDir, server.URL))

	out, err := execute(t, "", "sync", "--config", path, "--force")
	require.NoError(t, err)

	var summary status.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, status.RunStatusCompleted, summary.Status)
	assert.Equal(t, ReasonCLI, summary.Reason)
	assert.True(t, summary.Force)
	assert.Equal(t, 1, summary.RecordsProcessed)
	assert.Equal(t, 1, summary.RecordsUpdated)

	assert.FileExists(t, filepath.Join(dataDir, "store.db"))
}
