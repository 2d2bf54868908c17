package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/alerts-sync/internal/repository"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GITHUB_ACCESS_TOKEN", "PROXY_URL", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "PORT", "ALERTS_SCHEDULE"} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
}

func seedRemote(t *testing.T, csv string) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available for the local transport")
	}

	root := t.TempDir()
	remote := filepath.Join(root, "remote.git")
	_, err := git.PlainInitWithOptions(remote, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
		Bare:        true,
	})
	require.NoError(t, err)

	seedDir := filepath.Join(root, "seed")
	seed, err := git.PlainInit(seedDir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "israel-alerts.csv"), []byte(csv), 0644))
	wt, err := seed.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("israel-alerts.csv")
	require.NoError(t, err)
	_, err = wt.Commit("Initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	_, err = seed.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remote}})
	require.NoError(t, err)
	head, err := seed.Head()
	require.NoError(t, err)
	require.NoError(t, seed.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(head.Name().String() + ":refs/heads/main")},
	}))
	return remote
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["serve"])
	assert.True(t, names["bot"])

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("verbose"))
}

func TestRunCommandBadConfig(t *testing.T) {
	isolateEnv(t)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"run", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, cmd.Execute())
}

func TestRunCommandEndToEnd(t *testing.T) {
	isolateEnv(t)
	remote := seedRemote(t, "rid,date,time\n1,01.01.2024,10:00:00\n")

	var fromDate string
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromDate = r.URL.Query().Get("fromDate")
		fmt.Fprint(w, `[{"rid":1,"date":"01.01.2024","time":"10:00:00"},{"rid":2,"date":"01.01.2024","time":"10:05:00"}]`)
	}))
	defer feed.Close()

	dir := t.TempDir()
	ledger := filepath.Join(dir, "runs.db")
	configPath := filepath.Join(dir, "alertsync.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
dataset:
  remote_url: %s
  work_dir: %s
  clone_depth: 0
feed:
  url: %s
ledger:
  path: %s
`, remote, filepath.Join(dir, "work"), feed.URL, ledger)), 0644))

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"run", "--config", configPath})
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "2024-01-01T10:00:01", fromDate)
	assert.Contains(t, out.String(), "Published: Added 1 alert")

	runs, err := repository.NewSQLiteRunRepository(ledger)
	require.NoError(t, err)
	defer runs.Close()
	last, err := runs.GetLastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 1, last.Added)
	assert.True(t, last.Published)
}
