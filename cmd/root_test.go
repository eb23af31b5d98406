package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/birdnotifier/internal/conf"
)

// fakeEBird serves a fixed taxonomy and fails the observation endpoint
func fakeEBird(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/ref/taxonomy/ebird":
			_, _ = w.Write([]byte(`[
				{"sciName":"Branta canadensis","comName":"Canada Goose","speciesCode":"cangoo","category":"species"},
				{"sciName":"Branta hutchinsii","comName":"Cackling Goose","speciesCode":"cacgoo1","category":"species"},
				{"sciName":"Anas platyrhynchos","comName":"Mallard","speciesCode":"mallar3","category":"species"}
			]`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"errors":[{"code":"unavailable","status":"503","title":"Service Unavailable"}]}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// writeConfig writes a config file into a temp dir, extra overrides the base keys
func writeConfig(t *testing.T, baseURL string, extra map[string]any) (string, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := map[string]any{
		"ebird": map[string]any{
			"apikey":  "ebird-secret-key",
			"region":  "US-NY",
			"baseurl": baseURL,
		},
		"exclude": []string{"Canada Goose", "mallard"},
		"ledger":  map[string]any{"path": filepath.Join(dir, ".previouslyNotified")},
		"email": map[string]any{
			"sender":     "birder@example.com",
			"recipients": []string{"friend@example.com"},
			"auth":       "plain",
			"password":   "app-password-123",
		},
		"logging": map[string]any{"level": "info", "file": ""},
	}
	for k, v := range extra {
		cfg[k] = v
	}

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, dir
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRootCommandLayout(t *testing.T) {
	root := RootCommand(&conf.Settings{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "authorize", "taxonomy", "config"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestConfigCommandRedactsSecrets(t *testing.T) {
	path, _ := writeConfig(t, "https://api.ebird.org/v2", nil)

	code, stdout, stderr := execute(t, "--config", path, "config")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "# "+path)
	assert.Contains(t, stdout, "region: US-NY")
	assert.NotContains(t, stdout, "ebird-secret-key")
	assert.NotContains(t, stdout, "app-password-123")
	assert.Contains(t, stdout, "****-key")
}

func TestConfigCommandDefaults(t *testing.T) {
	path, _ := writeConfig(t, "https://api.ebird.org/v2", nil)

	code, stdout, _ := execute(t, "config", "--config", path, "--default")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "ebird:")
	assert.Contains(t, stdout, "previouslyNotified")

	target := filepath.Join(t.TempDir(), "nested", "config.yaml")
	code, stdout, _ = execute(t, "config", "--config", path, "--write", target)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, target)
	_, err := os.Stat(target)
	require.NoError(t, err)

	// An existing file is never replaced
	code, _, _ = execute(t, "config", "--config", path, "--write", target)
	assert.Equal(t, 1, code)
}

func TestMissingConfigFile(t *testing.T) {
	code, _, stderr := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "config")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error: configuration")
}

func TestTaxonomyCommand(t *testing.T) {
	server := fakeEBird(t)
	path, _ := writeConfig(t, server.URL, nil)

	code, stdout, stderr := execute(t, "--config", path, "taxonomy", "GOOSE")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Canada Goose")
	assert.Contains(t, stdout, "Cackling Goose")
	assert.NotContains(t, stdout, "Mallard")

	code, stdout, _ = execute(t, "--config", path, "taxonomy", "--check")
	assert.Equal(t, 1, code, "lowercase mallard matches no common name")
	assert.Contains(t, stdout, `No eBird species is named "mallard"`)
	assert.NotContains(t, stdout, `"Canada Goose"`)

	code, _, _ = execute(t, "--config", path, "taxonomy")
	assert.Equal(t, 1, code)
}

func TestRunValidatesSettings(t *testing.T) {
	path, _ := writeConfig(t, "https://api.ebird.org/v2", map[string]any{
		"ebird": map[string]any{"apikey": "", "region": "US-NY"},
	})

	code, _, stderr := execute(t, "--config", path, "run")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "apikey is required")
}

func TestRunFetchFailureLogsStage(t *testing.T) {
	server := fakeEBird(t)
	path, dir := writeConfig(t, server.URL, nil)

	code, _, stderr := execute(t, "--config", path, "run")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Command failed")
	assert.Contains(t, stderr, "stage=ObservationsFetched")
	assert.Contains(t, stderr, "category=observation-fetch")
	assert.NotContains(t, stderr, "ebird-secret-key")
	assert.Equal(t, 1, strings.Count(stderr, "level=ERROR"), "one diagnostic line:\n%s", stderr)
	assert.NotContains(t, stderr, "level=WARN")

	_, err := os.Stat(filepath.Join(dir, ".previouslyNotified"))
	assert.ErrorIs(t, err, os.ErrNotExist, "ledger is not written on failure")
}

func TestRunRefusesHeldLedgerLock(t *testing.T) {
	server := fakeEBird(t)
	path, dir := writeConfig(t, server.URL, nil)

	held := flock.New(filepath.Join(dir, ".previouslyNotified.lock"))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = held.Unlock() }()

	code, _, stderr := execute(t, "--config", path, "run")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "another run holds the ledger lock")
	assert.NotContains(t, stderr, "stage=", "the pipeline never started")
}

func TestAuthorizeCommand(t *testing.T) {
	codes := make(chan string, 1)
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		codes <- r.PostForm.Get("code")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "ya29.access",
			"refresh_token": "1//refresh",
			"token_type":    "Bearer",
			"expires_in":    3599,
		})
	}))
	defer tokenServer.Close()

	dir := t.TempDir()
	tokenFile := filepath.Join(dir, ".oAuthToken")
	path, _ := writeConfig(t, "https://api.ebird.org/v2", map[string]any{
		"email": map[string]any{
			"sender":     "birder@example.com",
			"recipients": []string{"friend@example.com"},
			"oauth2": map[string]any{
				"clientid":     "client-id",
				"clientsecret": "client-secret",
				"tokenfile":    tokenFile,
				"authurl":      tokenServer.URL + "/auth",
				"tokenurl":     tokenServer.URL + "/token",
			},
		},
	})

	root := RootCommand(&conf.Settings{})
	var stdout bytes.Buffer
	root.SetArgs([]string{"--config", path, "authorize"})
	root.SetIn(bytes.NewBufferString("4/code-from-browser\n"))
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Contains(t, stdout.String(), tokenServer.URL+"/auth?")
	assert.Contains(t, stdout.String(), "access_type=offline")
	assert.Contains(t, stdout.String(), fmt.Sprintf("Refresh token stored in %s", tokenFile))
	assert.Equal(t, "4/code-from-browser", <-codes)

	data, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "1//refresh\n", string(data))
}

func TestAuthorizeRequiresClient(t *testing.T) {
	path, _ := writeConfig(t, "https://api.ebird.org/v2", nil)

	code, _, stderr := execute(t, "--config", path, "authorize", "--code", "abc")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "clientid")
}
