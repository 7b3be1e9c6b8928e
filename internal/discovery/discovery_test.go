package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPublisher(t *testing.T) (*Publisher, string) {
	t.Helper()
	dir := t.TempDir()
	p := &Publisher{logger: zap.NewNop(), dir: dir}
	return p, dir
}

func TestPublishWritesDescriptorAndEnvScript(t *testing.T) {
	p, dir := newTestPublisher(t)
	info := &IdeInfo{Name: "nvim", DisplayName: "Neovim"}

	require.NoError(t, p.Publish(1234, 5555, "/work", "tok-abc", "nvim", info))

	descriptorPath := filepath.Join(dir, "gemini-ide-server-1234-5555.json")
	raw, err := os.ReadFile(descriptorPath)
	require.NoError(t, err)

	var got PortDescriptor
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 5555, got.Port)
	assert.Equal(t, "/work", got.WorkspacePath)
	assert.Equal(t, "tok-abc", got.AuthToken)
	require.NotNil(t, got.IdeInfo)
	assert.Equal(t, "nvim", got.IdeInfo.Name)

	stat, err := os.Stat(descriptorPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), stat.Mode().Perm())

	envPath := filepath.Join(dir, "nvim-env-1234.sh")
	envRaw, err := os.ReadFile(envPath)
	require.NoError(t, err)
	assert.Contains(t, string(envRaw), "export GEMINI_IDE_SERVER_PORT=5555")
	assert.Contains(t, string(envRaw), "export GEMINI_IDE_AUTH_TOKEN=tok-abc")
}

func TestCleanupRemovesBothFiles(t *testing.T) {
	p, dir := newTestPublisher(t)
	require.NoError(t, p.Publish(1234, 5555, "/work", "tok", "nvim", nil))

	p.Cleanup()

	_, err := os.Stat(filepath.Join(dir, "gemini-ide-server-1234-5555.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "nvim-env-1234.sh"))
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupIsSafeWithoutPublish(t *testing.T) {
	p, _ := newTestPublisher(t)
	p.Cleanup()
}

func TestReapStaleRemovesOldFiles(t *testing.T) {
	p, dir := newTestPublisher(t)

	stalePath := filepath.Join(dir, "gemini-ide-server-99999-1.json")
	require.NoError(t, os.WriteFile(stalePath, []byte("{}"), 0o600))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stalePath, old, old))

	p.reapStale("nvim")
	time.Sleep(50 * time.Millisecond)

	_, err := os.Stat(stalePath)
	assert.True(t, os.IsNotExist(err))
}

func TestReapStaleRemovesDeadProcessFiles(t *testing.T) {
	p, dir := newTestPublisher(t)

	// A pid vanishingly unlikely to be alive on any test host.
	deadPath := filepath.Join(dir, "gemini-ide-server-999999-1.json")
	require.NoError(t, os.WriteFile(deadPath, []byte("{}"), 0o600))

	p.reapStale("nvim")
	time.Sleep(50 * time.Millisecond)

	_, err := os.Stat(deadPath)
	assert.True(t, os.IsNotExist(err))
}

func TestReapStaleSkipsOwnFiles(t *testing.T) {
	p, dir := newTestPublisher(t)
	require.NoError(t, p.Publish(os.Getpid(), 5555, "/work", "tok", "nvim", nil))

	p.reapStale("nvim")
	time.Sleep(50 * time.Millisecond)

	_, err := os.Stat(filepath.Join(dir, "gemini-ide-server-"+strconv.Itoa(os.Getpid())+"-5555.json"))
	assert.NoError(t, err)
}
