// Package discovery publishes the port descriptor and env script that
// clients read to find this process, and reaps stale copies left
// behind by processes that exited without cleaning up.
package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// IdeInfo is the optional editor identification advertised in the
// PortDescriptor.
type IdeInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// PortDescriptor is the JSON file clients read to learn how to reach
// this bridge process.
type PortDescriptor struct {
	Port          int      `json:"port"`
	WorkspacePath string   `json:"workspacePath"`
	AuthToken     string   `json:"authToken"`
	IdeInfo       *IdeInfo `json:"ideInfo,omitempty"`
}

const staleAge = 24 * time.Hour

// Publisher writes and unlinks the descriptor/env-script pair for this
// process's lifetime.
type Publisher struct {
	logger *zap.Logger

	dir            string
	descriptorPath string
	envScriptPath  string
}

// New constructs a Publisher rooted at <tmp>/gemini/ide/.
func New(logger *zap.Logger) *Publisher {
	return &Publisher{
		logger: logger,
		dir:    filepath.Join(os.TempDir(), "gemini", "ide"),
	}
}

// Publish ensures the target directory exists and writes both files for
// pid, the bound port, workspacePath, authToken, the editor identifier,
// and ideInfo. Reaping of stale files from prior runs is fired in the
// background; failures there are logged, never fatal.
func (p *Publisher) Publish(pid, port int, workspacePath, authToken, ideName string, ideInfo *IdeInfo) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("creating discovery directory %q: %w", p.dir, err)
	}

	descriptor := PortDescriptor{
		Port:          port,
		WorkspacePath: workspacePath,
		AuthToken:     authToken,
		IdeInfo:       ideInfo,
	}
	encoded, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("encoding port descriptor: %w", err)
	}

	p.descriptorPath = filepath.Join(p.dir, fmt.Sprintf("gemini-ide-server-%d-%d.json", pid, port))
	if err := os.WriteFile(p.descriptorPath, encoded, 0o600); err != nil {
		return fmt.Errorf("writing port descriptor: %w", err)
	}

	script := envScript(port, workspacePath, authToken, ideName)
	p.envScriptPath = filepath.Join(p.dir, fmt.Sprintf("%s-env-%d.sh", ideName, pid))
	if err := os.WriteFile(p.envScriptPath, []byte(script), 0o600); err != nil {
		return fmt.Errorf("writing env script: %w", err)
	}

	go p.reapStale(ideName)

	return nil
}

func envScript(port int, workspacePath, authToken, ideName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "export GEMINI_IDE_SERVER_PORT=%d\n", port)
	fmt.Fprintf(&b, "export GEMINI_IDE_WORKSPACE_PATH=%s\n", workspacePath)
	fmt.Fprintf(&b, "export GEMINI_IDE_AUTH_TOKEN=%s\n", authToken)
	fmt.Fprintf(&b, "export GEMINI_IDE_EDITOR=%s\n", ideName)
	return b.String()
}

// Cleanup unlinks both files written by Publish. Safe to call more than
// once and safe to call on a Publisher that never successfully
// published.
func (p *Publisher) Cleanup() {
	for _, path := range []string{p.descriptorPath, p.envScriptPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Debug("cleanup unlink failed", zap.String("path", path), zap.Error(err))
		}
	}
}

// reapStale scans the discovery directory for descriptor/env files left
// by processes that exited without calling Cleanup. A missing directory
// is not an error; per-file errors are swallowed so one bad entry never
// blocks reaping the rest.
func (p *Publisher) reapStale(ideName string) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return
	}

	descriptorGlob := "gemini-ide-server-*-*.json"
	envGlob := ideName + "-env-*.sh"

	for _, entry := range entries {
		name := entry.Name()

		var pid int
		var ok bool
		switch {
		case matches(descriptorGlob, name):
			pid, ok = extractDescriptorPID(name)
		case matches(envGlob, name):
			pid, ok = extractEnvPID(name, ideName)
		default:
			continue
		}
		if !ok {
			continue
		}

		full := filepath.Join(p.dir, name)
		if full == p.descriptorPath || full == p.envScriptPath {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if time.Since(info.ModTime()) > staleAge {
			p.removeQuietly(full)
			continue
		}

		if !processAlive(pid) {
			p.removeQuietly(full)
		}
	}
}

func matches(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

func (p *Publisher) removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Debug("stale file reap failed", zap.String("path", path), zap.Error(err))
	}
}

// extractDescriptorPID parses the pid out of
// gemini-ide-server-<pid>-<port>.json.
func extractDescriptorPID(name string) (int, bool) {
	trimmed := strings.TrimSuffix(name, ".json")
	trimmed = strings.TrimPrefix(trimmed, "gemini-ide-server-")
	parts := strings.Split(trimmed, "-")
	if len(parts) != 2 {
		return 0, false
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	return pid, true
}

// extractEnvPID parses the pid out of <editor>-env-<pid>.sh.
func extractEnvPID(name, ideName string) (int, bool) {
	trimmed := strings.TrimSuffix(name, ".sh")
	trimmed = strings.TrimPrefix(trimmed, ideName+"-env-")
	pid, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	return pid, true
}

// processAlive probes liveness with signal 0, the POSIX idiom for "does
// this pid exist" without actually signaling the process.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
