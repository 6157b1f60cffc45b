package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/internal/scanner"
)

// ResourceError marks a failure to acquire or clean up an ephemeral scan
// resource. It fails the adapter tasks depending on that resource only;
// tasks on unrelated resources run normally.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Resources holds the ephemeral resources of one scan: a shared repository
// checkout reused read-only by every source-scanning adapter. Only the
// manager creates and destroys them.
type Resources struct {
	workRoot  string
	clonePath string
	cloneErr  error
}

// ClonePath returns the shared checkout path, or an error if acquisition
// failed. Dependent adapters turn that error into their own task failure.
func (r *Resources) ClonePath() (string, error) {
	if r.cloneErr != nil {
		return "", r.cloneErr
	}
	return r.clonePath, nil
}

// ResourceManager acquires and releases per-scan ephemeral resources with
// release guaranteed on every exit path of the scan.
type ResourceManager struct {
	workDir string
	logger  *slog.Logger
}

func NewResourceManager(workDir string, logger *slog.Logger) *ResourceManager {
	return &ResourceManager{workDir: workDir, logger: logger}
}

// Acquire prepares the resources a scan's adapter set needs. A clone
// failure is recorded on the returned Resources rather than returned: the
// scan proceeds and only clone-dependent tasks fail. The returned Resources
// must always be released, including when acquisition partially failed.
func (m *ResourceManager) Acquire(ctx context.Context, repo *models.Repository) *Resources {
	res := &Resources{}
	if repo == nil {
		return res
	}

	root, err := os.MkdirTemp(m.workDir, "scanforge-clone-*")
	if err != nil {
		res.cloneErr = &ResourceError{Resource: "workdir", Err: err}
		return res
	}
	res.workRoot = root

	if !scanner.ToolAvailable("git") {
		res.cloneErr = &ResourceError{Resource: "clone", Err: fmt.Errorf("git not found in PATH")}
		return res
	}

	args := []string{"clone", "--depth", "1"}
	if repo.Branch != "" {
		args = append(args, "--branch", repo.Branch)
	}
	args = append(args, repo.CloneURL, root)

	if out, err := scanner.RunTool(ctx, "git", args, ""); err != nil {
		res.cloneErr = &ResourceError{
			Resource: "clone",
			Err:      fmt.Errorf("git clone exited with code %d: %s", out.ExitCode, out.Stderr),
		}
		return res
	}

	res.clonePath = root
	m.logger.Debug("acquired repository clone", "url", repo.CloneURL, "path", root)
	return res
}

// Release destroys everything Acquire created. Safe to call on partially
// acquired resources and on every exit path.
func (m *ResourceManager) Release(res *Resources) {
	if res == nil || res.workRoot == "" {
		return
	}
	if err := os.RemoveAll(res.workRoot); err != nil {
		m.logger.Error("failed to release scan resources", "path", res.workRoot, "error", err)
		return
	}
	m.logger.Debug("released scan resources", "path", res.workRoot)
}
