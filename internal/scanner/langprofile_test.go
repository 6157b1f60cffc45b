package scanner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/internal/scanner"
	"github.com/nmorgan8/scanforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLanguageProfiler(t *testing.T) {
	profiler := scanner.NewLanguageProfiler(testutil.DiscardLogger())
	ctx := context.Background()

	t.Run("profiles by byte share", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
		writeFile(t, root, "lib/util.go", "package lib\n")
		writeFile(t, root, "deploy.sh", "#!/bin/sh\n")
		writeFile(t, root, "README.md", "ignored extension\n")

		result, err := profiler.Execute(ctx, uuid.New(), scanner.Target{
			Type:      models.TargetTypeRepository,
			ClonePath: root,
		})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.NotEmpty(t, result.Raw)

		byName := map[string]scanner.StructuredFinding{}
		for _, f := range result.Findings {
			byName[f.Name] = f
		}
		require.Contains(t, byName, "Go")
		require.Contains(t, byName, "Shell")
		assert.NotContains(t, byName, "Markdown")

		goDetail, ok := byName["Go"].Detail.(models.LanguageDetail)
		require.True(t, ok)
		shellDetail := byName["Shell"].Detail.(models.LanguageDetail)
		assert.Greater(t, goDetail.Percent, shellDetail.Percent)
		assert.InDelta(t, 100.0, goDetail.Percent+shellDetail.Percent, 0.01)
		assert.Equal(t, models.SeverityInfo, byName["Go"].Severity)
	})

	t.Run("skips dependency and VCS directories", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "app.py", "print('hi')\n")
		writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}\n")
		writeFile(t, root, ".git/hooks/sample.sh", "#!/bin/sh\n")

		result, err := profiler.Execute(ctx, uuid.New(), scanner.Target{
			Type:      models.TargetTypeRepository,
			ClonePath: root,
		})
		require.NoError(t, err)
		require.Len(t, result.Findings, 1)
		assert.Equal(t, "Python", result.Findings[0].Name)
	})

	t.Run("empty checkout yields zero findings", func(t *testing.T) {
		result, err := profiler.Execute(ctx, uuid.New(), scanner.Target{
			Type:      models.TargetTypeRepository,
			ClonePath: t.TempDir(),
		})
		require.NoError(t, err)
		assert.Empty(t, result.Findings)
	})
}
