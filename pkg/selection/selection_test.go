package selection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile creates dir/name with body, creating parent dirs as needed.
func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestScenarioAPatternResolution(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "b.tmp"), "b")
	writeFile(t, filepath.Join(src, "cache", "x"), "x")
	writeFile(t, filepath.Join(src, "cache", "y.txt"), "y")

	fsel := New()
	fsel.AddPath(src, Include)
	fsel.AddPattern("*.tmp", Exclude)
	fsel.AddPattern("cache/*", Exclude)

	effective := fsel.GetEffectivePaths()
	assert.ElementsMatch(t, []string{filepath.Join(src, "a.txt")}, effective.Included)
	assert.Contains(t, effective.Excluded, filepath.Join(src, "cache", "x"))
	assert.Contains(t, effective.Excluded, filepath.Join(src, "cache", "y.txt"))
	assert.Contains(t, effective.Excluded, filepath.Join(src, "b.tmp"))

	estimate := fsel.EstimateBackupSize()
	assert.Equal(t, 1, estimate.FileCount)
}

func TestScenarioBEngineArgv(t *testing.T) {
	fsel := New()
	fsel.AddPath("/home/u/docs", Include)
	fsel.AddPath("/home/u/docs/tmp", Exclude)
	fsel.AddPattern("*.log", Exclude)

	args := fsel.ToEngineArgs()
	assert.Equal(t, []string{
		"/home/u/docs",
		"--exclude", "*.log",
		"--exclude", "/home/u/docs/tmp",
	}, args)
}

func TestShouldIncludeFileExplicitExcludeWins(t *testing.T) {
	fsel := New()
	fsel.AddPath("/data", Include)
	fsel.AddPath("/data/secret.txt", Exclude)

	assert.False(t, fsel.ShouldIncludeFile("/data/secret.txt"))
	assert.True(t, fsel.ShouldIncludeFile("/data/report.txt"))
}

func TestShouldIncludeFileExcludePathPrefix(t *testing.T) {
	fsel := New()
	fsel.AddPath("/data", Include)
	fsel.AddPath("/data/private", Exclude)

	assert.False(t, fsel.ShouldIncludeFile("/data/private/file.txt"))
}

func TestShouldIncludeFileNoIncludesMatchesNothing(t *testing.T) {
	fsel := New()
	assert.False(t, fsel.ShouldIncludeFile("/anything"))
}

func TestPatternGroupAddAndRemoveIsolated(t *testing.T) {
	fsel := New()
	fsel.AddPath("/x", Include)
	fsel.AddPatternGroup(CommonGroups["temporary_files"], Exclude)
	fsel.AddPattern("*.bak", Exclude) // also present in the group, staged independently

	assert.False(t, fsel.ShouldIncludeFile("/x/a.swp"))
	assert.False(t, fsel.ShouldIncludeFile("/x/a.bak"))

	fsel.RemovePatternGroup("temporary_files")

	// *.bak survives removal because it was staged independently too;
	// *.swp only came from the group and is gone.
	assert.False(t, fsel.ShouldIncludeFile("/x/a.bak"))
	assert.True(t, fsel.ShouldIncludeFile("/x/a.swp"))
}

func TestValidateRequiresDirectoryShapedInclude(t *testing.T) {
	fsel := New()
	err := fsel.Validate()
	require.Error(t, err)

	fsel.AddPath("/data/", Include)
	require.NoError(t, fsel.Validate())
}

func TestValidateAcceptsExtensionlessPath(t *testing.T) {
	fsel := New()
	fsel.AddPath("/data/projectdir", Include)
	require.NoError(t, fsel.Validate())
}

func TestGetBackupPathsAndExcludeArgsSorted(t *testing.T) {
	fsel := New()
	fsel.AddPath("/b", Include)
	fsel.AddPath("/a", Include)
	fsel.AddPattern("*.log", Exclude)
	fsel.AddPattern("*.bak", Exclude)

	assert.Equal(t, []string{"/a", "/b"}, fsel.GetBackupPaths())
	assert.Equal(t, []string{"--exclude", "*.bak", "--exclude", "*.log"}, fsel.GetExcludeArgs())
}
