package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawimage/pkg/app"
)

func TestImageAndAuditCommands(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "disk.img")
	logFile := filepath.Join(dir, "rawhdd.log")

	rootCmd.SetArgs([]string{"image", "--emulate", "--yes", "--quiet", "--progress", "none", "--log", logFile, "-H", "2", dest})
	require.NoError(t, rootCmd.Execute())

	info, err := os.Stat(dest)
	require.NoError(t, err)
	// default emulated geometry 20 cylinders, 17 sectors, heads overridden to 2
	assert.Equal(t, int64(20*2*17*512), info.Size())

	rootCmd.SetArgs([]string{"audit", "--quiet", "-o", "json", logFile})
	require.NoError(t, rootCmd.Execute())
}

func TestImageRejectsUnusableGeometry(t *testing.T) {
	for _, sectors := range []string{"0", "256", "4294967295"} {
		t.Run("sectors "+sectors, func(t *testing.T) {
			dir := t.TempDir()
			dest := filepath.Join(dir, "disk.img")
			logFile := filepath.Join(dir, "rawhdd.log")

			rootCmd.SetArgs([]string{"image", "--emulate", "--yes", "--quiet", "--log", logFile, "--sectors", sectors, dest})
			err := rootCmd.Execute()
			require.Error(t, err)
			assert.Equal(t, app.ErrCodeGeometry, app.Code(err))
			assert.Equal(t, 1, app.ExitCode(err))
			assert.NoFileExists(t, dest)
			assert.NoFileExists(t, logFile)
		})
	}
}

func TestImageRequiresDestination(t *testing.T) {
	rootCmd.SetArgs([]string{"image"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, 1, app.ExitCode(err))
}
