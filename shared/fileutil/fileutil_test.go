package fileutil_test

import (
	"os"
	"os/user"
	"testing"

	"github.com/graphops/indexer-agent/shared/fileutil"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

func TestPathExpansion(t *testing.T) {
	user, err := user.Current()
	require.NoError(t, err)
	tests := map[string]string{
		"/home/someuser/tmp": "/home/someuser/tmp",
		"~/tmp":              user.HomeDir + "/tmp",
		"$DDDXXX/a/b":        "/tmp/a/b",
		"/a/b/":              "/a/b",
	}
	require.NoError(t, os.Setenv("DDDXXX", "/tmp"))
	for test, expected := range tests {
		expanded, err := fileutil.ExpandPath(test)
		require.NoError(t, err)
		assert.Equal(t, expected, expanded)
	}
}

func TestMkdirAll_AlreadyExists_WrongPermissions(t *testing.T) {
	dirName := t.TempDir() + "somedir"
	err := os.MkdirAll(dirName, os.ModePerm)
	require.NoError(t, err)
	err = fileutil.MkdirAll(dirName)
	assert.ErrorContains(t, "already exists without proper 0700 permissions", err)
}

func TestMkdirAll_AlreadyExists_OK(t *testing.T) {
	dirName := t.TempDir() + "somedir"
	err := os.MkdirAll(dirName, 0700)
	require.NoError(t, err)
	require.NoError(t, fileutil.MkdirAll(dirName))
}

func TestMkdirAll_OK(t *testing.T) {
	dirName := t.TempDir() + "somedir"
	require.NoError(t, fileutil.MkdirAll(dirName))
	exists, err := fileutil.HasDir(dirName)
	require.NoError(t, err)
	assert.Equal(t, true, exists)
}

func TestWriteFile_AlreadyExists_WrongPermissions(t *testing.T) {
	fileName := t.TempDir() + "somefile"
	err := os.WriteFile(fileName, []byte("foo"), os.ModePerm)
	require.NoError(t, err)
	err = fileutil.WriteFile(fileName, []byte("bar"))
	assert.ErrorContains(t, "already exists without proper 0600 permissions", err)
}

func TestWriteFile_OK(t *testing.T) {
	fileName := t.TempDir() + "somefile"
	require.NoError(t, fileutil.WriteFile(fileName, []byte("foo")))
	assert.Equal(t, true, fileutil.FileExists(fileName))
}

func TestHasDir_NoDir(t *testing.T) {
	exists, err := fileutil.HasDir(t.TempDir() + "nosuchdir")
	require.NoError(t, err)
	assert.Equal(t, false, exists)
}
