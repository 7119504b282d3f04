package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropSequence(t *testing.T) {
	var calls []string
	restoreGroups, restoreGid, restoreUid := setgroupsFunc, setgidFunc, setuidFunc
	setgroupsFunc = func(gids []int) error {
		assert.Equal(t, []int{950}, gids)
		calls = append(calls, "setgroups")
		return nil
	}
	setgidFunc = func(gid int) error {
		assert.Equal(t, 950, gid)
		calls = append(calls, "setgid")
		return nil
	}
	setuidFunc = func(uid int) error {
		assert.Equal(t, 940, uid)
		calls = append(calls, "setuid")
		return nil
	}
	defer func() {
		setgroupsFunc, setgidFunc, setuidFunc = restoreGroups, restoreGid, restoreUid
	}()

	require.NoError(t, Identity{UID: 940, GID: 950}.Drop())

	// Groups and gid must change before uid: after setuid the process can
	// no longer adjust them.
	assert.Equal(t, []string{"setgroups", "setgid", "setuid"}, calls)
}

func TestDropSetgidFailureStopsSequence(t *testing.T) {
	restoreGroups, restoreGid, restoreUid := setgroupsFunc, setgidFunc, setuidFunc
	setgroupsFunc = func([]int) error { return nil }
	setgidFunc = func(int) error { return errors.New("EPERM") }
	setuidCalled := false
	setuidFunc = func(int) error {
		setuidCalled = true
		return nil
	}
	defer func() {
		setgroupsFunc, setgidFunc, setuidFunc = restoreGroups, restoreGid, restoreUid
	}()

	err := DefaultIdentity.Drop()
	require.Error(t, err)
	assert.False(t, setuidCalled, "must not setuid after a failed setgid")
}

func TestHandoff(t *testing.T) {
	var gotPath string
	var gotArgv, gotEnv []string
	restore := execFunc
	execFunc = func(path string, argv, env []string) error {
		gotPath, gotArgv, gotEnv = path, argv, env
		return nil
	}
	defer func() { execFunc = restore }()

	env := []string{"HOME=/opt/emqx", "PATH=/usr/bin"}
	require.NoError(t, Handoff("/usr/bin/docker-entrypoint.sh", []string{"emqx", "foreground"}, env))

	assert.Equal(t, "/usr/bin/docker-entrypoint.sh", gotPath)
	assert.Equal(t, []string{"/usr/bin/docker-entrypoint.sh", "emqx", "foreground"}, gotArgv,
		"argv[0] is the entrypoint, original invocation args are forwarded")
	assert.Equal(t, env, gotEnv)
}

func TestHandoffFailure(t *testing.T) {
	restore := execFunc
	execFunc = func(string, []string, []string) error { return errors.New("ENOENT") }
	defer func() { execFunc = restore }()

	err := Handoff("/nonexistent", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent")
}

func TestChownTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "etc"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "etc", "emqx.conf"), []byte("x"), 0644))

	var paths []string
	restore := lchownFunc
	lchownFunc = func(path string, uid, gid int) error {
		assert.Equal(t, 1000, uid)
		assert.Equal(t, 1000, gid)
		paths = append(paths, path)
		return nil
	}
	defer func() { lchownFunc = restore }()

	require.NoError(t, DefaultIdentity.ChownTree(dir))

	assert.Contains(t, paths, dir)
	assert.Contains(t, paths, filepath.Join(dir, "etc"))
	assert.Contains(t, paths, filepath.Join(dir, "etc", "emqx.conf"))
}
