package bootstrap

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Syscall seams. Tests swap these out to observe the privilege transition
// without actually being root or replacing the test process.
var (
	chownFunc     = os.Chown
	lchownFunc    = os.Lchown
	setgroupsFunc = unix.Setgroups
	setgidFunc    = unix.Setgid
	setuidFunc    = unix.Setuid
	execFunc      = unix.Exec
)

// Identity is the target owner for the broker's file trees and for the
// process after the privilege drop. Comes from PUID/PGID; defaults 1000.
type Identity struct {
	UID int
	GID int
}

// DefaultIdentity is used when PUID/PGID are not supplied.
var DefaultIdentity = Identity{UID: 1000, GID: 1000}

// ChownTree recursively reassigns ownership of root to the identity.
// Callers treat failure as non-fatal: a read-only mount, or a fresh volume
// that already carries the right ownership, must not block broker startup.
func (id Identity) ChownTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Lchown so symlinks inside the tree do not redirect the chown
		// to their targets.
		return lchownFunc(path, id.UID, id.GID)
	})
}

// Drop switches the process to the unprivileged identity: supplementary
// groups cleared to the target group, then gid, then uid. The order matters
// — after setuid the process can no longer change its groups. This is a
// one-way transition.
func (id Identity) Drop() error {
	if err := setgroupsFunc([]int{id.GID}); err != nil {
		return fmt.Errorf("clearing supplementary groups: %w", err)
	}
	if err := setgidFunc(id.GID); err != nil {
		return fmt.Errorf("setting gid %d: %w", id.GID, err)
	}
	if err := setuidFunc(id.UID); err != nil {
		return fmt.Errorf("setting uid %d: %w", id.UID, err)
	}
	return nil
}

// Handoff replaces the current process image with the broker entrypoint,
// forwarding args and the given environment. Does not return on success;
// if it returns, the exec failed and the process was not replaced.
func Handoff(entrypoint string, args, env []string) error {
	argv := append([]string{entrypoint}, args...)
	if err := execFunc(entrypoint, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", entrypoint, err)
	}
	// Unreachable: exec either replaces the image or errors.
	return nil
}
