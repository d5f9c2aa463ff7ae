// Package privdrop scopes the window where captures run with elevated
// privileges.
package privdrop

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Drop lowers the effective uid to the invoking user's real uid, so files
// created while dropped are owned by that user instead of root. The returned
// restore func raises the effective uid back to its prior value through the
// saved set-user-id that seteuid leaves behind. When real and effective uid
// already match (unprivileged run, or sudo where both are root) Drop and its
// restore are no-ops.
func Drop() (func() error, error) {
	ruid := unix.Getuid()
	euid := unix.Geteuid()
	if ruid == euid {
		return func() error { return nil }, nil
	}

	// x/sys/unix has no Seteuid on Linux; setresuid(-1, euid, -1) is the
	// exact equivalent (changes the effective uid only, saved uid intact).
	if err := unix.Setresuid(-1, ruid, -1); err != nil {
		return nil, fmt.Errorf("seteuid %d: %w", ruid, err)
	}
	restore := func() error {
		if err := unix.Setresuid(-1, euid, -1); err != nil {
			return fmt.Errorf("seteuid %d: %w", euid, err)
		}
		return nil
	}
	return restore, nil
}
