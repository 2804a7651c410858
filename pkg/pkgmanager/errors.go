// SPDX-License-Identifier: BSD-3-Clause

package pkgmanager

import (
	"errors"
	"fmt"
)

var (
	// ErrPackageNotFound indicates a named package does not exist in the
	// repositories known to the package manager.
	ErrPackageNotFound = errors.New("package not found")
	// ErrRepositoryUnavailable indicates a configured repository could
	// not be reached. Retryable.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	// ErrLockConflict indicates another process holds the package
	// manager's lock file. Retryable.
	ErrLockConflict = errors.New("package manager lock held by another process")
	// ErrPermissionDenied indicates the executing user lacks the
	// privilege to run the package manager command.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrParseError indicates the native tool's output could not be
	// parsed into a structured result.
	ErrParseError = errors.New("failed to parse package manager output")
	// ErrComposeNotFound indicates no compose project file was found in
	// the configured directory.
	ErrComposeNotFound = errors.New("compose project not found")
)

// CommandFailed indicates the native tool exited with a status this
// package manager does not recognize as a specific error above.
type CommandFailed struct {
	Status  int
	Message string
}

func (e *CommandFailed) Error() string {
	return fmt.Sprintf("command failed with status %d: %s", e.Status, e.Message)
}

// IsRetryable reports whether err reflects a transient condition, per
// spec §7: repository unavailable and lock conflict are retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRepositoryUnavailable) || errors.Is(err, ErrLockConflict)
}
