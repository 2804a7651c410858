// SPDX-License-Identifier: BSD-3-Clause

package supervisor

import "errors"

var (
	// ErrHostAlreadyExists is returned by Register when the host name is
	// already in the registry.
	ErrHostAlreadyExists = errors.New("host already exists")
	// ErrHostNotFound is returned by any forwarded operation naming a
	// host absent from the registry, or one whose machine has stopped.
	ErrHostNotFound = errors.New("host not found")
	// ErrSupervisorStopped is returned by every operation once Stop has
	// completed.
	ErrSupervisorStopped = errors.New("supervisor stopped")
)
