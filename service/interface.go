// SPDX-License-Identifier: BSD-3-Clause

package service

import "context"

// Service is a long-running component supervised by the composition root.
// A service may be restarted if Run returns a non-nil error; returning nil
// marks it done and it will not be restarted.
type Service interface {
	// Name returns the unique name of the service.
	Name() string

	// Run starts the service and blocks until ctx is canceled or the
	// service fails. It returns an error if the service needs to be
	// restarted, or nil if it completed and should not be.
	Run(ctx context.Context) error
}
