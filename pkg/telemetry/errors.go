// SPDX-License-Identifier: BSD-3-Clause

package telemetry

import "errors"

var (
	// ErrInvalidConfiguration indicates the telemetry configuration is invalid.
	ErrInvalidConfiguration = errors.New("invalid telemetry configuration")
)
