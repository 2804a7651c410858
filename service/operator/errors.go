// SPDX-License-Identifier: BSD-3-Clause

package operator

import "errors"

var (
	// ErrNameEmpty indicates that the operator name cannot be empty.
	ErrNameEmpty = errors.New("operator name cannot be empty")
	// ErrConfigPathEmpty indicates no fleet configuration path was given.
	ErrConfigPathEmpty = errors.New("operator config path cannot be empty")
	// ErrLoadConfig indicates the fleet configuration could not be loaded.
	ErrLoadConfig = errors.New("failed to load fleet configuration")
	// ErrRegisterHost indicates a configured host could not be registered.
	ErrRegisterHost = errors.New("failed to register host")
	// ErrPanicked indicates the operator panicked during execution.
	ErrPanicked = errors.New("operator panicked")
)
