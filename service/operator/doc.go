// SPDX-License-Identifier: BSD-3-Clause

// Package operator is tendhostd's control-plane actor: the single
// service.Service that owns the supervisor registry for the process
// lifetime. It loads the fleet configuration, constructs the host
// dependency factory and the event broadcaster, registers every
// configured host, and then blocks until its context is canceled.
//
// operator is meant to run as the sole child of the process's
// supervision tree (see cmd/tendhostd), wrapped by pkg/process so a
// panic during registration or shutdown is recovered and reported
// rather than taking the whole daemon down.
package operator
