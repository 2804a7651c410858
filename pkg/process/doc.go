// SPDX-License-Identifier: BSD-3-Clause

// Package process adapts service.Service implementations into
// oversight.ChildProcess functions so they can be supervised by
// cirello.io/oversight's restart tree. A panic inside Run is converted to
// an error carrying the service's name, rather than crashing the process.
//
//	tree.Add(process.New(operator.New(opts...)), oversight.Permanent())
package process
