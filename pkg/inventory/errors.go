// SPDX-License-Identifier: BSD-3-Clause

package inventory

import "errors"

var (
	// ErrOsqueryNotFound indicates the osqueryi binary is not present on
	// the target host.
	ErrOsqueryNotFound = errors.New("osqueryi not found")
	// ErrQueryFailed indicates osqueryi ran but reported a failure for a
	// specific query.
	ErrQueryFailed = errors.New("osquery query failed")
	// ErrSQLSyntax indicates osqueryi rejected a query's SQL syntax.
	ErrSQLSyntax = errors.New("osquery SQL syntax error")
	// ErrParseError indicates osqueryi's JSON output could not be parsed.
	ErrParseError = errors.New("failed to parse osquery output")
	// ErrTableNotAvailable indicates a query referenced a table the
	// installed osquery version does not provide.
	ErrTableNotAvailable = errors.New("osquery table not available")
	// ErrTimeout indicates a query did not complete in time. Retryable.
	ErrTimeout = errors.New("osquery query timed out")
	// ErrCacheError indicates the TTL cache itself failed, which should
	// never happen for the in-memory implementation but is named per the
	// taxonomy in spec §7.
	ErrCacheError = errors.New("inventory cache error")
)
