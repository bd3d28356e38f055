// Package signing authorizes the local agent to sign zome calls.
//
// Authorize registers fresh signing credentials for one cell with the
// admin endpoint. It is idempotent: a cell authorized once in this session
// is not granted again, and concurrent calls for the same cell share one
// grant.
//
// AuthorizeAll fans out over a set of cells with bounded concurrency.
// Under PolicyAbort the first failure cancels the remaining grants and is
// returned; under PolicySkip every cell is attempted and failures are listed
// in the Report, each with its cell id.
package signing
