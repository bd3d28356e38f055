// Package cells resolves the cells of an installed app.
//
// A manifest groups cell descriptors by role. Only provisioned and cloned
// descriptors carry a cell id; any other shape is a contract violation by
// the runtime and fails with ErrUnrecognizedCellShape.
//
// Role lookups are exact-match. The caller decides whether a missing role
// is fatal: the primary app role is required, the sensemaker role may be
// present with only its template cell (or absent) before a neighbourhood
// exists.
//
// Example Usage:
//
//	dir, err := cells.NewDirectory(manifest)
//	ids, err := dir.Identifiers()
//	agent, err := dir.AgentKey("forum")
//	sensemaker, err := dir.Sensemaker("sensemaker")
package cells
