// Package types provides shared data structures for the forum applet.
//
// This package defines the runtime-facing types used across the bootstrap
// components, so the conductor client, the cell directory and the
// provisioning state machine agree on one shape.
//
// Core Types:
//   - Manifest: installed application info with cells grouped by role
//   - CellDescriptor: sealed variant (ProvisionedCell, ClonedCell, StemCell, UnknownCell)
//   - CellID: (DNA hash, agent key) pair addressing one cell
//   - CreateCloneCellRequest, DnaModifiers: clone creation parameters
//   - SensemakerProperties: neighbourhood properties baked into a clone
//   - AppletConfigInput: applet configuration document
//
// Example Usage:
//
//	cells := manifest.CellInfo["sensemaker"]
//	switch c := cells[1].(type) {
//	case types.ClonedCell:
//	    fmt.Println(c.CloneID, c.CellID)
//	}
package types
