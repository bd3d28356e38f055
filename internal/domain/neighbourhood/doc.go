// Package neighbourhood decides whether this neighbourhood's shared
// sensemaker clone exists and provisions it at most once per session.
//
// The initial state is computed from the sensemaker role's cells: with
// fewer than two cells no clone exists yet and the machine starts
// Unprovisioned; otherwise it attaches to the clone at index 1 and starts
// Provisioned.
//
// Create and Join drive the same strict pipeline:
//
//  1. create_clone:    clone the sensemaker template cell
//  2. authorize:       grant signing credentials for the new clone
//  3. attach:          open a store on the clone's label
//  4. register_config: register the applet config document
//
// A Create failure at any stage returns the machine to Unprovisioned. A
// Join waits one grace interval before registering; if the document is
// still not visible the machine stays Provisioning with the handle pending
// and RetryConfiguration finishes the transition later.
//
// States only move forward within one pipeline run, and Provisioned is
// terminal for the session.
package neighbourhood
