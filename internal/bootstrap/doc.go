// Package bootstrap brings a freshly installed forum app to an operational
// state.
//
// Start connects both conductor endpoints, fetches the app manifest,
// resolves every cell, authorizes signing for all of them and only then
// builds the neighbourhood state machine from the sensemaker role. The
// resulting Session owns the connections until Close.
//
// Roles in a status report count the cells seen at startup; the manifest
// is not refreshed.
package bootstrap
