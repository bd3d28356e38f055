// Package conductor connects to the local application runtime.
//
// Two websocket endpoints are involved: the admin endpoint (capability
// grants, clone creation) and the app endpoint (app info, zome calls).
// Frames are CBOR envelopes correlated by request id. Every request passes
// through a per-endpoint circuit breaker and is recorded in metrics when
// configured.
//
// Zome calls are signed with per-cell credentials generated by
// AdminClient.AuthorizeSigningCredentials and kept in a CredentialStore that
// both clients of a Provider share.
package conductor
