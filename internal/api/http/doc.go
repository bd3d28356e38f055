// Package http exposes the applet session over a small JSON control API.
//
// Provisioning errors map onto status codes so a test script can tell the
// outcomes apart: 202 when a join succeeded but the neighbourhood's
// configuration is not visible yet (retry later), 409 for transitions the
// current state does not allow, 502 when a pipeline stage failed against
// the conductor.
package http
