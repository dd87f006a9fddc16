// Package core is the orchestration layer.  It composes transports,
// platform bindings and sessions into the two operational modes of
// deskshare and provides a builder that selects one from a Config.
//
// Architecture layers (bottom → top):
//
//	wire / frame / input  →  pipeline  →  session  →  core  →  cmd (CLI)
//
// HostMode accepts viewers and serves one session at a time; ViewMode
// dials a host and joins it, reconnecting with backoff if asked to.
package core

import "context"

// Mode represents a complete operational mode of deskshare (host or
// viewer).  Each mode owns its full lifecycle from connection
// establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
