// Package identity issues the stable identifiers used for nodes, edges,
// version records, and composite groups.
package identity

import "github.com/google/uuid"

// Issuer produces collision-free identifiers. The zero value is ready to
// use and safe for concurrent use; the separate methods exist for call-site
// clarity and all draw from the same 128-bit random space.
type Issuer struct{}

// NewID returns a fresh entity identifier.
func (Issuer) NewID() string { return uuid.New().String() }

// NewVersionID returns a fresh version-record identifier.
func (Issuer) NewVersionID() string { return uuid.New().String() }

// NewCompositeID returns a fresh composite-group identifier.
func (Issuer) NewCompositeID() string { return uuid.New().String() }
