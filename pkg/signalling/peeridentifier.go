package signalling

import "github.com/google/uuid"

// Identifies the peer behind a session offer.
//
// Uuid must be stable across reconnects of the same peer, so their audio
// keeps landing in the same recording. Name is what recordings are named after.
type PeerIdentifier struct {
	Uuid uuid.UUID
	Name string
}
