// Package protocol owns the wire contract shared by both peers.
//
// Ownership boundary:
// - frame: magic + length-prefixed framing of opaque bodies
// - envelope: outbound/inbound tagged unions and payload codecs
// - error taxonomy shared by the framing and payload layers
package protocol
