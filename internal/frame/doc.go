// Package frame defines the wire format exchanged with the realtime gateway.
//
// Every frame is a JSON object with a mandatory "type" discriminator. The
// package provides:
//   - Kind: the closed set of frame types the client produces and consumes
//   - Envelope: a partially decoded frame (type + raw payload)
//   - concrete structs for each outbound and inbound frame
package frame
