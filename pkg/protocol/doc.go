// Package protocol defines the JSON wire format spoken between the client and
// its websocket transport node.
//
// # Requests
//
// Every request is one JSON object in one text frame, tagged with an action and
// a transaction id (txn) that the node echoes back in its response:
//
//	{"action":"register","txn":"9f86d081884c7d65","account":"alice",...}
//
// Actions:
//   - register: announce the account and its public key, returns a session token
//   - dhtput / dhtget: store and retrieve DHT values
//   - peermsg: relay an opaque payload to the peer owning a public key hash
//   - ping: session liveness, answered with {"pong":1}
//
// # Inbound frames
//
// Inbound frames are decoded once, at the boundary, into an Inbound value that
// holds exactly one of:
//   - Response: the frame has a txn; it may carry error, msg and payload
//   - PeerEvent: the frame has no txn; it is an unsolicited message from a peer
//     and is passed upward untouched
//
// Anything that is not a JSON object, or whose txn is not a string, is rejected
// with a ProtocolError.
package protocol
