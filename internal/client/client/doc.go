// Package client contains the remote transports of the papershelf client.
//
// Two implementations of the transport-agnostic Client interface are
// provided: HTTPClient speaks the JSON API under /api, GRPCClient talks to
// the same service over gRPC using google.protobuf.Struct payloads. Both
// attach the access token returned by a TokenSource and the caller's client
// id to every call.
//
// # Error Handling
//
// Failures are reported as sentinel errors that callers match with
// errors.Is: ErrUnavailable and ErrTimeout for transport problems,
// ErrUnauthorized, ErrNotFound and ErrConflict for the matching server
// answers. Any other non-success answer is a *ServerError.
package client
