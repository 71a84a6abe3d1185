// Package common contains constants and sentinel errors shared by the client
// and the reference server.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the access
// token on outbound requests.
const AccessTokenHeaderName = "access_token"

// ClientIDHeaderName carries the per-install client id on mutating calls so
// the server can attribute changes and exclude them from the caller's feed.
const ClientIDHeaderName = "x-client-id"
