// Package api defines the request and response shapes exchanged between the
// papershelf client and the sync server. Both the HTTP and the gRPC transports
// carry these types as JSON.
package api
