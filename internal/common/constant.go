// Package common contains shared constants and error kinds used across
// TripKeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound and outbound requests.
const AccessTokenHeaderName = "access_token"

// RequestIDHeaderName is the optional metadata key a caller may use to
// correlate its request with server logs.
const RequestIDHeaderName = "x-request-id"
