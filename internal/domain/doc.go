// Package domain contains the core business entities of the resource service:
// resource records, the kinds that describe them, caller identities and the
// validation errors raised when client input does not fit a kind's schema.
// It is independent of any storage engine or delivery mechanism.
package domain
