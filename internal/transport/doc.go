// Package transport resolves connection options into an immutable Profile.
//
// A Profile fixes the endpoint list, the security mode, trust and identity
// material and the credential pair. TLS material is read once, at Resolve;
// a changed keystore or truststore requires resolving a new profile.
package transport
