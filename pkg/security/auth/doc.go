// Package auth implements the API-key authentication check.
//
// A Guard extracts a key from the configured sources (the Authorization
// bearer token and the x-api-key header by default), validates it against
// the configured keys and stores the caller's Identity in the request
// context. Pass-through handlers fold the identity into call metadata.
package auth
