// Package auth implements the credential and token primitives for Quill:
// argon2id password hashing with self-describing digests, HMAC-signed
// session tokens, and the closed role enum used for authorization checks.
//
// Tokens are stateless: validity is purely a function of the HMAC signature
// and the embedded expiry. Nothing in this package touches the database.
package auth
