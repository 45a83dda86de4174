// Package oauth implements federated login. Each configured provider
// shares one capability surface (authorization URL, code exchange,
// profile fetch) over golang.org/x/oauth2; the broker owns the flow
// cookies and hands the fetched profile to the reconciler, which binds
// it to a local account.
package oauth
