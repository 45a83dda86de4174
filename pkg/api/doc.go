// Package api wires the HTTP surface: the router, the request gates,
// and the account, forum, and session handlers. Handlers stay thin;
// persistence lives in pkg/storage and flow logic in pkg/auth,
// pkg/oauth, and pkg/presence.
package api
