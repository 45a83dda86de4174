// Package middleware implements the request gates: authentication,
// ban enforcement, and role checks. Gates compose in that order; each
// assumes the previous one ran.
package middleware
