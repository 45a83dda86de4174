// Package mail defines the outbound-mail contract the account flows
// call into. Delivery mechanics live behind the Mailer interface; the
// default implementation only logs, which is enough for development
// and for deployments that verify accounts out of band.
package mail
