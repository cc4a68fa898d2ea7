// Package session owns the transport side of one IRC session.
//
// Ownership boundary:
// - transport config, TLS validation and dialing
// - per-destination outbound queueing
// - the single paced writer that drains the queues onto the wire
//
// Registration and dispatch live above this package in internal/irc and
// internal/dispatch.
package session
