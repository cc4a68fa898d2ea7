// Package irc runs one client session against an IRC server.
//
// Ownership boundary:
// - Conn: the framed, deadline-bounded transport
// - Registrar: the registration and authentication state machine
// - Session: the sequential event loop, the paced send path and shutdown
//
// Everything that reacts to chat traffic sits behind MessageHandler.
package irc
