// Package dispatch turns chat messages into command invocations.
//
// A PRIVMSG that starts with the configured prefix is split into a command
// word and arguments, resolved through the Registry, gated by the admin
// authorizer and the rate limiter, and handed to a Handler. Reply lines are
// sanitized, capped and queued for the destination the command came from.
package dispatch
