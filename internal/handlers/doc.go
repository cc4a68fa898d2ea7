// Package handlers holds the chat commands served by the bot. Each one is a
// dispatch.Handler; Register wires the whole set into a registry.
package handlers
