// Package protocol owns IRC wire vocabulary shared by the engine.
//
// Ownership boundary:
// - command verbs and numeric replies the engine consumes or emits
// - line framing lives in protocol/frame
// - transport config, outbound queueing and pacing live in protocol/session
package protocol
