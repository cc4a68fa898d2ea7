// Package frame encodes and decodes CRLF-terminated IRC lines.
//
// Decoding is bounded: a peer can never make the reader buffer more than one
// maximum-length line, and oversized or malformed lines are reported per line
// without poisoning the stream. Encoding is the last line of defense against
// protocol injection and rejects parameters carrying CR, LF or NUL regardless
// of what the caller sanitized.
package frame
