// Package auth decides which identities may run privileged commands.
//
// Privilege is a static set of nick!user@host glob patterns loaded once from
// configuration; it never changes while the process runs.
package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/danmuck/le0/internal/protocol/frame"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrInvalidMask  = errors.New("auth: invalid hostmask")
)

// Authorizer reports whether an identity is privileged.
type Authorizer interface {
	IsAdmin(id frame.Prefix) bool
}

// FuncAuthorizer adapts a function into an Authorizer.
type FuncAuthorizer func(id frame.Prefix) bool

func (f FuncAuthorizer) IsAdmin(id frame.Prefix) bool {
	return f(id)
}

// Hostmask is one compiled admin pattern.
type Hostmask struct {
	raw string
	re  *regexp.Regexp
}

// CompileHostmask compiles a nick!user@host pattern where '*' matches any run
// of characters and '?' exactly one. Matching is case-sensitive.
func CompileHostmask(mask string) (Hostmask, error) {
	mask = strings.TrimSpace(mask)
	bang := strings.IndexByte(mask, '!')
	at := strings.LastIndexByte(mask, '@')
	if bang <= 0 || at < bang+2 || at == len(mask)-1 {
		return Hostmask{}, fmt.Errorf("%w: %q (want nick!user@host)", ErrInvalidMask, mask)
	}
	if strings.ContainsAny(mask, " \r\n\x00") {
		return Hostmask{}, fmt.Errorf("%w: %q contains whitespace or control bytes", ErrInvalidMask, mask)
	}
	re, err := regexp.Compile(globToRegexp(mask))
	if err != nil {
		return Hostmask{}, fmt.Errorf("%w: %q: %v", ErrInvalidMask, mask, err)
	}
	return Hostmask{raw: mask, re: re}, nil
}

func (h Hostmask) String() string {
	return h.raw
}

// Match tests a full nick!user@host string.
func (h Hostmask) Match(full string) bool {
	if h.re == nil {
		return false
	}
	return h.re.MatchString(full)
}

func globToRegexp(glob string) string {
	var b strings.Builder
	b.WriteString(`(?s)\A`)
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\z`)
	return b.String()
}

// HostmaskSet is read-only after construction and safe for concurrent use.
type HostmaskSet struct {
	masks []Hostmask
}

var _ Authorizer = (*HostmaskSet)(nil)

func NewHostmaskSet(patterns []string) (*HostmaskSet, error) {
	set := &HostmaskSet{masks: make([]Hostmask, 0, len(patterns))}
	for i, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		mask, err := CompileHostmask(p)
		if err != nil {
			return nil, fmt.Errorf("admins[%d]: %w", i, err)
		}
		set.masks = append(set.masks, mask)
	}
	return set, nil
}

// IsAdmin is true iff id is a full client identity matching at least one
// pattern. Server prefixes and missing prefixes are never privileged.
func (s *HostmaskSet) IsAdmin(id frame.Prefix) bool {
	if s == nil || !id.IsUser() {
		return false
	}
	full := id.String()
	for _, m := range s.masks {
		if m.Match(full) {
			return true
		}
	}
	return false
}

// Authorize is IsAdmin as an error for call sites that propagate failures.
func (s *HostmaskSet) Authorize(id frame.Prefix) error {
	if !s.IsAdmin(id) {
		return ErrUnauthorized
	}
	return nil
}

func (s *HostmaskSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.masks)
}

func (s *HostmaskSet) Patterns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.masks))
	for _, m := range s.masks {
		out = append(out, m.raw)
	}
	return out
}
