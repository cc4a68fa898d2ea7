package frame

import "strings"

// Prefix is the originator of a message: nick!user@host for clients, a bare
// server name otherwise (carried in Nick).
type Prefix struct {
	Nick string
	User string
	Host string
}

// ParsePrefix splits a message source. It never fails; missing parts stay
// empty.
func ParsePrefix(source string) Prefix {
	source = strings.TrimPrefix(source, ":")
	if source == "" {
		return Prefix{}
	}
	var p Prefix
	rest := source
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		p.Host = rest[at+1:]
		rest = rest[:at]
	}
	if bang := strings.IndexByte(rest, '!'); bang >= 0 {
		p.User = rest[bang+1:]
		rest = rest[:bang]
	}
	p.Nick = rest
	return p
}

func (p Prefix) IsZero() bool {
	return p.Nick == "" && p.User == "" && p.Host == ""
}

// IsUser reports whether the prefix carries a full nick!user@host identity.
func (p Prefix) IsUser() bool {
	return p.Nick != "" && p.User != "" && p.Host != ""
}

func (p Prefix) String() string {
	if !p.IsUser() {
		var b strings.Builder
		b.WriteString(p.Nick)
		if p.User != "" {
			b.WriteByte('!')
			b.WriteString(p.User)
		}
		if p.Host != "" {
			b.WriteByte('@')
			b.WriteString(p.Host)
		}
		return b.String()
	}
	return p.Nick + "!" + p.User + "@" + p.Host
}
