package protocol

import "strings"

// FoldNick case-folds a nickname with rfc1459 casemapping, where []\~ are the
// uppercase forms of {}|^.
func FoldNick(nick string) string {
	return rfc1459Folder.Replace(strings.ToLower(nick))
}

var rfc1459Folder = strings.NewReplacer("[", "{", "]", "}", "\\", "|", "~", "^")
