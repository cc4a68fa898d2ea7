package protocol

import "testing"

func TestFoldNick(t *testing.T) {
	tests := map[string]string{
		"Alice": "alice",
		"ALICE": "alice",
		"[Bot]": "{bot}",
		"a\\b~": "a|b^",
		"le0_":  "le0_",
	}
	for in, want := range tests {
		if got := FoldNick(in); got != want {
			t.Fatalf("FoldNick(%q) got=%q want=%q", in, got, want)
		}
	}
}

func TestIsChannel(t *testing.T) {
	for _, target := range []string{"#chan", "&local", "+modeless", "!safe"} {
		if !IsChannel(target) {
			t.Fatalf("expected %q to be a channel", target)
		}
	}
	for _, target := range []string{"", "alice", "NickServ"} {
		if IsChannel(target) {
			t.Fatalf("expected %q to be a nick", target)
		}
	}
}
