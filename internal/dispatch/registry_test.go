package dispatch

import (
	"context"
	"testing"

	"github.com/danmuck/le0/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func nopHandler() Handler {
	return HandlerFunc(func(context.Context, *Request) []string { return nil })
}

func TestRegistryAliasesShareEntry(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	require.NoError(t, r.Register(Command{Name: "Coin", Aliases: []string{"FLIP", " "}, Handler: nopHandler()}))

	byName, ok := r.Lookup("coin")
	require.True(t, ok)
	byAlias, ok := r.Lookup("Flip")
	require.True(t, ok)
	require.Equal(t, byName.Name, byAlias.Name)
	require.Equal(t, []string{"flip"}, byName.Aliases)

	_, ok = r.Lookup("toss")
	require.False(t, ok)
}

func TestRegistryRejectsBadEntries(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	require.ErrorIs(t, r.Register(Command{Name: "", Handler: nopHandler()}), ErrInvalidCommand)
	require.ErrorIs(t, r.Register(Command{Name: "two words", Handler: nopHandler()}), ErrInvalidCommand)
	require.ErrorIs(t, r.Register(Command{Name: "nohandler"}), ErrInvalidCommand)

	require.NoError(t, r.Register(Command{Name: "roll", Aliases: []string{"dice"}, Handler: nopHandler()}))
	require.ErrorIs(t, r.Register(Command{Name: "dice", Handler: nopHandler()}), ErrDuplicateCommand)
	require.ErrorIs(t, r.Register(Command{Name: "other", Aliases: []string{"roll"}, Handler: nopHandler()}), ErrDuplicateCommand)
	_, ok := r.Lookup("other")
	require.False(t, ok, "a rejected entry leaves nothing behind")
}

func TestRegistryCommandsSorted(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	r.MustRegister(
		Command{Name: "time", Handler: nopHandler()},
		Command{Name: "8ball", Handler: nopHandler()},
		Command{Name: "coin", Handler: nopHandler()},
	)
	var names []string
	for _, cmd := range r.Commands() {
		names = append(names, cmd.Name)
	}
	require.Equal(t, []string{"8ball", "coin", "time"}, names)
}
