package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/sanitize"
)

const (
	MaxDice  = 20
	MaxSides = 1000
)

var (
	ErrDiceFormat = errors.New("handlers: invalid dice format")
	ErrDiceLimit  = errors.New("handlers: too many dice or sides")
)

type Dice struct {
	Rand Rand
}

func (d Dice) Handle(_ context.Context, req *dispatch.Request) []string {
	spec := "1d6"
	if fields := req.Fields(); len(fields) > 0 {
		spec = fields[0]
	}
	n, sides, err := ParseDice(spec)
	switch {
	case errors.Is(err, ErrDiceLimit):
		return []string{failure(fmt.Sprintf("Maximum %d dice with %d sides each", MaxDice, MaxSides))}
	case err != nil:
		return []string{failure("Invalid dice format (use like 2d6 or 1d20)")}
	}

	rolls := make([]string, n)
	total := 0
	for i := range rolls {
		r := d.Rand.IntN(sides) + 1
		total += r
		rolls[i] = strconv.Itoa(r)
	}
	label := sanitize.Bolden(sanitize.Colorize(fmt.Sprintf("%dd%d", n, sides), sanitize.Cyan))
	sum := sanitize.Bolden(sanitize.Colorize(strconv.Itoa(total), sanitize.Yellow))
	if n == 1 {
		return []string{fmt.Sprintf("%s -> %s", label, sum)}
	}
	list := sanitize.Colorize("["+strings.Join(rolls, ", ")+"]", sanitize.LightGrey)
	return []string{fmt.Sprintf("%s -> %s = %s", label, list, sum)}
}

// ParseDice reads "NdM", "dM" or a bare "M" (one die).
func ParseDice(spec string) (n int, sides int, err error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	count, faces, found := strings.Cut(spec, "d")
	if !found {
		count, faces = "1", spec
	}
	if count == "" {
		count = "1"
	}
	n, err = strconv.Atoi(count)
	if err != nil || n < 1 {
		return 0, 0, ErrDiceFormat
	}
	sides, err = strconv.Atoi(faces)
	if err != nil || sides < 1 {
		return 0, 0, ErrDiceFormat
	}
	if n > MaxDice || sides > MaxSides {
		return 0, 0, ErrDiceLimit
	}
	return n, sides, nil
}
