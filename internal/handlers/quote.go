package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/sanitize"
	"github.com/danmuck/le0/internal/store"
	"github.com/rs/zerolog/log"
)

const quotePrefix = "quote/"

// Quotes keeps numbered quotes in the store under quote/NNNNNN.
type Quotes struct {
	mu    sync.Mutex
	store store.Store
	rand  Rand
}

func NewQuotes(s store.Store, r Rand) *Quotes {
	return &Quotes{store: s, rand: r}
}

func (q *Quotes) Add(_ context.Context, req *dispatch.Request) []string {
	text := strings.TrimSpace(sanitize.StripFormatting(req.Args))
	if text == "" {
		return []string{fmt.Sprintf("%s: Usage: addquote <text>", req.Sender.Nick)}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	keys, err := q.store.List(quotePrefix)
	if err != nil {
		return []string{failure("could not save quote")}
	}
	id := 1
	if len(keys) > 0 {
		if last, ok := quoteID(keys[len(keys)-1]); ok {
			id = last + 1
		}
	}
	if err := q.store.Put(quoteKey(id), text+" -- "+req.Sender.Nick); err != nil {
		log.Warn().Err(err).Msg("handlers.Quotes.Add store failed")
		return []string{failure("could not save quote")}
	}
	return []string{fmt.Sprintf("Added quote %s", sanitize.Bolden("#"+strconv.Itoa(id)))}
}

func (q *Quotes) Quote(_ context.Context, req *dispatch.Request) []string {
	keys, err := q.store.List(quotePrefix)
	if err != nil || len(keys) == 0 {
		return []string{failure("No quotes yet")}
	}
	var key string
	if fields := req.Fields(); len(fields) > 0 {
		id, err := strconv.Atoi(strings.TrimPrefix(fields[0], "#"))
		if err != nil || id < 1 {
			return []string{failure("Usage: quote [id]")}
		}
		key = quoteKey(id)
	} else {
		key = keys[q.rand.IntN(len(keys))]
	}
	text, err := q.store.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return []string{failure("No such quote")}
	}
	if err != nil {
		return []string{failure("quote lookup failed")}
	}
	id, _ := quoteID(key)
	return []string{fmt.Sprintf("%s %s", sanitize.Bolden("#"+strconv.Itoa(id)), text)}
}

func quoteKey(id int) string {
	return fmt.Sprintf("%s%06d", quotePrefix, id)
}

func quoteID(key string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimPrefix(key, quotePrefix))
	return id, err == nil
}
