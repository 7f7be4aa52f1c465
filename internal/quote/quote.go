// Package quote держит последнюю известную котировку (best bid/ask) по
// каждому сконфигурированному символу.
package quote

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownSymbol возвращается при попытке записать котировку символа,
// которого нет в наборе подписки.
var ErrUnknownSymbol = errors.New("quote: unknown symbol")

// Quote: снимок лучших цен по символу.
type Quote struct {
	Exchange  string          `json:"exchange"`
	Symbol    string          `json:"symbol"`
	Timestamp int64           `json:"timestamp"` // время получения, epoch seconds
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
}

// Spread возвращает ask - bid.
func (q Quote) Spread() decimal.Decimal { return q.Ask.Sub(q.Bid) }

// Store хранит по одной котировке на символ. Безопасен для конкурентного
// доступа, поэтому может разделяться между несколькими соединениями.
type Store struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
	quotes  map[string]Quote
}

// NewStore создаёт хранилище для фиксированного набора символов.
func NewStore(symbols []string) *Store {
	allowed := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		allowed[s] = struct{}{}
	}
	return &Store{
		allowed: allowed,
		quotes:  make(map[string]Quote, len(symbols)),
	}
}

// Apply перезаписывает котировку символа (last-write-wins) и возвращает
// сохранённое значение.
func (s *Store) Apply(exchange, symbol string, bid, ask decimal.Decimal, at time.Time) (Quote, error) {
	if _, ok := s.allowed[symbol]; !ok {
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	q := Quote{
		Exchange:  exchange,
		Symbol:    symbol,
		Timestamp: at.Unix(),
		Bid:       bid,
		Ask:       ask,
	}

	s.mu.Lock()
	s.quotes[symbol] = q
	s.mu.Unlock()
	return q, nil
}

// Get возвращает последнюю котировку символа.
func (s *Store) Get(symbol string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

func (s *Store) allows(symbol string) bool {
	_, ok := s.allowed[symbol]
	return ok
}

// Len: число символов, по которым уже есть котировка.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.quotes)
}

// Snapshot возвращает копию всех котировок, отсортированную по символу.
func (s *Store) Snapshot() []Quote {
	s.mu.RLock()
	out := make([]Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, q)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
