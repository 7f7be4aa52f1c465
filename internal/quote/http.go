package quote

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
)

// Fallback ищет котировку вне Store (например, в Redis-зеркале), пока
// по символу не пришёл ни один тикер.
type Fallback func(ctx context.Context, symbol string) (Quote, error)

// HandlerOption настраивает Handler.
type HandlerOption func(*handler)

// WithFallback подключает внешний источник для одиночных запросов.
func WithFallback(f Fallback) HandlerOption {
	return func(h *handler) { h.fallback = f }
}

type handler struct {
	store    *Store
	fallback Fallback
}

type view struct {
	Quote
	Spread decimal.Decimal `json:"spread"`
	Source string          `json:"source,omitempty"`
}

func newView(q Quote, source string) view {
	return view{Quote: q, Spread: q.Spread(), Source: source}
}

// Handler отдаёт котировки как JSON: все (GET /quotes) или одну
// (GET /quotes?symbol=USDT_BTC, 404 если котировки ещё нет).
func Handler(s *Store, opts ...HandlerOption) http.Handler {
	h := &handler{store: s}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body interface{}
	if sym := r.URL.Query().Get("symbol"); sym != "" {
		v, ok := h.lookup(r.Context(), sym)
		if !ok {
			http.Error(w, "no quote for "+sym, http.StatusNotFound)
			return
		}
		body = v
	} else {
		snap := h.store.Snapshot()
		out := make([]view, len(snap))
		for i, q := range snap {
			out[i] = newView(q, "")
		}
		body = out
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (h *handler) lookup(ctx context.Context, sym string) (view, bool) {
	if q, ok := h.store.Get(sym); ok {
		return newView(q, ""), true
	}
	// в fallback ходим только за сконфигурированными символами
	if h.fallback == nil || !h.store.allows(sym) {
		return view{}, false
	}
	q, err := h.fallback(ctx, sym)
	if err != nil {
		return view{}, false
	}
	return newView(q, "fallback"), true
}
