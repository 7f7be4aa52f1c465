package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Symbol is a configured trading pair. ID is the numeric currency-pair id
// the exchange uses inside ticker frames; zero means "not known".
type Symbol struct {
	Name string
	ID   int64
}

// Decoder maps raw frames onto Messages using a channel table built once
// from the configured symbols.
type Decoder struct {
	byName map[string]string
	byID   map[int64]string
}

// NewDecoder builds the channel table. Names must be non-empty and
// unique, non-zero ids must be unique.
func NewDecoder(symbols []Symbol) (*Decoder, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("codec: at least one symbol is required")
	}
	d := &Decoder{
		byName: make(map[string]string, len(symbols)),
		byID:   make(map[int64]string, len(symbols)),
	}
	for _, s := range symbols {
		if s.Name == "" {
			return nil, fmt.Errorf("codec: empty symbol name")
		}
		if _, dup := d.byName[s.Name]; dup {
			return nil, fmt.Errorf("codec: duplicate symbol %q", s.Name)
		}
		d.byName[s.Name] = s.Name
		if s.ID != 0 {
			if other, dup := d.byID[s.ID]; dup {
				return nil, fmt.Errorf("codec: id %d used by both %q and %q", s.ID, other, s.Name)
			}
			d.byID[s.ID] = s.Name
		}
	}
	return d, nil
}

// Decode turns one frame into a Message. It never panics; every failure
// is reported as *DecodeError.
func (d *Decoder) Decode(raw []byte) (Message, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return Message{Kind: KindEmpty}, nil
	}

	switch body[0] {
	case '{':
		return d.decodeObject(body)
	case '[':
		return d.decodeArray(body)
	default:
		return Message{}, decodeErr(raw, "unexpected payload", ErrMalformed)
	}
}

func (d *Decoder) decodeObject(body []byte) (Message, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return Message{}, decodeErr(body, "invalid json object", fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	v, ok := obj["error"]
	if !ok {
		return Message{}, decodeErr(body, "object without error key", ErrUnknownFamily)
	}
	return Message{Kind: KindError, ErrorText: rawText(v)}, nil
}

func (d *Decoder) decodeArray(body []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return Message{}, decodeErr(body, "invalid json array", fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if len(parts) == 0 {
		return Message{}, decodeErr(body, "empty array", ErrMalformed)
	}

	var family int64
	if err := json.Unmarshal(parts[0], &family); err != nil {
		return Message{}, decodeErr(body, "non-numeric discriminator", ErrUnknownFamily)
	}

	switch family {
	case ChannelAccount:
		if len(parts) < 2 {
			return Message{}, decodeErr(body, "account notification without status", ErrMalformed)
		}
		if !isNumber(parts[1]) {
			// Account payloads ([1000, "", [...]]) carry no status.
			return Message{Kind: KindAccount, AccountStatus: AccountNotice}, nil
		}
		var status int
		if err := json.Unmarshal(parts[1], &status); err != nil {
			return Message{}, decodeErr(body, "account status", fmt.Errorf("%w: %v", ErrMalformed, err))
		}
		return Message{Kind: KindAccount, AccountStatus: status}, nil

	case ChannelTicker:
		return d.decodeTicker(body, parts)

	case ChannelHeartbeat:
		return Message{Kind: KindEmpty}, nil

	default:
		return Message{}, decodeErr(body, fmt.Sprintf("discriminator %d", family), ErrUnknownFamily)
	}
}

func (d *Decoder) decodeTicker(body []byte, parts []json.RawMessage) (Message, error) {
	msg := Message{Kind: KindTicker}
	if len(parts) >= 2 && !isNull(parts[1]) {
		if err := json.Unmarshal(parts[1], &msg.Sequence); err != nil {
			return Message{}, decodeErr(body, "ticker sequence", fmt.Errorf("%w: %v", ErrMalformed, err))
		}
	}
	if len(parts) < 3 || isNull(parts[2]) {
		return msg, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(parts[2], &records); err != nil {
		return Message{}, decodeErr(body, "ticker updates", fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	// The exchange pushes a single positional record ([id, last, ask, bid, ...])
	// instead of a list of records.
	if len(records) > 0 && !isComposite(records[0]) {
		records = []json.RawMessage{parts[2]}
	}

	msg.Updates = make([]TickerUpdate, 0, len(records))
	for i, rec := range records {
		upd, err := d.decodeRecord(rec)
		if err != nil {
			return Message{}, decodeErr(body, fmt.Sprintf("ticker update #%d", i), err)
		}
		msg.Updates = append(msg.Updates, upd)
	}
	return msg, nil
}

func (d *Decoder) decodeRecord(rec json.RawMessage) (TickerUpdate, error) {
	rec = bytes.TrimSpace(rec)
	if len(rec) == 0 {
		return TickerUpdate{}, ErrMalformed
	}
	if rec[0] == '{' {
		var obj struct {
			Channel json.RawMessage  `json:"channel"`
			Bid     *decimal.Decimal `json:"bid"`
			Ask     *decimal.Decimal `json:"ask"`
		}
		if err := json.Unmarshal(rec, &obj); err != nil {
			return TickerUpdate{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if obj.Bid == nil || obj.Ask == nil {
			return TickerUpdate{}, fmt.Errorf("%w: bid and ask are required", ErrMalformed)
		}
		symbol, err := d.resolve(obj.Channel)
		if err != nil {
			return TickerUpdate{}, err
		}
		return TickerUpdate{Symbol: symbol, Bid: *obj.Bid, Ask: *obj.Ask}, nil
	}

	// [currencyPairId, last, lowestAsk, highestBid, ...]
	var fields []json.RawMessage
	if err := json.Unmarshal(rec, &fields); err != nil {
		return TickerUpdate{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(fields) < 4 {
		return TickerUpdate{}, fmt.Errorf("%w: positional record has %d fields", ErrMalformed, len(fields))
	}
	symbol, err := d.resolve(fields[0])
	if err != nil {
		return TickerUpdate{}, err
	}
	var ask, bid decimal.Decimal
	if err := json.Unmarshal(fields[2], &ask); err != nil {
		return TickerUpdate{}, fmt.Errorf("%w: ask: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(fields[3], &bid); err != nil {
		return TickerUpdate{}, fmt.Errorf("%w: bid: %v", ErrMalformed, err)
	}
	return TickerUpdate{Symbol: symbol, Bid: bid, Ask: ask}, nil
}

// resolve maps a channel reference (textual symbol or numeric id) onto a
// configured symbol.
func (d *Decoder) resolve(ref json.RawMessage) (string, error) {
	if len(ref) == 0 || isNull(ref) {
		return "", fmt.Errorf("%w: missing channel", ErrUnknownChannel)
	}

	var name string
	if err := json.Unmarshal(ref, &name); err == nil {
		if s, ok := d.byName[name]; ok {
			return s, nil
		}
		if id, perr := strconv.ParseInt(name, 10, 64); perr == nil {
			if s, ok := d.byID[id]; ok {
				return s, nil
			}
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}

	var id int64
	if err := json.Unmarshal(ref, &id); err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownChannel, ref)
	}
	if s, ok := d.byID[id]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownChannel, id)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && (raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'))
}

func isComposite(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && (raw[0] == '{' || raw[0] == '[')
}

func rawText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(v))
}
