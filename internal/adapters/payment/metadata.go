package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"ticketbooth/internal/domain"
)

// Metadata keys shared by both gateways. The values round-trip the
// reservation intent through the provider, which is the only durable store
// of a paid intent between session creation and webhook delivery.
const (
	metaEventID  = "event_id"
	metaName     = "name"
	metaEmail    = "email"
	metaPhone    = "phone"
	metaQuantity = "quantity"
	metaDate     = "date"
	metaMulti    = "multi"
	metaItems    = "items"
)

// compactItem is the wire shape of one basket entry. Short keys keep the
// serialized list inside the provider's per-value ceiling.
type compactItem struct {
	E string `json:"e"`
	Q int    `json:"q"`
}

// encodeMetadata flattens session metadata into provider key/value pairs,
// enforcing the size policy: the display name is truncated to the limit,
// every other overflowing value aborts the call. Truncating an email or an
// item list would corrupt fulfillment, so those are hard failures.
func encodeMetadata(m domain.SessionMetadata) (map[string]string, error) {
	out := map[string]string{
		metaName:  truncate(m.Name, domain.MetadataValueLimit),
		metaEmail: m.Email,
	}
	if m.Phone != "" {
		out[metaPhone] = m.Phone
	}
	if m.Multi {
		items := make([]compactItem, len(m.Items))
		for i, it := range m.Items {
			items[i] = compactItem{E: it.EventID, Q: it.Quantity}
		}
		raw, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("marshal items: %w", err)
		}
		out[metaMulti] = "1"
		out[metaItems] = string(raw)
	} else {
		out[metaEventID] = m.EventID
		out[metaQuantity] = strconv.Itoa(m.Quantity)
		if m.Date != "" {
			out[metaDate] = m.Date
		}
	}
	for key, value := range out {
		if len(value) > domain.MetadataValueLimit {
			return nil, fmt.Errorf("%w: field %q is %d characters", domain.ErrMetadataOverflow, key, len(value))
		}
	}
	return out, nil
}

// decodeMetadata rebuilds session metadata from provider key/value pairs.
// Incomplete metadata (missing name, email, or both event_id and multi) is
// a hard failure: the caller must never fulfill from a partial intent.
func decodeMetadata(values map[string]string) (domain.SessionMetadata, error) {
	m := domain.SessionMetadata{
		EventID: values[metaEventID],
		Name:    values[metaName],
		Email:   values[metaEmail],
		Phone:   values[metaPhone],
		Date:    values[metaDate],
	}
	if q := values[metaQuantity]; q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			return domain.SessionMetadata{}, fmt.Errorf("invalid quantity metadata: %w", err)
		}
		m.Quantity = n
	}
	if values[metaMulti] == "1" {
		m.Multi = true
		var items []compactItem
		if err := json.Unmarshal([]byte(values[metaItems]), &items); err != nil {
			return domain.SessionMetadata{}, fmt.Errorf("invalid items metadata: %w", err)
		}
		m.Items = make([]domain.BasketItem, len(items))
		for i, it := range items {
			m.Items[i] = domain.BasketItem{EventID: it.E, Quantity: it.Q}
		}
	}
	if !m.Complete() {
		return domain.SessionMetadata{}, fmt.Errorf("session metadata incomplete")
	}
	return m, nil
}

// truncate cuts s to at most limit bytes without splitting a rune, so the
// value stays valid UTF-8 on the wire.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
