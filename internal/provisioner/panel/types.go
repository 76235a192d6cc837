package panel

import "time"

// ClientEntry mirrors one element of the panel's inbound settings `clients`
// array. The panel only requires id/email/enable/expiryTime/flow; the
// provisioner stamps link, user_id, months, and host so entries can later be
// reconciled back into local configuration rows without extra lookups.
type ClientEntry struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Enable     bool   `json:"enable"`
	ExpiryTime int64  `json:"expiryTime"` // unix milliseconds
	Flow       string `json:"flow"`
	Link       string `json:"link,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	Months     int    `json:"months,omitempty"`
	Host       string `json:"host,omitempty"`
	LimitIP    int    `json:"limitIp"`
	Reset      int    `json:"reset"`
	TgID       string `json:"tgId"`
	TotalGB    int64  `json:"totalGB"`
}

// ExpiresAt converts the panel's millisecond expiry to a time.Time.
func (c ClientEntry) ExpiresAt() time.Time {
	return time.UnixMilli(c.ExpiryTime).UTC()
}

// ExpiryMillis converts a time.Time to the panel's millisecond expiry.
func ExpiryMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// Inbound is one listening endpoint row read from the panel database: the row
// id, the parsed settings object (clients array included), and the first
// reality shortId from its stream settings.
type Inbound struct {
	ID       int64
	ShortID  string
	Settings map[string]any
}

// Clients decodes the inbound's clients array.
func (i *Inbound) Clients() ([]ClientEntry, error) {
	raw, ok := i.Settings["clients"]
	if !ok || raw == nil {
		return nil, nil
	}
	return decodeClients(raw)
}
