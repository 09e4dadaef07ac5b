package mailitem

import (
	"strings"
	"time"
)

// Item is one message as shown in the caller-visible collection.
type Item struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Domain     string    `json:"domain"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
}

// DomainOf returns the lower-cased host part of an address.
func DomainOf(address string) string {
	address = strings.TrimSpace(address)
	if i := strings.LastIndex(address, "@"); i >= 0 {
		address = address[i+1:]
	}
	return strings.ToLower(strings.Trim(address, "<> "))
}

// IDs returns the ids of items, preserving order.
func IDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}
