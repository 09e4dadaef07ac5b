package action

import (
	"strings"
	"time"

	"aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/models/mailitem"
)

type Type string

const (
	Trash       Type = "trash"
	Unsubscribe Type = "unsubscribe"
	Block       Type = "block"
	Nuke        Type = "nuke"
	Keep        Type = "keep"
)

func (t Type) Valid() bool {
	switch t {
	case Trash, Unsubscribe, Block, Nuke, Keep:
		return true
	}
	return false
}

// ParseType accepts the lower-case action names used by the API and the CLI.
func ParseType(value string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", base.Validationf("unknown action type %q", value)
	}
	return t, nil
}

// Target names what an action applies to. Exactly one of the fields is set.
type Target struct {
	EmailIDs []string `json:"email_ids,omitempty"`
	Sender   string   `json:"sender,omitempty"`
	Domain   string   `json:"domain,omitempty"`
}

// Intent is a mutating action waiting to be executed against the provider.
type Intent struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Target     Target    `json:"target"`
	CreatedAt  time.Time `json:"created_at"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
}

// Validate checks that the target kind matches the action type.
func (i Intent) Validate() error {
	if !i.Type.Valid() {
		return base.Validationf("unknown action type %q", i.Type)
	}
	t := i.Target
	set := 0
	if len(t.EmailIDs) > 0 {
		set++
	}
	if strings.TrimSpace(t.Sender) != "" {
		set++
	}
	if strings.TrimSpace(t.Domain) != "" {
		set++
	}
	if set != 1 {
		return base.Validationf("%s requires exactly one target kind", i.Type)
	}

	switch i.Type {
	case Trash, Unsubscribe, Keep:
		if len(t.EmailIDs) == 0 {
			return base.Validationf("%s requires email ids", i.Type)
		}
		for _, id := range t.EmailIDs {
			if strings.TrimSpace(id) == "" {
				return base.Validationf("%s has an empty email id", i.Type)
			}
		}
	case Block:
		if !strings.Contains(t.Sender, "@") {
			return base.Validationf("block requires a sender address, got %q", t.Sender)
		}
	case Nuke:
		if strings.TrimSpace(t.Domain) == "" || strings.Contains(t.Domain, "@") {
			return base.Validationf("nuke requires a bare domain, got %q", t.Domain)
		}
	}
	return nil
}

// Matches reports whether a visible item is covered by the target.
func (t Target) Matches(item mailitem.Item) bool {
	switch {
	case len(t.EmailIDs) > 0:
		for _, id := range t.EmailIDs {
			if id == item.ID {
				return true
			}
		}
		return false
	case t.Sender != "":
		return strings.EqualFold(strings.TrimSpace(t.Sender), strings.TrimSpace(item.Sender))
	case t.Domain != "":
		return strings.EqualFold(strings.TrimSpace(t.Domain), item.Domain)
	}
	return false
}

// UndoEntry records what is needed to compensate an applied optimistic mutation.
type UndoEntry struct {
	ID               string          `json:"id"`
	ActionType       Type            `json:"action_type"`
	AffectedEmailIDs []string        `json:"affected_email_ids"`
	Removed          []mailitem.Item `json:"-"`
	ServerHandle     string          `json:"server_handle,omitempty"`
	// IntentID is set while the action waits in the durable queue.
	IntentID         string          `json:"intent_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
