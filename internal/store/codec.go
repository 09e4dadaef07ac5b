package store

import (
	"encoding/json"
	"fmt"
	"time"

	"aaronromeo.com/inboxsweep/pkg/models/action"
	"github.com/pkg/errors"
)

func errDuplicate(id string) error {
	return fmt.Errorf("intent %s already stored", id)
}

// intentRow is the column layout shared by the SQL backends.
type intentRow struct {
	ID         string    `db:"id"`
	Type       string    `db:"type"`
	Target     string    `db:"target"`
	CreatedAt  time.Time `db:"created_at"`
	RetryCount int       `db:"retry_count"`
	LastError  string    `db:"last_error"`
}

func toRow(intent action.Intent) (intentRow, error) {
	target, err := json.Marshal(intent.Target)
	if err != nil {
		return intentRow{}, errors.Wrap(err, "encode target")
	}
	return intentRow{
		ID:         intent.ID,
		Type:       string(intent.Type),
		Target:     string(target),
		CreatedAt:  intent.CreatedAt.UTC(),
		RetryCount: intent.RetryCount,
		LastError:  intent.LastError,
	}, nil
}

func (r intentRow) intent() (action.Intent, error) {
	var target action.Target
	if err := json.Unmarshal([]byte(r.Target), &target); err != nil {
		return action.Intent{}, errors.Wrapf(err, "decode target of %s", r.ID)
	}
	return action.Intent{
		ID:         r.ID,
		Type:       action.Type(r.Type),
		Target:     target,
		CreatedAt:  r.CreatedAt.UTC(),
		RetryCount: r.RetryCount,
		LastError:  r.LastError,
	}, nil
}
