package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/models/action"
	"github.com/urfave/cli/v2"
)

func (r *runner) queueList(c *cli.Context) error {
	cfg, err := r.loadConfig(c)
	if err != nil {
		return err
	}
	g, err := r.build(c, cfg, r.logger(c, false))
	if err != nil {
		return err
	}
	defer g.Close()

	if !g.Queue.Available() {
		return base.ErrStorageUnavailable
	}
	pending, err := g.Queue.ListPending(c.Context)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(c.App.Writer, "no pending actions")
		return nil
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tTARGET\tCREATED\tRETRIES\tLAST ERROR")
	for _, intent := range pending {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			intent.ID,
			intent.Type,
			describeTarget(intent.Target),
			intent.CreatedAt.Format(time.RFC3339),
			intent.RetryCount,
			intent.LastError)
	}
	return w.Flush()
}

func (r *runner) queueFlush(c *cli.Context) error {
	cfg, err := r.loadConfig(c)
	if err != nil {
		return err
	}
	g, err := r.build(c, cfg, r.logger(c, false))
	if err != nil {
		return err
	}
	defer g.Close()

	if !g.Queue.Available() {
		return base.ErrStorageUnavailable
	}
	res, err := g.Queue.Flush(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "synced %d, failed %d\n", res.Synced, res.Failed)
	return nil
}

func describeTarget(t action.Target) string {
	switch {
	case t.Sender != "":
		return t.Sender
	case t.Domain != "":
		return "@" + t.Domain
	case len(t.EmailIDs) > 3:
		return fmt.Sprintf("%s +%d", strings.Join(t.EmailIDs[:3], ","), len(t.EmailIDs)-3)
	default:
		return strings.Join(t.EmailIDs, ",")
	}
}
