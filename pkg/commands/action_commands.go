// Package commands translates action intents into mail provider calls using the Command pattern.
// Both the live dispatch path and the durable queue replay go through the same commands, so an
// intent means the same thing whenever it runs.
package commands

import (
	"context"
	"log/slog"

	"aaronromeo.com/inboxsweep/internal/gateway"
	"aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/models/action"
	"github.com/pkg/errors"
)

// Outcome carries what the provider handed back, if anything.
type Outcome struct {
	// ServerHandle identifies a server-side object created by the call, such as a filter id.
	ServerHandle string
}

// ActionCommand defines the interface for provider operations using the Command pattern.
type ActionCommand interface {
	Execute(ctx context.Context, gw gateway.Gateway, target action.Target) (Outcome, error)
	GetName() string
	GetDescription() string
}

// TrashCommand moves messages to the provider's trash.
type TrashCommand struct {
	logger *slog.Logger
}

func NewTrashCommand(logger *slog.Logger) ActionCommand {
	return &TrashCommand{logger: logger}
}

func (c *TrashCommand) Execute(ctx context.Context, gw gateway.Gateway, target action.Target) (Outcome, error) {
	c.logger.DebugContext(ctx, "Executing trash command", slog.Int("messages", len(target.EmailIDs)))
	return Outcome{}, gw.Trash(ctx, target.EmailIDs)
}

func (c *TrashCommand) GetName() string {
	return string(action.Trash)
}

func (c *TrashCommand) GetDescription() string {
	return "Moves messages to the trash"
}

// UnsubscribeCommand reports every message as spam.
type UnsubscribeCommand struct {
	logger *slog.Logger
}

func NewUnsubscribeCommand(logger *slog.Logger) ActionCommand {
	return &UnsubscribeCommand{logger: logger}
}

func (c *UnsubscribeCommand) Execute(ctx context.Context, gw gateway.Gateway, target action.Target) (Outcome, error) {
	c.logger.DebugContext(ctx, "Executing unsubscribe command", slog.Int("messages", len(target.EmailIDs)))
	for _, id := range target.EmailIDs {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		if err := gw.MarkSpam(ctx, id); err != nil {
			return Outcome{}, errors.Wrapf(err, "mark spam %s", id)
		}
	}
	return Outcome{}, nil
}

func (c *UnsubscribeCommand) GetName() string {
	return string(action.Unsubscribe)
}

func (c *UnsubscribeCommand) GetDescription() string {
	return "Reports messages as spam so the sender stops reaching the inbox"
}

// BlockCommand creates a filter for a single sender.
type BlockCommand struct {
	logger *slog.Logger
}

func NewBlockCommand(logger *slog.Logger) ActionCommand {
	return &BlockCommand{logger: logger}
}

func (c *BlockCommand) Execute(ctx context.Context, gw gateway.Gateway, target action.Target) (Outcome, error) {
	c.logger.DebugContext(ctx, "Executing block command", slog.String("sender", target.Sender))
	id, err := gw.CreateBlockFilter(ctx, target.Sender)
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "create filter for %s", target.Sender)
	}
	return Outcome{ServerHandle: id}, nil
}

func (c *BlockCommand) GetName() string {
	return string(action.Block)
}

func (c *BlockCommand) GetDescription() string {
	return "Creates a filter that diverts a sender away from the inbox"
}

// NukeCommand creates a filter for a whole domain.
type NukeCommand struct {
	logger *slog.Logger
}

func NewNukeCommand(logger *slog.Logger) ActionCommand {
	return &NukeCommand{logger: logger}
}

func (c *NukeCommand) Execute(ctx context.Context, gw gateway.Gateway, target action.Target) (Outcome, error) {
	c.logger.DebugContext(ctx, "Executing nuke command", slog.String("domain", target.Domain))
	id, err := gw.CreateBlockFilter(ctx, "@"+target.Domain)
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "create filter for domain %s", target.Domain)
	}
	return Outcome{ServerHandle: id}, nil
}

func (c *NukeCommand) GetName() string {
	return string(action.Nuke)
}

func (c *NukeCommand) GetDescription() string {
	return "Creates a filter that diverts a whole domain away from the inbox"
}

// KeepCommand only dismisses messages locally.
type KeepCommand struct {
	logger *slog.Logger
}

func NewKeepCommand(logger *slog.Logger) ActionCommand {
	return &KeepCommand{logger: logger}
}

func (c *KeepCommand) Execute(ctx context.Context, _ gateway.Gateway, target action.Target) (Outcome, error) {
	c.logger.DebugContext(ctx, "Executing keep command", slog.Int("messages", len(target.EmailIDs)))
	return Outcome{}, nil
}

func (c *KeepCommand) GetName() string {
	return string(action.Keep)
}

func (c *KeepCommand) GetDescription() string {
	return "Keeps messages and hides them from the review list"
}

// CommandExecutor resolves the command for an intent and runs it against a gateway.
type CommandExecutor struct {
	logger   *slog.Logger
	commands map[action.Type]ActionCommand
}

func NewCommandExecutor(logger *slog.Logger) *CommandExecutor {
	cmds := []ActionCommand{
		NewTrashCommand(logger),
		NewUnsubscribeCommand(logger),
		NewBlockCommand(logger),
		NewNukeCommand(logger),
		NewKeepCommand(logger),
	}
	e := &CommandExecutor{logger: logger, commands: make(map[action.Type]ActionCommand, len(cmds))}
	for _, cmd := range cmds {
		e.commands[action.Type(cmd.GetName())] = cmd
	}
	return e
}

// Command returns the command registered for t.
func (e *CommandExecutor) Command(t action.Type) (ActionCommand, error) {
	cmd, ok := e.commands[t]
	if !ok {
		return nil, base.Validationf("no command for action type %q", t)
	}
	return cmd, nil
}

// ExecuteIntent validates intent and runs the matching command.
func (e *CommandExecutor) ExecuteIntent(ctx context.Context, gw gateway.Gateway, intent action.Intent) (Outcome, error) {
	if err := intent.Validate(); err != nil {
		return Outcome{}, err
	}
	cmd, err := e.Command(intent.Type)
	if err != nil {
		return Outcome{}, err
	}

	outcome, err := cmd.Execute(ctx, gw, intent.Target)
	if err != nil {
		e.logger.DebugContext(ctx, "Command execution failed",
			slog.String("command", cmd.GetName()),
			slog.String("intent", intent.ID),
			slog.String("error", err.Error()))
		return Outcome{}, err
	}
	return outcome, nil
}
