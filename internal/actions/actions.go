// Package actions drives destructive multi-step UI actions on the chat list,
// one chat at a time.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roelfdiedericks/chatsweep/internal/cdp"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Outcome messages.
const (
	MsgDeleted  = "Chat deleted successfully"
	MsgNotFound = "not found"
)

// Outcome is the result of one requested identity.
type Outcome struct {
	Identity string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// OK reports whether the action succeeded.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// OutcomeFunc is called as each identity finishes.
type OutcomeFunc func(index int, o Outcome)

// errNotFound marks a chat row that never appeared.
var errNotFound = errors.New(MsgNotFound)

// DeleteExecutor deletes chats through the web client's menus.
type DeleteExecutor struct {
	config Config
}

// NewDeleteExecutor creates an executor.
func NewDeleteExecutor(cfg Config) *DeleteExecutor {
	return &DeleteExecutor{config: cfg}
}

// DeleteAll processes identities strictly in order and returns exactly one
// outcome per identity, in input order. A failure for one identity is
// recorded and the batch continues. Once ctx is done the remaining
// identities are recorded as errors without touching the page.
func (d *DeleteExecutor) DeleteAll(ctx context.Context, surface cdp.Surface, identities []string, onOutcome OutcomeFunc) []Outcome {
	start := time.Now()
	outcomes := make([]Outcome, 0, len(identities))

	for i, identity := range identities {
		var o Outcome
		if err := ctx.Err(); err != nil {
			o = Outcome{Identity: identity, Status: StatusError, Message: err.Error()}
		} else {
			o = d.deleteOne(ctx, surface, identity)
		}
		outcomes = append(outcomes, o)
		if onOutcome != nil {
			onOutcome(i, o)
		}
	}

	succeeded := 0
	for _, o := range outcomes {
		if o.OK() {
			succeeded++
		}
	}
	L_elapsed(start, "actions: batch complete", "requested", len(identities), "succeeded", succeeded, "failed", len(identities)-succeeded)
	return outcomes
}

func (d *DeleteExecutor) deleteOne(ctx context.Context, surface cdp.Surface, identity string) Outcome {
	L_info("actions: processing", "name", identity)

	if err := d.run(ctx, surface, identity); err != nil {
		if errors.Is(err, errNotFound) {
			L_warn("actions: chat not found", "name", identity)
			return Outcome{Identity: identity, Status: StatusError, Message: MsgNotFound}
		}
		L_warn("actions: delete failed", "name", identity, "error", err)
		return Outcome{Identity: identity, Status: StatusError, Message: err.Error()}
	}

	L_info("actions: chat deleted", "name", identity)
	return Outcome{Identity: identity, Status: StatusSuccess, Message: MsgDeleted}
}

// run performs reload, locate, open menu, delete, confirm.
func (d *DeleteExecutor) run(ctx context.Context, surface cdp.Surface, identity string) error {
	sel := d.config.Selectors

	if err := surface.Reload(ctx); err != nil {
		return err
	}

	row, err := surface.FindByText(ctx, sel.ChatTitle, identity, d.config.ResolveFindTimeout())
	if err != nil {
		if errors.Is(err, cdp.ErrTimeout) || errors.Is(err, cdp.ErrElementNotFound) {
			return errNotFound
		}
		return err
	}
	if err := row.Click(ctx); err != nil {
		return fmt.Errorf("open chat: %w", err)
	}

	if _, err := surface.WaitFor(ctx, sel.MenuTrigger, d.config.ResolveMenuTimeout()); err != nil {
		return fmt.Errorf("menu trigger: %w", err)
	}
	triggers, err := surface.QueryAll(ctx, sel.MenuTrigger)
	if err != nil {
		return fmt.Errorf("menu trigger: %w", err)
	}
	if len(triggers) == 0 {
		return errors.New("menu trigger not found")
	}
	if err := triggers[len(triggers)-1].Click(ctx); err != nil {
		return fmt.Errorf("open menu: %w", err)
	}

	item, err := surface.WaitFor(ctx, sel.DeleteItem, d.config.ResolveDialogTimeout())
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	if err := item.Click(ctx); err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}

	if _, err := surface.WaitFor(ctx, sel.ConfirmDialog, d.config.ResolveDialogTimeout()); err != nil {
		return fmt.Errorf("confirm dialog: %w", err)
	}
	confirm, err := surface.FindByText(ctx, sel.ConfirmButton, sel.ConfirmText, d.config.ResolveDialogTimeout())
	if err != nil {
		return fmt.Errorf("confirm button: %w", err)
	}
	if err := confirm.Click(ctx); err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	return nil
}
