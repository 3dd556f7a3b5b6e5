// Package decider supplies step decisions to live runs. Deciding what a
// natural-language step means is outside this module; the only built-in
// decider replays decisions scripted in a suite file.
package decider

import (
	"context"
	"errors"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

// ErrNoDecision is returned when a decider has nothing for a step.
var ErrNoDecision = errors.New("no decision for step")

// Decision is the typed action chosen for one step. Locator points at the
// target element in any form the page can resolve; the run turns it into a
// durable descriptor before executing.
type Decision struct {
	Kind       schemas.ActionKind
	Navigation schemas.NavigationDetails
	Click      schemas.ClickDetails
	Form       schemas.FormDetails
	Locator    *schemas.SelectorDescriptor
}

// Decider chooses the action for a step against the current page.
type Decider interface {
	DecideAction(ctx context.Context, page selector.PageQuery, step string) (*Decision, error)
}
