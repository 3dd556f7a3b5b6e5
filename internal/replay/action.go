package replay

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
)

var (
	// ErrMissingTarget is returned for a click or form step without a target.
	ErrMissingTarget = errors.New("step has no target element")
	// ErrUnknownAction is returned for an action kind this module cannot execute.
	ErrUnknownAction = errors.New("unknown action kind")
	// ErrBadDetails is returned when a step's action payload cannot be decoded.
	ErrBadDetails = errors.New("invalid action details")
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Executor performs page actions. It is implemented by the live browser
// session and by the static HTML page.
type Executor interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, d schemas.SelectorDescriptor, details schemas.ClickDetails) error
	UpdateForm(ctx context.Context, d schemas.SelectorDescriptor, details schemas.FormDetails) error
}

// Action is a decoded, executable step.
type Action struct {
	Kind       schemas.ActionKind
	Navigation schemas.NavigationDetails
	Click      schemas.ClickDetails
	Form       schemas.FormDetails
	Target     *schemas.SelectorDescriptor
}

// DecodeAction turns a stored step into an executable action.
func DecodeAction(step *schemas.SnapshotStep) (*Action, error) {
	a := &Action{Kind: step.ActionKind}
	if step.TargetElement != nil {
		target := step.TargetElement.Selector
		a.Target = &target
	}
	if a.Kind.RequiresTarget() && a.Target == nil {
		return nil, ErrMissingTarget
	}

	var payload interface{}
	switch a.Kind {
	case schemas.ActionNavigation:
		payload = &a.Navigation
	case schemas.ActionClick:
		payload = &a.Click
	case schemas.ActionFormUpdate:
		payload = &a.Form
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
	if len(step.ActionDetails) > 0 {
		if err := codec.Unmarshal(step.ActionDetails, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadDetails, err)
		}
	}
	if a.Kind == schemas.ActionNavigation && a.Navigation.URL == "" {
		return nil, fmt.Errorf("%w: navigation without url", ErrBadDetails)
	}
	return a, nil
}

// EncodeDetails returns the stored form of the action payload.
func (a *Action) EncodeDetails() ([]byte, error) {
	switch a.Kind {
	case schemas.ActionNavigation:
		return codec.Marshal(a.Navigation)
	case schemas.ActionClick:
		return codec.Marshal(a.Click)
	case schemas.ActionFormUpdate:
		return codec.Marshal(a.Form)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
}

// Execute runs the action against exec.
func (a *Action) Execute(ctx context.Context, exec Executor) error {
	switch a.Kind {
	case schemas.ActionNavigation:
		return exec.Navigate(ctx, a.Navigation.URL)
	case schemas.ActionClick:
		if a.Target == nil {
			return ErrMissingTarget
		}
		return exec.Click(ctx, *a.Target, a.Click)
	case schemas.ActionFormUpdate:
		if a.Target == nil {
			return ErrMissingTarget
		}
		return exec.UpdateForm(ctx, *a.Target, a.Form)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
}
