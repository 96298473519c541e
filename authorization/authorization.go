// Package authorization wraps policy enforcement behind a small
// Provider interface so the rest of the service never talks to the
// policy engine directly.
package authorization

import (
	"context"
	"fmt"
)

// Provider is the interface that wraps authorization policy
// enforcement.
type Provider interface {
	Enforce(sub, obj, res, act string) (allowed bool, err error)
	AddPolicy(sub, obj, res, act string) (err error)
	AddGroupingPolicy(sub, group string) (err error)
}

// Service wraps a Provider.
type Service struct {
	provider Provider
}

func NewService(provider Provider) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider must not be nil")
	}

	return &Service{provider: provider}, nil
}

// Enforce delegates to the underlying Provider.
func (svc *Service) Enforce(sub, obj, res, act string) (bool, error) {
	return svc.provider.Enforce(sub, obj, res, act)
}

// AddPolicy adds a p(sub, obj, res, act) rule to the policy store.
func (svc *Service) AddPolicy(sub, obj, res, act string) error {
	return svc.provider.AddPolicy(sub, obj, res, act)
}

// AddGroupingPolicy adds a subject → group mapping to the policy store.
func (svc *Service) AddGroupingPolicy(sub, group string) error {
	return svc.provider.AddGroupingPolicy(sub, group)
}

// AccessDeniedError is returned when a subject does not have permission
// to perform an action.
type AccessDeniedError struct {
	Sub    string
	Obj    string
	Res    string
	Action string
}

func (err *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: sub=%q obj=%q res=%q action=%q", err.Sub, err.Obj, err.Res, err.Action)
}

// Client is a convenience wrapper around Service that can read the
// current subject from a context.Context.
type Client struct {
	svc *Service
}

func NewClient(svc *Service) *Client {
	return &Client{svc: svc}
}

// CheckAccess checks whether the current context subject may perform
// action on the given service (obj) and resource (res). It returns an
// *AccessDeniedError when access is not allowed.
func (c *Client) CheckAccess(ctx context.Context, obj, res, action string) error {
	sub := SubjectFromContext(ctx)

	allowed, err := c.svc.Enforce(sub, obj, res, action)
	if err != nil {
		return fmt.Errorf("failed to enforce authorization policy: %w", err)
	}

	if !allowed {
		return &AccessDeniedError{Sub: sub, Obj: obj, Res: res, Action: action}
	}

	return nil
}

// Can reports whether the given subject may perform action on obj/res.
func (c *Client) Can(ctx context.Context, sub, obj, res, action string) (bool, error) {
	allowed, err := c.svc.Enforce(sub, obj, res, action)
	if err != nil {
		return false, fmt.Errorf("failed to enforce authorization policy: %w", err)
	}

	return allowed, nil
}

// AddToGroup adds the given subject to the named group.
func (c *Client) AddToGroup(ctx context.Context, sub, group string) error {
	err := c.svc.AddGroupingPolicy(sub, group)
	if err != nil {
		return fmt.Errorf("failed to add subject %q to group %q: %w", sub, group, err)
	}

	return nil
}

// Grant adds a p(sub, obj, res, act) rule.
func (c *Client) Grant(ctx context.Context, sub, obj, res, action string) error {
	err := c.svc.AddPolicy(sub, obj, res, action)
	if err != nil {
		return fmt.Errorf("failed to grant %q on %q/%q to %q: %w", action, obj, res, sub, err)
	}

	return nil
}
