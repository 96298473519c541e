// Package casbin implements authorization.Provider using a casbin RBAC
// enforcer with a SQL-backed policy store.
package casbin

import (
	"fmt"

	casbinv3 "github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/persist"
	"github.com/nasermirzaei89/marginalia/authorization"
)

// ObjectNone marks policy rules that carry no resource.
const ObjectNone = "-"

// rbacModel is the casbin RBAC model with resources.
const rbacModel = `
[request_definition]
r = sub, obj, res, act

[policy_definition]
p = sub, obj, res, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && (r.res == p.res || p.res == "-" || p.res == "*") && r.act == p.act
`

type AuthorizationProvider struct {
	enforcer *casbinv3.Enforcer
}

var _ authorization.Provider = (*AuthorizationProvider)(nil)

// NewAuthorizationProvider creates an AuthorizationProvider backed by
// the given casbin persist.Adapter.
func NewAuthorizationProvider(persistAdapter persist.Adapter) (*AuthorizationProvider, error) {
	casbinModel, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	enforcer, err := casbinv3.NewEnforcer(casbinModel, persistAdapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)

	err = enforcer.LoadPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to load stored policy: %w", err)
	}

	return &AuthorizationProvider{enforcer: enforcer}, nil
}

func (ap *AuthorizationProvider) Enforce(sub, obj, res, act string) (bool, error) {
	if res == "" {
		res = ObjectNone
	}

	allowed, err := ap.enforcer.Enforce(sub, obj, res, act)
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}

	return allowed, nil
}

func (ap *AuthorizationProvider) AddPolicy(sub, obj, res, act string) error {
	if res == "" {
		res = ObjectNone
	}

	_, err := ap.enforcer.AddPolicy(sub, obj, res, act)
	if err != nil {
		return fmt.Errorf("failed to add policy: %w", err)
	}

	return nil
}

func (ap *AuthorizationProvider) AddGroupingPolicy(sub, group string) error {
	_, err := ap.enforcer.AddGroupingPolicy(sub, group)
	if err != nil {
		return fmt.Errorf("failed to add grouping policy: %w", err)
	}

	return nil
}

// AddPolicyFromCSV loads p and g rules from a casbin CSV policy
// document into the enforcer.
func (ap *AuthorizationProvider) AddPolicyFromCSV(content string) error {
	for _, rule := range parsePolicyCSV(content) {
		policyType, fields := rule[0], rule[1:]

		var err error

		switch policyType {
		case "p":
			_, err = ap.enforcer.AddPolicy(fields)
		case "g":
			_, err = ap.enforcer.AddGroupingPolicy(fields)
		default:
			return UnknownPolicyTypeError{PolicyType: policyType}
		}

		if err != nil {
			return fmt.Errorf("failed to add %q rule %v: %w", policyType, fields, err)
		}
	}

	return nil
}
