// Package access decides handler and display permissions for accounts.
package access

import (
	"fmt"
	"log/slog"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	fileadapter "github.com/casbin/casbin/v3/persist/file-adapter"

	"github.com/hanpama/viewexec/internal/handler"
)

// Anonymous is the subject used when a request names no user.
const Anonymous = "anonymous"

// DefaultModel grants permissions to subjects directly or through roles.
// A policy permission of "*" grants everything.
const DefaultModel = `
[request_definition]
r = sub, perm

[policy_definition]
p = sub, perm

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.perm == p.perm || p.perm == "*")
`

// Enforcer wraps a casbin enforcer over (subject, permission) policies.
type Enforcer struct {
	e      *casbin.Enforcer
	logger *slog.Logger
}

// New loads the model at modelPath, or DefaultModel when empty, and the
// CSV policy at policyPath when set.
func New(modelPath, policyPath string, logger *slog.Logger) (*Enforcer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		m   model.Model
		err error
	)
	if modelPath == "" {
		m, err = model.NewModelFromString(DefaultModel)
	} else {
		m, err = model.NewModelFromFile(modelPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load access model: %w", err)
	}
	var e *casbin.Enforcer
	if policyPath == "" {
		e, err = casbin.NewEnforcer(m)
	} else {
		e, err = casbin.NewEnforcer(m, fileadapter.NewAdapter(policyPath))
	}
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	return &Enforcer{e: e, logger: logger}, nil
}

// Grant allows subject, a user or a role, to use perm.
func (e *Enforcer) Grant(subject, perm string) error {
	_, err := e.e.AddPolicy(subject, perm)
	return err
}

// Assign gives user the role.
func (e *Enforcer) Assign(user, role string) error {
	_, err := e.e.AddGroupingPolicy(user, role)
	return err
}

// Allowed reports whether subject holds perm. Enforcer errors deny.
func (e *Enforcer) Allowed(subject, perm string) bool {
	ok, err := e.e.Enforce(subject, perm)
	if err != nil {
		e.logger.Warn("access check failed", "subject", subject, "perm", perm, "error", err)
		return false
	}
	return ok
}

// Account returns the account of subject. An empty subject is Anonymous.
func (e *Enforcer) Account(subject string) *Account {
	if subject == "" {
		subject = Anonymous
	}
	return &Account{enforcer: e, subject: subject}
}

// Account is a subject checked against an Enforcer.
type Account struct {
	enforcer *Enforcer
	subject  string
}

func (a *Account) Subject() string { return a.subject }

func (a *Account) HasPermission(perm string) bool {
	if a == nil || a.enforcer == nil {
		return false
	}
	return a.enforcer.Allowed(a.subject, perm)
}

// Static grants exactly the listed permissions.
type Static map[string]bool

func (s Static) HasPermission(perm string) bool { return s[perm] || s["*"] }

var (
	_ handler.Account = (*Account)(nil)
	_ handler.Account = Static(nil)
)
