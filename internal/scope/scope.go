// Package scope resolves document visibility scopes into storage
// prefixes and query filters shared by upload, search, and delete.
package scope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Scope defines the visibility tier for a document.
type Scope string

const (
	// ScopeGlobal indicates tenant-wide data visible to every caller.
	ScopeGlobal Scope = "global"
	// ScopeAccount indicates data shared within one account.
	ScopeAccount Scope = "account"
	// ScopeUser indicates data owned by a single user.
	ScopeUser Scope = "user"
	// ScopeSession indicates data bound to one chat session.
	ScopeSession Scope = "session"
)

// Payload field names shared by filter construction and unit tagging.
const (
	FieldAccountID = "account_id"
	FieldUserID    = "user_id"
	FieldSessionID = "session_id"
	FieldIsGlobal  = "is_global"
)

// Common errors.
var (
	ErrInvalidScope      = errors.New("invalid scope")
	ErrInvalidCustomerID = errors.New("invalid customer ID")
	ErrMissingAccountID  = errors.New("account ID required for scope")
	ErrMissingUserID     = errors.New("user ID required for scope")
	ErrMissingSessionID  = errors.New("session ID required for scope")
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ParseScope converts a string into a Scope, rejecting unknown values.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(s)) {
	case ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeAccount:
		return ScopeAccount, nil
	case ScopeUser:
		return ScopeUser, nil
	case ScopeSession:
		return ScopeSession, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// Identifiers carries the hierarchy identifiers accompanying a request.
// Which fields are required depends on the scope.
type Identifiers struct {
	AccountID string
	UserID    string
	SessionID string
}

// Validate checks that the identifiers required by the given scope are
// present. Extra identifiers beyond the scope's requirement are allowed
// and ignored.
func (ids Identifiers) Validate(s Scope) error {
	switch s {
	case ScopeGlobal:
		return nil
	case ScopeAccount:
		if ids.AccountID == "" {
			return fmt.Errorf("%w %q", ErrMissingAccountID, s)
		}
		return nil
	case ScopeUser:
		if ids.AccountID == "" {
			return fmt.Errorf("%w %q", ErrMissingAccountID, s)
		}
		if ids.UserID == "" {
			return fmt.Errorf("%w %q", ErrMissingUserID, s)
		}
		return nil
	case ScopeSession:
		if ids.AccountID == "" {
			return fmt.Errorf("%w %q", ErrMissingAccountID, s)
		}
		if ids.UserID == "" {
			return fmt.Errorf("%w %q", ErrMissingUserID, s)
		}
		if ids.SessionID == "" {
			return fmt.Errorf("%w %q", ErrMissingSessionID, s)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// StoragePrefix builds the object storage path prefix for a scope:
// customer, then account, user, and session segments as the scope
// requires, in hierarchy order.
func StoragePrefix(customerID string, s Scope, ids Identifiers) (string, error) {
	if customerID == "" || !identifierPattern.MatchString(customerID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCustomerID, customerID)
	}
	if err := ids.Validate(s); err != nil {
		return "", err
	}

	segments := []string{customerID}
	switch s {
	case ScopeGlobal:
	case ScopeAccount:
		segments = append(segments, ids.AccountID)
	case ScopeUser:
		segments = append(segments, ids.AccountID, ids.UserID)
	case ScopeSession:
		segments = append(segments, ids.AccountID, ids.UserID, ids.SessionID)
	}
	return strings.Join(segments, "/"), nil
}

// Condition is one equality term of a scope filter.
type Condition struct {
	Field string
	Value string
}

// Filter is the backend-neutral visibility predicate. When Must is
// empty the predicate is just "is_global = true"; otherwise it is
// "(all Must conditions) OR is_global = true". Global documents are
// therefore visible from every scope.
type Filter struct {
	Scope Scope
	Must  []Condition
}

// BuildFilter validates the identifiers for the scope and produces the
// query predicate. The same predicate shape is used to tag units at
// upload and to filter at search and delete.
func BuildFilter(s Scope, ids Identifiers) (Filter, error) {
	if err := ids.Validate(s); err != nil {
		return Filter{}, err
	}

	f := Filter{Scope: s}
	switch s {
	case ScopeGlobal:
	case ScopeAccount:
		f.Must = []Condition{{FieldAccountID, ids.AccountID}}
	case ScopeUser:
		f.Must = []Condition{
			{FieldAccountID, ids.AccountID},
			{FieldUserID, ids.UserID},
		}
	case ScopeSession:
		f.Must = []Condition{
			{FieldAccountID, ids.AccountID},
			{FieldUserID, ids.UserID},
			{FieldSessionID, ids.SessionID},
		}
	}
	return f, nil
}

// Matches reports whether a unit tagged with the given identifiers is
// visible under the filter. Used by in-memory index fakes and tests;
// real backends translate the filter into their own query language.
func (f Filter) Matches(accountID, userID, sessionID string, isGlobal bool) bool {
	if isGlobal {
		return true
	}
	if len(f.Must) == 0 {
		// Global scope matches global documents only.
		return false
	}
	for _, c := range f.Must {
		var v string
		switch c.Field {
		case FieldAccountID:
			v = accountID
		case FieldUserID:
			v = userID
		case FieldSessionID:
			v = sessionID
		default:
			return false
		}
		if v != c.Value {
			return false
		}
	}
	return true
}
