package access

import "strings"

// Access level roles ordered by increasing privilege. A caller holding
// RoleNoAccess is denied everything regardless of any other role. For write
// operations manager and editor grant unconditionally, author grants only when
// the caller is named in the write ACL. For read operations only manager
// grants unconditionally.
const (
	RoleNoAccess = "noaccess"
	RoleReader   = "reader"
	RoleAuthor   = "author"
	RoleEditor   = "editor"
	RoleManager  = "manager"
)

// Principal identifies a caller. It replaces any ambient security context:
// every store operation receives the principal explicitly.
type Principal struct {
	Name  string
	Roles []string
}

// Anonymous is the principal used for unauthenticated callers.
var Anonymous = Principal{Name: ""}

// HasRole reports whether the principal holds the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NameList returns the principal name followed by all roles, skipping blanks.
// The list is matched case sensitive against ACL entries.
func (p Principal) NameList() []string {
	out := make([]string, 0, len(p.Roles)+1)
	if strings.TrimSpace(p.Name) != "" {
		out = append(out, p.Name)
	}
	for _, r := range p.Roles {
		if strings.TrimSpace(r) != "" {
			out = append(out, r)
		}
	}
	return out
}

// contained reports whether at least one entry of the principal's name list
// appears in the given ACL list. Blank ACL entries are ignored.
func contained(acl []string, p Principal) bool {
	names := p.NameList()
	for _, entry := range acl {
		if entry == "" {
			continue
		}
		for _, n := range names {
			if n == entry {
				return true
			}
		}
	}
	return false
}

// IsEmptyList reports whether the list is empty or contains only blank
// entries. A list of blanks behaves exactly like an empty list.
func IsEmptyList(list []string) bool {
	for _, e := range list {
		if e != "" && strings.TrimSpace(e) != "" {
			return false
		}
	}
	return true
}

// CanRead decides read permission for a document based on its read ACL.
//
//  1. noaccess denies unconditionally
//  2. manager grants unconditionally
//  3. an effectively empty read ACL grants to everyone, otherwise the
//     principal's name/role set must intersect the ACL
func CanRead(readACL []string, p Principal) bool {
	if p.HasRole(RoleNoAccess) {
		return false
	}
	if p.HasRole(RoleManager) {
		return true
	}
	return IsEmptyList(readACL) || contained(readACL, p)
}

// CanWrite decides write permission for a document based on its write ACL.
//
//  1. noaccess denies unconditionally
//  2. manager and editor grant unconditionally
//  3. author grants when the ACL is effectively empty or intersects the
//     principal's name/role set; all lower levels are denied
func CanWrite(writeACL []string, p Principal) bool {
	if p.HasRole(RoleNoAccess) {
		return false
	}
	if p.HasRole(RoleManager) || p.HasRole(RoleEditor) {
		return true
	}
	if p.HasRole(RoleAuthor) {
		return IsEmptyList(writeACL) || contained(writeACL, p)
	}
	return false
}

// CanCreate reports whether the principal is allowed to create new documents.
func CanCreate(p Principal) bool {
	if p.HasRole(RoleNoAccess) {
		return false
	}
	return p.HasRole(RoleManager) || p.HasRole(RoleEditor) || p.HasRole(RoleAuthor)
}
