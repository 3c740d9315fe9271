// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RoleAdmin is the portal-wide operator role; partner admins carry RolePartnerAdmin.
const (
	RoleAdmin        = "admin"
	RolePartnerAdmin = "partner_admin"
)

// Identity represents the authenticated user's identity.
// Handlers read it instead of reaching into gin context keys.
type Identity interface {
	// UserID returns the authenticated user's ID.
	UserID() uuid.UUID
	// PartnerID returns the partner the user belongs to, if any.
	PartnerID() *uuid.UUID
	// Roles returns the user's assigned roles.
	Roles() []string
	// HasRole checks if the user has a specific role.
	HasRole(role string) bool
	// IsAuthenticated returns true if the user is authenticated.
	IsAuthenticated() bool
}

type identity struct {
	userID        uuid.UUID
	partnerID     *uuid.UUID
	roles         []string
	authenticated bool
}

func (i *identity) UserID() uuid.UUID {
	return i.userID
}

func (i *identity) PartnerID() *uuid.UUID {
	return i.partnerID
}

func (i *identity) Roles() []string {
	return i.roles
}

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if user info is not present.
func GetIdentity(c *gin.Context) Identity {
	userID, userOK := c.Get(ContextUserIDKey)
	if !userOK {
		return &identity{authenticated: false}
	}

	uid, ok := userID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	var roleList []string
	if roles, ok := c.Get(ContextRolesKey); ok {
		roleList, _ = roles.([]string)
	}

	var partnerID *uuid.UUID
	if raw, ok := c.Get(ContextPartnerIDKey); ok {
		if pid, ok := raw.(uuid.UUID); ok {
			partnerID = &pid
		}
	}

	return &identity{
		userID:        uid,
		partnerID:     partnerID,
		roles:         roleList,
		authenticated: true,
	}
}

// MustGetIdentity returns the identity or aborts with 401 and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		abortUnauthorized(c, errMissingToken)
		return nil
	}
	return id
}
