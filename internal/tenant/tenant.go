package tenant

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/doghouse-io/doghouse/internal/apperr"
)

// Tenant is an isolated namespace (a "backend") owning its own
// credentials, data and settings.
type Tenant struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	OwnerID   string    `json:"ownerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RootID is the id of the single root tenant. It exists from bootstrap
// and can never be deleted; superdog records live only here.
const RootID = "doghouse"

// Naming rules for tenant ids.
var (
	idPattern = regexp.MustCompile(`^[a-z0-9]{4,}$`)

	// reservedSubstrings may not appear anywhere in a tenant id.
	reservedSubstrings = []string{"doghouse", "superdog"}

	// reservedPrefixes may not start a tenant id.
	reservedPrefixes = []string{"api", "www"}
)

// CheckID validates a tenant id against the naming rules. The root id
// itself passes; it is simply never creatable nor deletable.
func CheckID(id string) error {
	if id == RootID {
		return nil
	}
	if !idPattern.MatchString(id) {
		return apperr.New(apperr.EInvalidParameter,
			"backend id [%s] must be lowercase alphanumeric and at least 4 characters", id)
	}
	for _, s := range reservedSubstrings {
		if strings.Contains(id, s) {
			return apperr.New(apperr.EInvalidParameter, "backend id [%s] contains reserved [%s]", id, s)
		}
	}
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(id, p) {
			return apperr.New(apperr.EInvalidParameter, "backend id [%s] starts with reserved [%s]", id, p)
		}
	}
	return nil
}

// Repository defines the interface for tenant persistence.
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
}
