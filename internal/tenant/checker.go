package tenant

import (
	"context"

	"github.com/nocodeci/wozif-gateway/internal/cache"
	"github.com/nocodeci/wozif-gateway/internal/logging"
)

// Availability is the backend's answer to a slug existence lookup.
type Availability struct {
	Exists  bool   `json:"exists"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// AvailabilityLookup is the external collaborator answering whether a slug
// is already taken. The resolver never decides existence locally.
type AvailabilityLookup interface {
	CheckSlug(ctx context.Context, slug string) (Availability, error)
}

// Checker combines local slug validation with the remote availability
// lookup, caching results so repeated checks during store creation do not
// hammer the backend.
type Checker struct {
	lookup AvailabilityLookup
	cache  *cache.Cache[Availability]
	log    *logging.Logger
}

// NewChecker builds a Checker. The cache may be shared with other
// consumers; the checker only touches its own key template.
func NewChecker(lookup AvailabilityLookup, c *cache.Cache[Availability], log *logging.Logger) *Checker {
	if log == nil {
		log = logging.NewNop()
	}
	return &Checker{lookup: lookup, cache: c, log: log}
}

// Check validates candidate and, when it is well-formed, asks the backend
// whether it exists. Validation failures return the rejection directly;
// reserved words never reach the network.
func (c *Checker) Check(ctx context.Context, candidate string) (ID, Availability, error) {
	id, err := Resolve(candidate)
	if err != nil {
		return None, Availability{}, err
	}

	key := cache.SlugCheckKey(id.String())
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return id, cached, nil
		}
	}

	avail, err := c.lookup.CheckSlug(ctx, id.String())
	if err != nil {
		// Treated as a cache miss by callers: log and propagate so the UI
		// can retry, without poisoning the cache.
		c.log.WithContext(ctx).WithError(err).Warn("slug availability lookup failed")
		return id, Availability{}, err
	}

	if c.cache != nil {
		c.cache.Set(key, avail)
	}
	return id, avail, nil
}
