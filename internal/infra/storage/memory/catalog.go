package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	appchat "petchat/internal/app/chat"
	domainchat "petchat/internal/domain/chat"
)

// Catalog serves listing and user display data loaded from fixtures.
type Catalog struct {
	mu       sync.RWMutex
	listings map[string]appchat.Listing
	users    map[string]appchat.User
}

// CatalogFixtures is the on-disk fixtures format.
type CatalogFixtures struct {
	Listings []appchat.Listing `json:"listings"`
	Users    []appchat.User    `json:"users"`
}

func NewCatalog() *Catalog {
	return &Catalog{
		listings: make(map[string]appchat.Listing),
		users:    make(map[string]appchat.User),
	}
}

// LoadCatalogFile reads fixtures from path. A missing file yields an empty
// catalog.
func LoadCatalogFile(path string) (*Catalog, error) {
	c := NewCatalog()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read catalog fixtures: %w", err)
	}
	if len(data) == 0 {
		return c, nil
	}
	var fx CatalogFixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode catalog fixtures: %w", err)
	}
	c.Load(fx)
	return c, nil
}

func (c *Catalog) Load(fx CatalogFixtures) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range fx.Listings {
		c.listings[l.ID] = l
	}
	for _, u := range fx.Users {
		c.users[u.ID] = u
	}
}

func (c *Catalog) PutListing(l appchat.Listing) {
	c.mu.Lock()
	c.listings[l.ID] = l
	c.mu.Unlock()
}

func (c *Catalog) PutUser(u appchat.User) {
	c.mu.Lock()
	c.users[u.ID] = u
	c.mu.Unlock()
}

func (c *Catalog) Listing(ctx context.Context, id string) (appchat.Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.listings[id]
	if !ok {
		return appchat.Listing{}, domainchat.ErrListingNotFound
	}
	return l, nil
}

func (c *Catalog) User(ctx context.Context, id string) (appchat.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	if !ok {
		return appchat.User{}, domainchat.ErrUserNotFound
	}
	return u, nil
}

var _ appchat.Catalog = (*Catalog)(nil)
