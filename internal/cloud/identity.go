package cloud

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/shared"
)

// IdentityStore persists linked accounts.
type IdentityStore interface {
	ListIdentities(ctx context.Context) ([]models.CloudIdentity, error)
	SaveIdentity(ctx context.Context, id models.CloudIdentity) error
	DeleteIdentity(ctx context.Context, userID uint) error
}

// Identity is the mutable state of one linked account: its ids, sync flags and link registry.
//
// Every change is written through to the store when one is set.
type Identity struct {
	mu     sync.RWMutex
	data   models.CloudIdentity
	store  IdentityStore
	logger *log.Logger
}

// NewIdentity wraps data. store may be nil.
func NewIdentity(data models.CloudIdentity, store IdentityStore, logger *log.Logger) *Identity {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Identity{data: data.Clone(), store: store, logger: logger.With("component", "identity", "user", data.UserID)}
}

// Snapshot returns a copy of the identity.
func (i *Identity) Snapshot() models.CloudIdentity {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data.Clone()
}

func (i *Identity) UserID() uint {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data.UserID
}

func (i *Identity) DeviceID() uint {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data.DeviceID
}

func (i *Identity) ConfigurationID() uint {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data.ConfigurationID
}

func (i *Identity) Flags() models.SyncFlags {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data.Flags
}

// update applies fn under the lock and persists the result.
func (i *Identity) update(fn func(d *models.CloudIdentity)) {
	i.mu.Lock()
	fn(&i.data)
	snap := i.data.Clone()
	i.mu.Unlock()

	if i.store == nil {
		return
	}
	if err := i.store.SaveIdentity(context.Background(), snap); err != nil {
		i.logger.Warn("failed to persist identity", "error", err)
	}
}

func (i *Identity) SetDeviceID(id uint) {
	i.update(func(d *models.CloudIdentity) { d.DeviceID = id })
}

func (i *Identity) SetConfigurationID(id uint) {
	i.update(func(d *models.CloudIdentity) { d.ConfigurationID = id })
}

func (i *Identity) SetFlags(f models.SyncFlags) {
	i.update(func(d *models.CloudIdentity) { d.Flags = f })
}

// Links returns the registry in order.
func (i *Identity) Links() []models.Link {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Clone(i.data.Links)
}

// Link returns the link with the given id.
func (i *Identity) Link(id uint) (models.Link, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if idx := i.linkIndex(id); idx >= 0 {
		return i.data.Links[idx], true
	}
	return models.Link{}, false
}

func (i *Identity) linkIndex(id uint) int {
	return slices.IndexFunc(i.data.Links, func(l models.Link) bool { return l.ID == id })
}

// UpsertLink replaces the link with the same id or appends it.
func (i *Identity) UpsertLink(l models.Link) {
	i.update(func(d *models.CloudIdentity) {
		if idx := slices.IndexFunc(d.Links, func(x models.Link) bool { return x.ID == l.ID }); idx >= 0 {
			d.Links[idx] = l
			return
		}
		d.Links = append(d.Links, l)
	})
}

// ReplaceLinks sets the whole registry.
func (i *Identity) ReplaceLinks(links []models.Link) {
	i.update(func(d *models.CloudIdentity) { d.Links = slices.Clone(links) })
}

// RemoveLink drops the link with the given id. It reports whether one was removed.
func (i *Identity) RemoveLink(id uint) bool {
	removed := false
	i.update(func(d *models.CloudIdentity) {
		n := len(d.Links)
		d.Links = slices.DeleteFunc(d.Links, func(l models.Link) bool { return l.ID == id })
		removed = len(d.Links) != n
	})
	return removed
}

// SetLinkFlag toggles the user's choice for a capability the provider grants.
func (i *Identity) SetLinkFlag(id uint, flag models.LinkFlag, v bool) (models.Link, error) {
	var (
		out models.Link
		err error
	)
	i.update(func(d *models.CloudIdentity) {
		idx := slices.IndexFunc(d.Links, func(l models.Link) bool { return l.ID == id })
		if idx < 0 {
			err = fmt.Errorf("%w: %d", shared.ErrLinkNotFound, id)
			return
		}
		if v && !d.Links[idx].Can(flag) {
			err = fmt.Errorf("%w: %s does not allow %s", shared.ErrInvalidArgument, d.Links[idx].Provider, flag)
			return
		}
		d.Links[idx].SetDo(flag, v)
		out = d.Links[idx]
	})
	return out, err
}

// Accounts holds one [Identity] per linked user.
type Accounts struct {
	mu     sync.RWMutex
	byUser map[uint]*Identity
	order  []uint
	store  IdentityStore
	logger *log.Logger
}

// NewAccounts creates an empty registry. store may be nil.
func NewAccounts(store IdentityStore, logger *log.Logger) *Accounts {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Accounts{byUser: map[uint]*Identity{}, store: store, logger: logger}
}

// Load fills the registry from the store.
func (a *Accounts) Load(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	ids, err := a.store.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		if _, ok := a.byUser[id.UserID]; !ok {
			a.order = append(a.order, id.UserID)
		}
		a.byUser[id.UserID] = NewIdentity(id, a.store, a.logger)
	}
	return nil
}

// Link registers (or replaces) the identity of a linked account and persists it.
func (a *Accounts) Link(ctx context.Context, data models.CloudIdentity) (*Identity, error) {
	if data.UserID == 0 {
		return nil, fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}
	if a.store != nil {
		if err := a.store.SaveIdentity(ctx, data); err != nil {
			return nil, fmt.Errorf("failed to save identity: %w", err)
		}
	}

	id := NewIdentity(data, a.store, a.logger)
	a.mu.Lock()
	if _, ok := a.byUser[data.UserID]; !ok {
		a.order = append(a.order, data.UserID)
	}
	a.byUser[data.UserID] = id
	a.mu.Unlock()
	return id, nil
}

// Delink forgets a linked account.
func (a *Accounts) Delink(ctx context.Context, userID uint) error {
	a.mu.Lock()
	_, ok := a.byUser[userID]
	delete(a.byUser, userID)
	a.order = slices.DeleteFunc(a.order, func(u uint) bool { return u == userID })
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: user %d", shared.ErrNotLinked, userID)
	}
	if a.store != nil {
		if err := a.store.DeleteIdentity(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete identity: %w", err)
		}
	}
	return nil
}

// Get returns the identity of a linked user.
func (a *Accounts) Get(userID uint) (*Identity, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.byUser[userID]
	return id, ok
}

// Primary returns the first linked account.
func (a *Accounts) Primary() (*Identity, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.order) == 0 {
		return nil, shared.ErrNotLinked
	}
	return a.byUser[a.order[0]], nil
}

// List returns snapshots of every linked account in link order.
func (a *Accounts) List() []models.CloudIdentity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.CloudIdentity, 0, len(a.order))
	for _, u := range a.order {
		out = append(out, a.byUser[u].Snapshot())
	}
	return out
}
