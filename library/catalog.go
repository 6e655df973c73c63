package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

// resourceKeyPrefix is the key prefix shared by every resource record.
var resourceKeyPrefix = types.ResourceKey("")

// Catalog persists Resource records in the chunk store under
// types.ResourceKey.
type Catalog struct {
	store store.Store
}

// NewCatalog returns a catalog backed by st.
func NewCatalog(st store.Store) *Catalog {
	return &Catalog{store: st}
}

// Save writes r, replacing any previous record.
func (c *Catalog) Save(ctx context.Context, r *types.Resource) error {
	b, err := types.EncodeResource(r)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, types.ResourceKey(r.ID), b); err != nil {
		return fmt.Errorf("save resource %s: %w", r.ID, err)
	}
	return nil
}

// Load reads the record of id. Returns an error matching
// store.ErrNotFound when there is none.
func (c *Catalog) Load(ctx context.Context, id string) (*types.Resource, error) {
	b, err := c.store.Get(ctx, types.ResourceKey(id))
	if err != nil {
		return nil, fmt.Errorf("load resource %s: %w", id, err)
	}
	return types.DecodeResource(b)
}

// List returns every stored record ordered by key. Records removed
// while listing are skipped.
func (c *Catalog) List(ctx context.Context) ([]*types.Resource, error) {
	keys, err := c.store.List(ctx, resourceKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	out := make([]*types.Resource, 0, len(keys))
	for _, key := range keys {
		r, err := c.Load(ctx, strings.TrimPrefix(key, resourceKeyPrefix))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Delete removes the record of id. Deleting a missing record is not an
// error.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.store.Destroy(ctx, types.ResourceKey(id)); err != nil {
		return fmt.Errorf("delete resource %s: %w", id, err)
	}
	return nil
}
