// Package catalog provides asset catalogs: an in-memory one and one stored in SQLite.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cschleiden/go-mediaflow/stages"
)

type MemoryCatalog struct {
	mu   sync.Mutex
	docs map[string]stages.Document
}

var _ stages.Catalog = (*MemoryCatalog)(nil)

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		docs: make(map[string]stages.Document),
	}
}

func (c *MemoryCatalog) Insert(_ context.Context, key string, doc stages.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[key]; ok {
		return fmt.Errorf("inserting %s: %w", key, stages.ErrAssetExists)
	}

	c.docs[key] = doc.Clone()

	return nil
}

func (c *MemoryCatalog) Revive(_ context.Context, key string, doc stages.Document, entry stages.AuditEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.docs[key]
	if !ok {
		return fmt.Errorf("reviving %s: %w", key, stages.ErrAssetNotFound)
	}

	if existing.Location() != stages.LocationDelete {
		return fmt.Errorf("reviving %s: %w", key, stages.ErrAssetExists)
	}

	existing.Revive(doc.Clone(), entry)

	return nil
}

func (c *MemoryCatalog) Update(_ context.Context, key string, fields map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[key]
	if !ok {
		return fmt.Errorf("updating %s: %w", key, stages.ErrAssetNotFound)
	}

	for k, v := range stages.Document(fields).Clone() {
		doc[k] = v
	}

	return nil
}

func (c *MemoryCatalog) Relocate(_ context.Context, key, location string, entry stages.AuditEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[key]
	if !ok {
		return fmt.Errorf("relocating %s: %w", key, stages.ErrAssetNotFound)
	}

	doc[stages.DocFileLocation] = location
	doc.AddAudit(entry)

	return nil
}

func (c *MemoryCatalog) Get(_ context.Context, key string) (stages.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[key]
	if !ok {
		return nil, fmt.Errorf("getting %s: %w", key, stages.ErrAssetNotFound)
	}

	return doc.Clone(), nil
}

// Keys returns the keys of all assets in the catalog, sorted.
func (c *MemoryCatalog) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.docs))
	for k := range c.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
