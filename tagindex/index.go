// Package tagindex builds an in-memory tag membership index over a store's
// services for filtering. It is rebuilt from a full listing and never
// persisted.
package tagindex

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jmcleod/ironpass/record"
)

// Lister returns every service in a store. *vault.Store satisfies it.
type Lister interface {
	ListAll(ctx context.Context, passphrase string) ([]*record.Service, error)
}

type entry struct {
	name string
	tags *Bitmap
}

// Index maps services to the tags they carry and tracks which tags are
// enabled as filters.
type Index struct {
	mu       sync.RWMutex
	tags     []string
	position map[string]int
	filter   *Bitmap
	services []entry
}

// New returns an empty index. Call Refresh to populate it.
func New() *Index {
	return &Index{
		position: map[string]int{},
		filter:   NewBitmap(0),
	}
}

// Refresh reloads every service and rebuilds the index. Filters on tags that
// still exist stay enabled.
func (x *Index) Refresh(ctx context.Context, l Lister, passphrase string) error {
	services, err := l.ListAll(ctx, passphrase)
	if err != nil {
		return err
	}
	x.Build(services)
	return nil
}

// Build replaces the index contents with services.
func (x *Index) Build(services []*record.Service) {
	var tags []string
	for _, svc := range services {
		tags = append(tags, svc.Tags...)
	}
	slices.Sort(tags)
	tags = slices.Compact(tags)

	position := make(map[string]int, len(tags))
	for i, t := range tags {
		position[t] = i
	}

	entries := make([]entry, 0, len(services))
	for _, svc := range services {
		bm := NewBitmap(len(tags))
		for _, t := range svc.Tags {
			bm.Set(position[t])
		}
		entries = append(entries, entry{name: svc.Name, tags: bm})
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.name, b.name) })

	x.mu.Lock()
	defer x.mu.Unlock()
	filter := NewBitmap(len(tags))
	for i, t := range x.tags {
		if x.filter.IsSet(i) {
			if p, ok := position[t]; ok {
				filter.Set(p)
			}
		}
	}
	x.tags = tags
	x.position = position
	x.filter = filter
	x.services = entries
}

// Tags returns every tag in use, sorted.
func (x *Index) Tags() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.tags)
}

// SetFilter enables or disables tag as a filter. Unknown tags are ignored
// and reported false.
func (x *Index) SetFilter(tag string, enabled bool) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	p, ok := x.position[tag]
	if !ok {
		return false
	}
	if enabled {
		x.filter.Set(p)
	} else {
		x.filter.Unset(p)
	}
	return true
}

// ClearFilters disables every filter.
func (x *Index) ClearFilters() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.filter = NewBitmap(len(x.tags))
}

// Filters returns the enabled filter tags, sorted.
func (x *Index) Filters() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []string
	for i, t := range x.tags {
		if x.filter.IsSet(i) {
			out = append(out, t)
		}
	}
	return out
}

// VisibleServices returns the sorted names of services carrying any enabled
// filter tag, or every service when no filter is enabled.
func (x *Index) VisibleServices() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	all := x.filter.Count() == 0
	out := make([]string, 0, len(x.services))
	for _, e := range x.services {
		if all || e.tags.Intersects(x.filter) {
			out = append(out, e.name)
		}
	}
	return out
}

// TagsOf returns the tags of service, sorted, or nil if it is not indexed.
func (x *Index) TagsOf(service string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.lookup(service)
	if !ok {
		return nil
	}
	out := []string{}
	for i, t := range x.tags {
		if e.tags.IsSet(i) {
			out = append(out, t)
		}
	}
	return out
}

func (x *Index) lookup(service string) (entry, bool) {
	i, ok := slices.BinarySearchFunc(x.services, service, func(e entry, name string) int {
		return strings.Compare(e.name, name)
	})
	if !ok {
		return entry{}, false
	}
	return x.services[i], true
}

// NotInServices returns an error if name is already a service.
func (x *Index) NotInServices(name string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if _, ok := x.lookup(name); ok {
		return fmt.Errorf("%s already exists", name)
	}
	return nil
}

// NotInTags returns an error if service already carries tag.
func (x *Index) NotInTags(service, tag string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.lookup(service)
	if !ok {
		return nil
	}
	if p, ok := x.position[tag]; ok && e.tags.IsSet(p) {
		return fmt.Errorf("%s already has tag %s", service, tag)
	}
	return nil
}
