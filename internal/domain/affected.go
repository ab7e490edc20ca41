package domain

import "sort"

// ResourceType names a cacheable resource family.
type ResourceType string

const (
	ResourceCatalog     ResourceType = "catalog"
	ResourceCatalogList ResourceType = "catalog_list"
	ResourceChapter     ResourceType = "chapter"
	ResourcePage        ResourceType = "page"
	ResourceComments    ResourceType = "comments"
	ResourceReadingList ResourceType = "reading_list"
)

// Resource identifies one cache entry a mutation has made stale.
type Resource struct {
	Type ResourceType `json:"type"`
	ID   string       `json:"id"`
}

// String renders the resource as "type:id".
func (r Resource) String() string {
	return string(r.Type) + ":" + r.ID
}

// Affected is the set of resources invalidated by a mutation.
type Affected struct {
	items map[Resource]struct{}
}

// NewAffected builds a set from the provided resources.
func NewAffected(resources ...Resource) Affected {
	affected := Affected{}
	affected.Add(resources...)
	return affected
}

// Add inserts resources into the set.
func (a *Affected) Add(resources ...Resource) {
	if a.items == nil {
		a.items = make(map[Resource]struct{}, len(resources))
	}
	for _, resource := range resources {
		if resource.ID == "" {
			continue
		}
		a.items[resource] = struct{}{}
	}
}

// Contains reports whether the resource is part of the set.
func (a Affected) Contains(resource Resource) bool {
	_, ok := a.items[resource]
	return ok
}

// Len returns the number of resources.
func (a Affected) Len() int {
	return len(a.items)
}

// Resources returns the set ordered by type then id.
func (a Affected) Resources() []Resource {
	resources := make([]Resource, 0, len(a.items))
	for resource := range a.items {
		resources = append(resources, resource)
	}
	sort.Slice(resources, func(i, j int) bool {
		if resources[i].Type != resources[j].Type {
			return resources[i].Type < resources[j].Type
		}
		return resources[i].ID < resources[j].ID
	})
	return resources
}

// Strings returns the set rendered as "type:id" values.
func (a Affected) Strings() []string {
	resources := a.Resources()
	values := make([]string, len(resources))
	for i, resource := range resources {
		values[i] = resource.String()
	}
	return values
}

func Catalog(id string) Resource     { return Resource{Type: ResourceCatalog, ID: id} }
func CatalogList(id string) Resource { return Resource{Type: ResourceCatalogList, ID: id} }
func Chapter(id string) Resource     { return Resource{Type: ResourceChapter, ID: id} }
func Page(id string) Resource        { return Resource{Type: ResourcePage, ID: id} }
func Comments(id string) Resource    { return Resource{Type: ResourceComments, ID: id} }
func ReadingList(id string) Resource { return Resource{Type: ResourceReadingList, ID: id} }
