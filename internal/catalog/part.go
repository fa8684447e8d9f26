// Package catalog holds the immutable part catalog the builder draws from.
package catalog

// PartType classifies a catalog part.
type PartType string

const (
	TypeBase    PartType = "base"
	TypeSauce   PartType = "sauce"
	TypeFilling PartType = "filling"
)

// Valid reports whether the part type is one of the known categories.
func (t PartType) Valid() bool {
	switch t {
	case TypeBase, TypeSauce, TypeFilling:
		return true
	}
	return false
}

// Part is a catalog entity. Parts are immutable once loaded; usage counts
// for the active builder are tracked separately by the builder engine.
type Part struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	Type          PartType `json:"type"`
	Price         int      `json:"price"`
	Calories      int      `json:"calories"`
	Proteins      int      `json:"proteins"`
	Fat           int      `json:"fat"`
	Carbohydrates int      `json:"carbohydrates"`
	Image         string   `json:"image"`
	ImageMobile   string   `json:"image_mobile"`
	ImageLarge    string   `json:"image_large"`
}

// IsBase reports whether the part can serve as the builder's base.
func (p Part) IsBase() bool {
	return p.Type == TypeBase
}

// Catalog is an indexed, read-only collection of parts.
type Catalog struct {
	parts []Part
	byID  map[string]Part
}

// New builds a catalog from a list of parts. Later duplicates of an id
// overwrite earlier ones in the index.
func New(parts []Part) *Catalog {
	byID := make(map[string]Part, len(parts))
	for _, p := range parts {
		byID[p.ID] = p
	}
	return &Catalog{parts: parts, byID: byID}
}

// Lookup returns the part with the given id.
func (c *Catalog) Lookup(id string) (Part, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Parts returns all parts in catalog order.
func (c *Catalog) Parts() []Part {
	return c.parts
}

// Len returns the number of parts in the catalog.
func (c *Catalog) Len() int {
	return len(c.parts)
}
