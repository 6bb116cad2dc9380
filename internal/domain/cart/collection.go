package cart

import "github.com/shopspring/decimal"

// Collection is an insertion-ordered set of items keyed by Item.ID.
// It is not safe for concurrent use; Store guards it.
type Collection struct {
	items []Item
	index map[string]int
}

func NewCollection(items ...Item) *Collection {
	c := &Collection{index: make(map[string]int, len(items))}
	for _, it := range items {
		c.Add(it)
	}
	return c
}

// Add appends the item unless one with the same id is already present.
func (c *Collection) Add(item Item) bool {
	if _, ok := c.index[item.ID]; ok {
		return false
	}
	c.index[item.ID] = len(c.items)
	c.items = append(c.items, item)
	return true
}

func (c *Collection) Remove(id string) bool {
	pos, ok := c.index[id]
	if !ok {
		return false
	}
	c.items = append(c.items[:pos], c.items[pos+1:]...)
	delete(c.index, id)
	for i := pos; i < len(c.items); i++ {
		c.index[c.items[i].ID] = i
	}
	return true
}

func (c *Collection) Clear() {
	c.items = nil
	c.index = make(map[string]int)
}

func (c *Collection) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

func (c *Collection) Len() int { return len(c.items) }

// Items returns a copy of the items in insertion order.
func (c *Collection) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection) Total() decimal.Decimal {
	return Total(c.items)
}
