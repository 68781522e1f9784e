package document

import (
	"strconv"
	"time"
)

// Reserved item names. These are part of the storage contract and are managed
// by the store; callers may read them but the store overwrites them on save.
const (
	ItemUniqueID    = "$uniqueid"
	ItemVersion     = "$version"
	ItemCreated     = "$created"
	ItemModified    = "$modified"
	ItemType        = "type"
	ItemReadAccess  = "$readaccess"
	ItemWriteAccess = "$writeaccess"
	ItemNoIndex     = "$noindex"
	ItemIsAuthor    = "$isauthor"
	ItemImmutable   = "$immutable"
	ItemUniqueIDRef = "$uniqueidref"
)

// DefaultType is assigned when a document is saved without a type attribute.
const DefaultType = "document"

// Document is the generic attribute bag persisted by the store. Every item
// maps a name to one or more scalar values (string, bool, int, int64,
// float64, time.Time). A Document is a plain value object; it is never
// managed by the storage layer, so mutating it after a Load or Save has no
// effect on the persisted record.
type Document struct {
	items map[string][]any
}

// New returns an empty document.
func New() *Document {
	return &Document{items: map[string][]any{}}
}

// FromItems builds a document over the given attribute map. The map is taken
// by reference; use Clone when an independent copy is required.
func FromItems(items map[string][]any) *Document {
	if items == nil {
		items = map[string][]any{}
	}
	return &Document{items: items}
}

// Items exposes the underlying attribute map.
func (d *Document) Items() map[string][]any {
	return d.items
}

// Clone returns a deep copy of the document. Values are scalars, so copying
// the value slices is sufficient.
func (d *Document) Clone() *Document {
	c := New()
	for k, v := range d.items {
		vals := make([]any, len(v))
		copy(vals, v)
		c.items[k] = vals
	}
	return c
}

// SetItem replaces all values of an item.
func (d *Document) SetItem(name string, values ...any) *Document {
	d.items[name] = values
	return d
}

// AppendItem adds a value to an item.
func (d *Document) AppendItem(name string, value any) *Document {
	d.items[name] = append(d.items[name], value)
	return d
}

// RemoveItem deletes an item.
func (d *Document) RemoveItem(name string) {
	delete(d.items, name)
}

// HasItem reports whether an item exists.
func (d *Document) HasItem(name string) bool {
	_, ok := d.items[name]
	return ok
}

// GetItem returns all values of an item, or nil.
func (d *Document) GetItem(name string) []any {
	return d.items[name]
}

// GetString returns the first value of an item rendered as a string.
func (d *Document) GetString(name string) string {
	v := d.items[name]
	if len(v) == 0 || v[0] == nil {
		return ""
	}
	return Stringify(v[0])
}

// GetStringList returns all values of an item rendered as strings.
func (d *Document) GetStringList(name string) []string {
	v := d.items[name]
	out := make([]string, 0, len(v))
	for _, e := range v {
		if e == nil {
			continue
		}
		out = append(out, Stringify(e))
	}
	return out
}

// GetBool returns the first value of an item interpreted as a boolean.
func (d *Document) GetBool(name string) bool {
	v := d.items[name]
	if len(v) == 0 {
		return false
	}
	switch b := v[0].(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}

// GetInt returns the first value of an item interpreted as an int.
func (d *Document) GetInt(name string) int {
	v := d.items[name]
	if len(v) == 0 {
		return 0
	}
	switch n := v[0].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

// GetTime returns the first value of an item as a time.Time, or the zero time.
func (d *Document) GetTime(name string) time.Time {
	v := d.items[name]
	if len(v) == 0 {
		return time.Time{}
	}
	if t, ok := v[0].(time.Time); ok {
		return t
	}
	return time.Time{}
}

// ID returns the $uniqueid item.
func (d *Document) ID() string {
	return d.GetString(ItemUniqueID)
}

// Type returns the type item.
func (d *Document) Type() string {
	return d.GetString(ItemType)
}

// Version returns the $version item.
func (d *Document) Version() int {
	return d.GetInt(ItemVersion)
}

// ReadAccess returns the read ACL entries.
func (d *Document) ReadAccess() []string {
	return d.GetStringList(ItemReadAccess)
}

// WriteAccess returns the write ACL entries.
func (d *Document) WriteAccess() []string {
	return d.GetStringList(ItemWriteAccess)
}

// NoIndex reports whether the document is excluded from the search index.
func (d *Document) NoIndex() bool {
	return d.GetBool(ItemNoIndex)
}

// Immutable reports whether the document rejects further saves.
func (d *Document) Immutable() bool {
	return d.GetBool(ItemImmutable)
}

// Stringify renders a scalar item value as a string. Timestamps use the
// compact index date format so rendered values sort lexicographically.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(IndexDateFormat)
	default:
		return ""
	}
}

// IndexDateFormat is the layout used for date values in the search index.
const IndexDateFormat = "20060102150405"
