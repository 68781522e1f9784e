package document

import (
	"github.com/docuvault/docuvault/internal/document/store"
)

// FromRecord reconstitutes the attribute-bag view of a persisted record. The
// store-owned items are projected back into the map so callers see one flat
// document.
func FromRecord(rec *store.Record) *Document {
	d := FromItems(store.CloneData(rec.Data))
	d.SetItem(ItemUniqueID, rec.ID)
	d.SetItem(ItemType, rec.Type)
	d.SetItem(ItemVersion, rec.Version)
	d.SetItem(ItemCreated, rec.Created)
	d.SetItem(ItemModified, rec.Modified)
	return d
}

// ToRecord splits a document into the persisted record form. The store-owned
// items move into their record columns; everything else stays in the data
// map. The caller owns setting Version, Created and Modified before writing.
func ToRecord(d *Document) *store.Record {
	rec := &store.Record{
		ID:       d.ID(),
		Type:     d.Type(),
		Version:  d.Version(),
		Created:  d.GetTime(ItemCreated),
		Modified: d.GetTime(ItemModified),
		Data:     store.CloneData(d.Items()),
	}
	for _, name := range []string{ItemUniqueID, ItemType, ItemVersion, ItemCreated, ItemModified} {
		delete(rec.Data, name)
	}
	return rec
}
