package catalog

import (
	"github.com/bitdancer/dinsd/rel"
	"github.com/bitdancer/dinsd/txn"
)

// Create declares a new persistent relation named name with the given
// header, spec.md §4.3: fails with name-invalid if name isn't a usable
// identifier, and with relation-exists if the catalog (as seen through f)
// already has one by that name. The new relation starts empty, with no
// declared key and no row constraints.
func (c *Catalog) Create(f *txn.Frame, name string, header rel.Header) error {
	if !rel.IsValidRelationName(name) {
		return nameInvalidErr(name)
	}
	if _, ok := f.View(name); ok {
		return relationExistsErr(name)
	}
	f.Write(name, txn.Snapshot{
		Header:      header,
		R:           rel.New(header),
		Constraints: map[string]string{},
	})
	return nil
}

// Drop removes a persistent relation from the catalog entirely, spec.md
// §4.3. The outgoing snapshot still carries the relation's last Key and
// Constraints so the eventual flush can clean up their metadata entries.
func (c *Catalog) Drop(f *txn.Frame, name string) error {
	snap, ok := f.View(name)
	if !ok {
		return unknownRelationErr(name)
	}
	f.Write(name, txn.Snapshot{
		Header:      snap.Header,
		Key:         snap.Key,
		Constraints: snap.Constraints,
		Removed:     true,
	})
	return nil
}
