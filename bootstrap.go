package dinsd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitdancer/dinsd/catalog"
	"github.com/bitdancer/dinsd/rel"
	"github.com/bitdancer/dinsd/store"
)

// loadCatalog reconstructs cat's entries from st's persisted metadata and
// rows, spec.md §4.6: on open, every relation's header, declared key, row
// constraints and current contents are read back from the backing store
// before any client can see the database. This bypasses the transaction
// manager entirely, the same way the teacher's storage/inmem store installs
// its initial document tree directly rather than through a Txn.
func loadCatalog(ctx context.Context, st store.Store, cat *catalog.Catalog, ns *rel.Namespace) error {
	headers, err := st.ListMeta(ctx, store.RelationMetaPrefix())
	if err != nil {
		return fmt.Errorf("loading relation catalog: %w", err)
	}

	for metaKey, hdrBytes := range headers {
		name := store.RelationNameFromMetaKey(metaKey)

		header, err := store.DecodeHeader(hdrBytes, ns)
		if err != nil {
			return fmt.Errorf("loading relation %q: %w", name, err)
		}

		constraints, err := loadConstraints(ctx, st, name)
		if err != nil {
			return err
		}

		keyAttrs, err := loadKey(ctx, st, name)
		if err != nil {
			return err
		}

		r, err := loadRelation(ctx, st, name, header)
		if err != nil {
			return err
		}

		cat.Load(name, header, r, keyAttrs, constraints)
	}

	return nil
}

func loadConstraints(ctx context.Context, st store.Store, name string) (map[string]string, error) {
	blobs, err := st.ListMeta(ctx, store.ConstraintMetaPrefix(name))
	if err != nil {
		return nil, fmt.Errorf("loading constraints for relation %q: %w", name, err)
	}
	prefix := store.ConstraintMetaPrefix(name)
	out := make(map[string]string, len(blobs))
	for key, src := range blobs {
		cname := strings.TrimPrefix(key, prefix)
		out[cname] = string(src)
	}
	return out, nil
}

func loadKey(ctx context.Context, st store.Store, name string) ([]string, error) {
	blob, err := st.LoadMeta(ctx, store.KeyMetaKey(name))
	if errors.Is(err, store.ErrMetaNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading key for relation %q: %w", name, err)
	}
	attrs, err := store.DecodeKey(blob)
	if err != nil {
		return nil, fmt.Errorf("loading key for relation %q: %w", name, err)
	}
	return attrs, nil
}

func loadRelation(ctx context.Context, st store.Store, name string, header rel.Header) (rel.Relation, error) {
	storedRows, err := st.ListRows(ctx, name)
	if err != nil {
		return rel.Relation{}, fmt.Errorf("loading rows for relation %q: %w", name, err)
	}
	rows := make([]rel.Row, 0, len(storedRows))
	for _, sr := range storedRows {
		row, err := store.DecodeRow(sr.Columns, header)
		if err != nil {
			return rel.Relation{}, fmt.Errorf("decoding row for relation %q: %w", name, err)
		}
		rows = append(rows, row)
	}
	r, err := rel.FromRows(header, rows)
	if err != nil {
		return rel.Relation{}, fmt.Errorf("assembling relation %q: %w", name, err)
	}
	return r, nil
}
