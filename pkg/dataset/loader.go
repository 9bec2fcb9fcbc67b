package dataset

import (
	"context"
	"slices"
)

// Loader loads process tables with a shared declaration. A declaration
// without variables is completed per file from the CSV header.
type Loader struct {
	Schema Schema
	// Cache, when set, memoises loaded tables.
	Cache *Cache
	// OnCacheLookup observes every cache lookup.
	OnCacheLookup func(ctx context.Context, hit bool)
}

// Load reads the table at path.
func (l *Loader) Load(ctx context.Context, path string) (*Table, error) {
	schema, err := l.ResolveSchema(path)
	if err != nil {
		return nil, err
	}

	if l.Cache == nil {
		return LoadCSV(path, schema)
	}

	table, hit, err := l.Cache.Load(path, schema)
	if err != nil {
		return nil, err
	}

	if l.OnCacheLookup != nil {
		l.OnCacheLookup(ctx, hit)
	}

	return table, nil
}

// ResolveSchema returns the declaration used for path. Declared auxiliary
// columns replace the conventionally named ones and never become variables.
func (l *Loader) ResolveSchema(path string) (Schema, error) {
	if len(l.Schema.Variables) > 0 {
		return l.Schema, nil
	}

	header, err := ReadHeader(path)
	if err != nil {
		return Schema{}, err
	}

	inferred := InferSchema(header)
	declared := l.Schema

	for _, aux := range []struct{ declared, inferred *string }{
		{&declared.PartID, &inferred.PartID},
		{&declared.Timestamp, &inferred.Timestamp},
		{&declared.RejectType, &inferred.RejectType},
	} {
		if *aux.declared == "" {
			continue
		}

		*aux.inferred = *aux.declared
		inferred.Variables = slices.DeleteFunc(inferred.Variables, func(v string) bool { return v == *aux.declared })
	}

	inferred.TimestampLayout = declared.TimestampLayout

	return inferred, nil
}
