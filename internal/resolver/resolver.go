// Package resolver maps user-facing identifiers to canonical directory
// records. A lookup key may be a bare code, an exchange-qualified code, or a
// fragment of the display name; resolution tries those interpretations in
// that fixed order so the same input always lands on the same record.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dataengine/internal/model"
	"dataengine/pkg/datasource"
)

const searchLimit = 20

// Directory is the slice of the local store the resolver reads.
type Directory interface {
	FindSymbol(ctx context.Context, code string) (*model.Symbol, error)
	FindByFullCode(ctx context.Context, fullCode string) (*model.Symbol, error)
	SearchByName(ctx context.Context, query string, limit int) ([]*model.Symbol, error)
}

// Resolver resolves identifiers against one asset class's directory.
type Resolver struct {
	class datasource.AssetClass
	dir   Directory
}

// New constructs a resolver over the given directory.
func New(class datasource.AssetClass, dir Directory) *Resolver {
	return &Resolver{class: class, dir: dir}
}

// Resolve maps a lookup key to its directory record. Interpretations are
// tried in order: exact code, exchange-qualified full code, then display
// name substring (first match in code order). Keys that resolve to an
// inactive record fail validation.
func (r *Resolver) Resolve(ctx context.Context, key string) (*model.Symbol, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &datasource.SymbolValidationError{Symbol: key, Reason: "empty lookup key"}
	}

	sym, err := r.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if !sym.IsActive {
		return nil, &datasource.SymbolValidationError{Symbol: key, Reason: "symbol is inactive"}
	}
	return sym, nil
}

// Validity carries the identifying fields of a resolved record. The zero
// value means the key did not resolve to an active symbol.
type Validity struct {
	Valid       bool
	Code        string
	Name        string
	AssetType   string
	ListingDate time.Time
}

// IsValid resolves a key and returns its identifying fields. Lookup misses
// and validation failures return the zero Validity with a nil error; only
// infrastructure errors propagate.
func (r *Resolver) IsValid(ctx context.Context, key string) (Validity, error) {
	sym, err := r.Resolve(ctx, key)
	if err == nil {
		v := Validity{
			Valid:     true,
			Code:      sym.Code,
			Name:      sym.Name,
			AssetType: sym.AssetType,
		}
		if sym.ListingDate.Valid {
			v.ListingDate = sym.ListingDate.Time
		}
		return v, nil
	}
	var verr *datasource.SymbolValidationError
	if errors.As(err, &verr) || errors.Is(err, datasource.ErrSymbolNotFound) {
		return Validity{}, nil
	}
	return Validity{}, err
}

func (r *Resolver) lookup(ctx context.Context, key string) (*model.Symbol, error) {
	sym, err := r.dir.FindSymbol(ctx, key)
	if err == nil {
		return sym, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("resolver: %s: lookup %q: %w", r.class, key, err)
	}

	// Exchange-qualified keys come in both CODE.EXCHANGE and EXCHANGE.CODE
	// forms; the store keeps the CODE.EXCHANGE shape.
	if head, tail, found := strings.Cut(key, "."); found {
		for _, full := range []string{
			strings.ToUpper(head + "." + tail),
			strings.ToUpper(tail + "." + head),
		} {
			sym, err = r.dir.FindByFullCode(ctx, full)
			if err == nil {
				return sym, nil
			}
			if !errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("resolver: %s: lookup %q: %w", r.class, key, err)
			}
		}
	}

	matches, err := r.dir.SearchByName(ctx, key, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("resolver: %s: search %q: %w", r.class, key, err)
	}
	// SearchByName orders by code, so the first hit is the stable winner.
	for _, m := range matches {
		return m, nil
	}
	return nil, fmt.Errorf("resolver: %s: %q: %w", r.class, key, datasource.ErrSymbolNotFound)
}
