package pricing

import (
	"fmt"
	"slices"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// SortField selects the bond column to order by.
type SortField string

const (
	SortByMaturity  SortField = "maturity"
	SortByLiquidity SortField = "liquidity"
	SortByPrice     SortField = "price"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort is a field/order pair.
type Sort struct {
	Field SortField
	Order SortOrder
}

// DefaultSort orders by nearest maturity first.
var DefaultSort = Sort{Field: SortByMaturity, Order: Asc}

// ParseSort reads a sort from query values; empty values fall back to the
// default.
func ParseSort(field, order string) (Sort, error) {
	s := DefaultSort
	switch SortField(field) {
	case "":
	case SortByMaturity, SortByLiquidity, SortByPrice:
		s.Field = SortField(field)
	default:
		return Sort{}, fmt.Errorf("pricing: unknown sort field %q", field)
	}
	switch SortOrder(order) {
	case "":
	case Asc, Desc:
		s.Order = SortOrder(order)
	default:
		return Sort{}, fmt.Errorf("pricing: unknown sort order %q", order)
	}
	return s, nil
}

// Next returns the sort after the user picks field: the same field toggles the
// order, a new field starts ascending.
func (s Sort) Next(field SortField) Sort {
	if field == s.Field {
		if s.Order == Asc {
			return Sort{Field: field, Order: Desc}
		}
		return Sort{Field: field, Order: Asc}
	}
	return Sort{Field: field, Order: Asc}
}

// SortBonds returns a sorted copy of bonds. Ties keep catalog order.
func SortBonds(bonds []domain.Bond, s Sort) []domain.Bond {
	out := slices.Clone(bonds)
	slices.SortStableFunc(out, func(a, b domain.Bond) int {
		var c int
		switch s.Field {
		case SortByLiquidity:
			c = a.TotalSupply.Cmp(b.TotalSupply)
		case SortByPrice:
			c = a.Price.Cmp(b.Price)
		default:
			c = a.Maturity.Compare(b.Maturity)
		}
		if s.Order == Desc {
			c = -c
		}
		return c
	})
	return out
}
