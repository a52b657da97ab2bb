package collections

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/shopforge/shopforge/internal/app/domain/catalog"
)

// Matcher decides whether one variant belongs to a collection. The variant's
// parent product is supplied so filters can match on product-level facets.
type Matcher func(v catalog.ProductVariant, p catalog.Product) (bool, error)

// Filter is one registered collection filter type. Compile is called once
// per rebuild with the stored args and returns the matcher applied to every
// variant, so expensive setup (script compilation, set construction) happens
// once.
type Filter interface {
	Code() string
	ValidateArgs(args json.RawMessage) error
	Compile(args json.RawMessage) (Matcher, error)
}

// Registry holds the available filter types. Plugins may register custom
// filters before the service starts.
type Registry struct {
	mu      sync.RWMutex
	filters map[string]Filter
}

// NewRegistry returns a registry preloaded with the built-in filters.
func NewRegistry() *Registry {
	r := &Registry{filters: make(map[string]Filter)}
	r.MustRegister(facetValueFilter{})
	r.MustRegister(variantNameFilter{})
	r.MustRegister(productIDFilter{})
	r.MustRegister(scriptFilter{})
	return r
}

// Register adds a filter type. Codes must be unique.
func (r *Registry) Register(f Filter) error {
	code := strings.TrimSpace(f.Code())
	if code == "" {
		return fmt.Errorf("filter code is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.filters[code]; exists {
		return fmt.Errorf("filter %q already registered", code)
	}
	r.filters[code] = f
	return nil
}

// MustRegister panics on a duplicate code. Used for built-ins.
func (r *Registry) MustRegister(f Filter) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// Get looks up a filter by code.
func (r *Registry) Get(code string) (Filter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.filters[code]
	return f, ok
}

// Codes lists the registered filter codes.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.filters))
	for code := range r.filters {
		out = append(out, code)
	}
	return out
}

// facetValueFilter matches variants carrying the configured facet values,
// either all of them or, with containsAny, at least one. Product-level facet
// values count for all of the product's variants.
type facetValueFilter struct{}

func (facetValueFilter) Code() string { return "facet-value-filter" }

func (facetValueFilter) ValidateArgs(args json.RawMessage) error {
	ids := gjson.GetBytes(args, "facetValueIds")
	if !ids.IsArray() {
		return fmt.Errorf("facetValueIds must be an array")
	}
	if len(ids.Array()) == 0 {
		return fmt.Errorf("facetValueIds must not be empty")
	}
	return nil
}

func (facetValueFilter) Compile(args json.RawMessage) (Matcher, error) {
	wanted := gjson.GetBytes(args, "facetValueIds").Array()
	if len(wanted) == 0 {
		return nil, fmt.Errorf("facetValueIds must not be empty")
	}
	containsAny := gjson.GetBytes(args, "containsAny").Bool()

	ids := make([]string, len(wanted))
	for i, v := range wanted {
		ids[i] = v.String()
	}

	return func(v catalog.ProductVariant, p catalog.Product) (bool, error) {
		have := make(map[string]bool, len(v.FacetValueIDs)+len(p.FacetValueIDs))
		for _, id := range v.FacetValueIDs {
			have[id] = true
		}
		for _, id := range p.FacetValueIDs {
			have[id] = true
		}

		matched := 0
		for _, id := range ids {
			if have[id] {
				matched++
			}
		}
		if containsAny {
			return matched > 0, nil
		}
		return matched == len(ids), nil
	}, nil
}

// variantNameFilter matches on the variant name with a startsWith or
// contains operator, case-insensitively.
type variantNameFilter struct{}

func (variantNameFilter) Code() string { return "variant-name-filter" }

func (variantNameFilter) ValidateArgs(args json.RawMessage) error {
	op := gjson.GetBytes(args, "operator").String()
	if op != "startsWith" && op != "contains" {
		return fmt.Errorf("operator must be startsWith or contains, got %q", op)
	}
	if gjson.GetBytes(args, "term").String() == "" {
		return fmt.Errorf("term is required")
	}
	return nil
}

func (variantNameFilter) Compile(args json.RawMessage) (Matcher, error) {
	op := gjson.GetBytes(args, "operator").String()
	term := strings.ToLower(gjson.GetBytes(args, "term").String())
	if term == "" {
		return nil, fmt.Errorf("term is required")
	}

	return func(v catalog.ProductVariant, _ catalog.Product) (bool, error) {
		name := strings.ToLower(v.Name)
		switch op {
		case "startsWith":
			return strings.HasPrefix(name, term), nil
		case "contains":
			return strings.Contains(name, term), nil
		default:
			return false, fmt.Errorf("unknown operator %q", op)
		}
	}, nil
}

// productIDFilter matches variants belonging to an explicit product list.
type productIDFilter struct{}

func (productIDFilter) Code() string { return "product-id-filter" }

func (productIDFilter) ValidateArgs(args json.RawMessage) error {
	ids := gjson.GetBytes(args, "productIds")
	if !ids.IsArray() {
		return fmt.Errorf("productIds must be an array")
	}
	return nil
}

func (productIDFilter) Compile(args json.RawMessage) (Matcher, error) {
	wanted := gjson.GetBytes(args, "productIds").Array()
	ids := make(map[string]bool, len(wanted))
	for _, v := range wanted {
		ids[v.String()] = true
	}

	return func(v catalog.ProductVariant, _ catalog.Product) (bool, error) {
		return ids[v.ProductID], nil
	}, nil
}
