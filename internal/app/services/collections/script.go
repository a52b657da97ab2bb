package collections

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/tidwall/gjson"

	"github.com/shopforge/shopforge/internal/app/domain/catalog"
)

// scriptEvalBudget bounds a single variant evaluation. Scripts that loop
// forever fail the variant instead of stalling the rebuild.
const scriptEvalBudget = 100 * time.Millisecond

// scriptFilter evaluates a JavaScript predicate per variant. The script is
// the body of a function receiving `variant` and `product` plain objects and
// must return a truthy value to include the variant.
type scriptFilter struct{}

func (scriptFilter) Code() string { return "script-filter" }

func (scriptFilter) ValidateArgs(args json.RawMessage) error {
	src := gjson.GetBytes(args, "script").String()
	if src == "" {
		return fmt.Errorf("script is required")
	}
	if _, err := goja.Compile("filter", wrapScript(src), true); err != nil {
		return fmt.Errorf("script does not compile: %w", err)
	}
	return nil
}

func wrapScript(src string) string {
	return "(function(variant, product) {\n" + src + "\n})"
}

func variantObject(v catalog.ProductVariant) map[string]any {
	return map[string]any{
		"id":            v.ID,
		"productId":     v.ProductID,
		"sku":           v.SKU,
		"name":          v.Name,
		"priceCents":    v.PriceCents,
		"currency":      v.Currency,
		"stockOnHand":   v.StockOnHand,
		"enabled":       v.Enabled,
		"facetValueIds": v.FacetValueIDs,
	}
}

func productObject(p catalog.Product) map[string]any {
	return map[string]any{
		"id":            p.ID,
		"name":          p.Name,
		"slug":          p.Slug,
		"enabled":       p.Enabled,
		"facetValueIds": p.FacetValueIDs,
	}
}

func (scriptFilter) Compile(args json.RawMessage) (Matcher, error) {
	src := gjson.GetBytes(args, "script").String()
	if src == "" {
		return nil, fmt.Errorf("script is required")
	}
	program, err := goja.Compile("filter", wrapScript(src), true)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}

	vm := goja.New()
	fnValue, err := vm.RunProgram(program)
	if err != nil {
		return nil, fmt.Errorf("evaluate script: %w", err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, fmt.Errorf("script did not produce a function")
	}

	// One runtime per compiled filter; rebuilds evaluate variants
	// sequentially so no extra locking is needed.
	return func(v catalog.ProductVariant, p catalog.Product) (bool, error) {
		timer := time.AfterFunc(scriptEvalBudget, func() {
			vm.Interrupt("evaluation budget exceeded")
		})
		defer timer.Stop()
		defer vm.ClearInterrupt()

		result, err := fn(goja.Undefined(), vm.ToValue(variantObject(v)), vm.ToValue(productObject(p)))
		if err != nil {
			return false, fmt.Errorf("script filter on variant %s: %w", v.ID, err)
		}
		return result.ToBoolean(), nil
	}, nil
}
