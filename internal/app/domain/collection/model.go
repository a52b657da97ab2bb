package collection

import (
	"encoding/json"
	"time"
)

// FilterConfig names a registered collection filter and its arguments. Args
// is an opaque JSON object interpreted by the filter implementation.
type FilterConfig struct {
	Code string          `json:"code"`
	Args json.RawMessage `json:"args"`
}

// Collection groups product variants by filter rules rather than manual
// assignment. Membership is recomputed in the background whenever the
// collection or the catalog changes.
type Collection struct {
	ID             string         `json:"id"`
	ParentID       string         `json:"parent_id,omitempty"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Description    string         `json:"description,omitempty"`
	Position       int            `json:"position"`
	Private        bool           `json:"private"`
	InheritFilters bool           `json:"inherit_filters"`
	Filters        []FilterConfig `json:"filters,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
