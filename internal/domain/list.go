package domain

// SortField enumerates the template list sort keys.
type SortField string

const (
	SortByUpdatedAt SortField = "updatedAt"
	SortByCreatedAt SortField = "createdAt"
	SortByName      SortField = "name"
	SortByUseCount  SortField = "useCount"
	SortByLastUsed  SortField = "lastUsed"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListFilter narrows a template listing. Nil pointer fields mean "don't
// care". Tags match templates carrying every listed tag; Search matches a
// case-insensitive substring of the name.
type ListFilter struct {
	HasScheduling *bool
	Favorite      *bool
	Tags          []string
	Search        string
}

// ListOptions controls pagination, ordering and filtering of template
// listings. Filtering applies before sorting; pagination after.
type ListOptions struct {
	Page        int
	Limit       int
	SortBy      SortField
	SortOrder   SortOrder
	IncludeData bool
	Filter      ListFilter
}

// ListLimitMax caps the page size accepted by List.
const ListLimitMax = 1000

// Normalize fills defaults and clamps out-of-range values.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 50
	}
	if o.Limit > ListLimitMax {
		o.Limit = ListLimitMax
	}
	if o.SortBy == "" {
		o.SortBy = SortByUpdatedAt
	}
	if o.SortOrder == "" {
		o.SortOrder = SortDesc
	}
	return o
}

// ListItem is one row of a listing: the index projection, plus the full
// template when ListOptions.IncludeData is set.
type ListItem struct {
	MetadataEntry
	Template *Template `json:"template,omitempty"`
}

// ListResult is a page of templates.
type ListResult struct {
	Items    []ListItem `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
	HasMore  bool       `json:"hasMore"`
}
