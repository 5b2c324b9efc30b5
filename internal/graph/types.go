package graph

import "encoding/json"

// Notebook is a OneNote notebook as returned by the Graph API.
type Notebook struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Section is a section within a notebook.
type Section struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Page is a page within a section. Listings are requested with a
// $select=id,title projection, so only these fields are populated.
type Page struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// listEnvelope is the Graph listing shape: items under "value" plus an
// optional continuation link.
type listEnvelope struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

func decodeItems[T any](items []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
