package remote

import (
	"encoding/json"
	"strconv"

	"sheetcart/internal/model"
)

// envelope is the response wrapper every cart API endpoint uses.
// A body missing these fields is treated as a malformed payload, handled
// the same as the backend being unreachable.
type envelope struct {
	Success bool       `json:"success"`
	Cart    model.Cart `json:"cart"`
}

// errorResponse is the backend's error body shape. Parsed best-effort.
type errorResponse struct {
	Message string `json:"message"`
}

// wireID marshals a canonical product id the way the backend expects:
// numeric ids as JSON numbers, everything else as strings. The backend's
// add endpoint declares product_id as an integer but the catalog also
// carries non-numeric SKUs.
type wireID model.ProductID

func (w wireID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(w), 10, 64); err == nil {
		return json.Marshal(n)
	}
	return json.Marshal(string(w))
}

type addRequest struct {
	ProductID wireID `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateRequest struct {
	Quantity int `json:"quantity"`
}

type mergeRequest struct {
	Items model.Cart `json:"items"`
}
