package inventory

import "github.com/flplemos/senac-agenda-central/internal/store"

// ApiResponse models the top-level structure of the upstream inventory response.
type ApiResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int                   `json:"page"`
		PageSize int                   `json:"pageSize"`
		Total    int                   `json:"total"`
		Items    []store.InventoryItem `json:"items"`
	} `json:"data"`
}
