package shop

// HealthResponse is the payload of {prefix}/health. Failed checks answer
// with the handlers error envelope instead.
type HealthResponse struct {
	Status   string `json:"status"`
	Driver   string `json:"driver"`
	Entities int    `json:"entities"`
}
