package response

type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func OK[T any](data T, message string) *APIResponse[T] {
	return &APIResponse[T]{Success: true, Data: data, Message: message}
}
