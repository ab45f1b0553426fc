package errors

import "errors"

// ErrorResponse is the JSON shape surfaced to API consumers.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Hint    string                 `json:"hint,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewErrorResponse flattens an error chain into a serializable response.
func NewErrorResponse(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	resp := &ErrorResponse{
		Code:    "internal_error",
		Message: err.Error(),
	}

	var ie *InternalError
	if errors.As(err, &ie) {
		resp.Hint = ie.hint
		resp.Details = ie.reportableDetails
		if ie.mark != nil {
			resp.Code = ie.mark.Error()
		}
	}

	return resp
}
