package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// maxNameLength matches the roster's display name limit.
const maxNameLength = 200

var validate = validator.New()

// scoreNamesRequest is the JSON request body for comparing two author names.
type scoreNamesRequest struct {
	A string `json:"a" validate:"required,max=200"`
	B string `json:"b" validate:"required,max=200"`
}

// scoreNames handles POST /names/score. It reports the fused similarity of two raw names,
// its components, and whether they clear the configured threshold.
func (s *Server) scoreNames(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req scoreNamesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, s.runner.Score(req.A, req.B))
}

// validationMessage renders the first failed field without echoing its value.
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid input"
	}
	fe := ve[0]
	field := map[string]string{"A": "a", "B": "b"}[fe.Field()]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %d characters", field, maxNameLength)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
