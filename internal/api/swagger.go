package api

import (
	"net/http"

	yaml "gopkg.in/yaml.v3"
)

// SwaggerJSONHandler serves the OpenAPI document converted to JSON for
// tools that refuse YAML.
func (s *Server) SwaggerJSONHandler(w http.ResponseWriter, r *http.Request) {
	data, err := openAPILoad()
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "OpenAPI unavailable", err.Error(), r.URL.Path)
		return
	}
	var obj map[string]any
	if err := yaml.Unmarshal(data, &obj); err != nil {
		writeProblem(w, http.StatusInternalServerError, "OpenAPI parse failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}
