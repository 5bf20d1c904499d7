package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"sigs.k8s.io/yaml"

	"github.com/botdesk/botdesk/internal/api/middleware"
	"github.com/botdesk/botdesk/internal/api/response"
)

// OpenAPIHandler serves the API document as JSON. The document is converted
// once at construction and stamped with the running build's version.
type OpenAPIHandler struct {
	doc []byte
	err error
}

// NewOpenAPIHandler converts yamlSpec to JSON. An empty version leaves
// info.version as written in the document. A conversion error is logged here
// and every request then answers 500.
func NewOpenAPIHandler(yamlSpec []byte, version string) *OpenAPIHandler {
	doc, err := buildOpenAPIDoc(yamlSpec, version)
	if err != nil {
		slog.Error("failed to convert OpenAPI spec to JSON", "error", err)
	}
	return &OpenAPIHandler{doc: doc, err: err}
}

func buildOpenAPIDoc(yamlSpec []byte, version string) ([]byte, error) {
	raw, err := yaml.YAMLToJSON(yamlSpec)
	if err != nil {
		return nil, err
	}
	if version == "" {
		return raw, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	info, ok := doc["info"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("OpenAPI document has no info object")
	}
	info["version"] = version
	return json.Marshal(doc)
}

// ServeHTTP writes the converted document.
func (h *OpenAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.err != nil {
		requestID := middleware.GetRequestID(r.Context())
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to convert OpenAPI spec", requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(h.doc); err != nil {
		slog.Error("failed to write OpenAPI spec response", "error", err)
	}
}
