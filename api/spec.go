// Package api holds the published HTTP contract.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3 document served at /openapi.json.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
