// Package api carries the OpenAPI description of the storefront's JSON
// request bodies.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
