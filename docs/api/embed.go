// Package apidocs ships the editor API description.
package apidocs

import _ "embed"

// Document is the OpenAPI document served at /api/v1/openapi.yaml.
//
//go:embed openapi.yaml
var Document []byte
