// Package spec serves the embedded OpenAPI document consumed by the Swagger UI.
package spec

import (
	_ "embed"
	"fmt"
	"hash/fnv"
	"net/http"
)

//go:embed openapi.yaml
var openapi []byte

var etag = func() string {
	h := fnv.New64a()
	_, _ = h.Write(openapi)
	return fmt.Sprintf(`"%x"`, h.Sum64())
}()

// OpenAPIHandler serves the embedded OpenAPI specification. Clients holding
// the current ETag get 304.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openapi)
	}
}
