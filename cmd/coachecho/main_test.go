package main

import (
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

// TestOpenAPIDocumentIsValid keeps the published API document loadable and
// structurally valid; the swagger middleware serves it as-is.
func TestOpenAPIDocumentIsValid(t *testing.T) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromFile("../../public/docs/v1/openapi.yml")
	if err != nil {
		t.Fatalf("failed to load openapi document: %v", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		t.Fatalf("openapi document is invalid: %v", err)
	}

	for _, path := range []string{
		"/billing/payment-methods",
		"/billing/subscriptions/current",
		"/billing/subscriptions/update",
		"/webhooks/stripe",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("expected documented path %s", path)
		}
	}
}
