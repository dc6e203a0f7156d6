package server

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/teranos/samplegen/version"
)

// OpenAPIDocument describes the HTTP surface
func OpenAPIDocument() *openapi3.T {
	records := openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema())
	errorBody := openapi3.NewObjectSchema().WithProperty("error", openapi3.NewStringSchema())

	responses := func() *openapi3.Responses {
		r := openapi3.NewResponses(
			openapi3.WithStatus(200, &openapi3.ResponseRef{Value: openapi3.NewResponse().
				WithDescription("Generated records, in generation order").
				WithJSONSchema(records)}),
		)
		for code, desc := range map[int]string{
			400: "Invalid request",
			502: "Inference failed",
			503: "Model unavailable",
			504: "Inference timed out",
		} {
			r.Set(itoa(code), &openapi3.ResponseRef{Value: openapi3.NewResponse().
				WithDescription(desc).
				WithJSONSchema(errorBody)})
		}
		return r
	}

	getOp := openapi3.NewOperation()
	getOp.OperationID = "generateSampleData"
	getOp.Summary = "Generate sample records from a query string"
	getOp.AddParameter(openapi3.NewQueryParameter("recordCount").
		WithRequired(true).
		WithSchema(openapi3.NewIntegerSchema().WithMin(1)))
	getOp.AddParameter(openapi3.NewQueryParameter("sampleJson").
		WithRequired(true).
		WithDescription("Sample JSON document whose shape the records follow").
		WithSchema(openapi3.NewStringSchema()))
	getOp.Responses = responses()

	body := openapi3.NewObjectSchema().
		WithProperty("record_count", openapi3.NewIntegerSchema().WithMin(1)).
		WithProperty("schema", openapi3.NewSchema())
	body.Required = []string{"record_count", "schema"}

	postOp := openapi3.NewOperation()
	postOp.OperationID = "generate"
	postOp.Summary = "Generate sample records from a JSON body"
	postOp.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
		WithRequired(true).
		WithJSONSchema(body)}
	postOp.Responses = responses()

	health := openapi3.NewOperation()
	health.OperationID = "health"
	health.Responses = openapi3.NewResponses(
		openapi3.WithStatus(200, &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("Alive")}),
	)

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "samplegen",
			Version: version.Get().Version,
		},
		Paths: openapi3.NewPaths(
			openapi3.WithPath("/api/generate-sample-data", &openapi3.PathItem{Get: getOp}),
			openapi3.WithPath("/api/generate", &openapi3.PathItem{Post: postOp}),
			openapi3.WithPath("/healthz", &openapi3.PathItem{Get: health}),
		),
	}
	return doc
}
