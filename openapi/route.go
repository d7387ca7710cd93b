package openapi

import (
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

type RouteBuilder struct {
	openapi   *OpenAPI
	method    string
	path      string
	operation *openapi3.Operation
}

func (rb *RouteBuilder) declarePathParams() {
	for _, part := range strings.Split(rb.path, "/") {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			param := rb.param(strings.Trim(part, "{}"), openapi3.ParameterInPath)
			param.Required = true
		}
	}
}

func (rb *RouteBuilder) Summary(summary string) *RouteBuilder {
	rb.operation.Summary = summary
	return rb
}

func (rb *RouteBuilder) Description(description string) *RouteBuilder {
	rb.operation.Description = description
	return rb
}

func (rb *RouteBuilder) OperationID(id string) *RouteBuilder {
	rb.operation.OperationID = id
	return rb
}

func (rb *RouteBuilder) Tags(tags ...string) *RouteBuilder {
	rb.operation.Tags = append(rb.operation.Tags, tags...)
	return rb
}

// PathParam documents a path parameter. Integer parameters get an integer schema.
func (rb *RouteBuilder) PathParam(name, description string, integer bool) *RouteBuilder {
	param := rb.param(name, openapi3.ParameterInPath)
	param.Description = description
	param.Required = true
	if integer {
		param.Schema = openapi3.NewIntegerSchema().WithMin(1).NewRef()
	}
	return rb
}

func (rb *RouteBuilder) CookieParam(name, description string) *RouteBuilder {
	param := rb.param(name, openapi3.ParameterInCookie)
	param.Description = description
	return rb
}

func (rb *RouteBuilder) param(name, in string) *openapi3.Parameter {
	for _, ref := range rb.operation.Parameters {
		if ref.Value != nil && ref.Value.Name == name && ref.Value.In == in {
			return ref.Value
		}
	}

	param := &openapi3.Parameter{
		Name:   name,
		In:     in,
		Schema: openapi3.NewStringSchema().NewRef(),
	}
	rb.operation.Parameters = append(rb.operation.Parameters, &openapi3.ParameterRef{Value: param})
	return param
}

func (rb *RouteBuilder) Body(example any, description string) *RouteBuilder {
	return rb.body(example, description, true)
}

func (rb *RouteBuilder) BodyOptional(example any, description string) *RouteBuilder {
	return rb.body(example, description, false)
}

func (rb *RouteBuilder) body(example any, description string, required bool) *RouteBuilder {
	rb.operation.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithDescription(description).
			WithRequired(required).
			WithJSONSchemaRef(rb.openapi.schemaOf(example)),
	}
	return rb
}

// Response documents a JSON response. A nil example documents a response without a body.
func (rb *RouteBuilder) Response(status int, example any, description string) *RouteBuilder {
	resp := openapi3.NewResponse().WithDescription(description)
	if example != nil {
		resp.Content = openapi3.NewContentWithJSONSchemaRef(rb.openapi.schemaOf(example))
	}
	rb.operation.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: resp})
	return rb
}

// SetsCookie records that the response for status sets a cookie.
func (rb *RouteBuilder) SetsCookie(status int, description string) *RouteBuilder {
	ref := rb.operation.Responses.Value(strconv.Itoa(status))
	if ref == nil || ref.Value == nil {
		return rb
	}

	if ref.Value.Headers == nil {
		ref.Value.Headers = make(openapi3.Headers)
	}
	ref.Value.Headers["Set-Cookie"] = &openapi3.HeaderRef{
		Value: &openapi3.Header{
			Parameter: openapi3.Parameter{
				Description: description,
				Schema:      openapi3.NewStringSchema().NewRef(),
			},
		},
	}
	return rb
}

// Security requires any one of schemes.
func (rb *RouteBuilder) Security(schemes ...string) *RouteBuilder {
	if rb.operation.Security == nil {
		rb.operation.Security = openapi3.NewSecurityRequirements()
	}
	for _, scheme := range schemes {
		rb.operation.Security.With(openapi3.NewSecurityRequirement().Authenticate(scheme))
	}
	return rb
}

func (rb *RouteBuilder) Build() {
	rb.openapi.addOperation(rb.method, rb.path, rb.operation)
}
