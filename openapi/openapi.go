// Package openapi assembles the OpenAPI 3 document for the token API and serves it as JSON
// and YAML. Schemas are derived from the Go request and response types by reflection.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

const componentPrefix = "#/components/schemas/"

var timeType = reflect.TypeOf(time.Time{})

type OpenAPI struct {
	mu    sync.RWMutex
	doc   *openapi3.T
	names map[reflect.Type]string
	taken map[string]reflect.Type
}

func New(title, version string) *OpenAPI {
	return &OpenAPI{
		doc: &openapi3.T{
			OpenAPI: "3.0.3",
			Info: &openapi3.Info{
				Title:   title,
				Version: version,
			},
			Paths: openapi3.NewPaths(),
			Components: &openapi3.Components{
				Schemas:         make(openapi3.Schemas),
				SecuritySchemes: make(openapi3.SecuritySchemes),
			},
		},
		names: make(map[reflect.Type]string),
		taken: make(map[string]reflect.Type),
	}
}

func (o *OpenAPI) Description(desc string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doc.Info.Description = desc
	return o
}

func (o *OpenAPI) Server(url, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doc.Servers = append(o.doc.Servers, &openapi3.Server{URL: url, Description: description})
	return o
}

func (o *OpenAPI) Tag(name, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doc.Tags = append(o.doc.Tags, &openapi3.Tag{Name: name, Description: description})
	return o
}

// BearerAuth registers a JWT bearer security scheme under name.
func (o *OpenAPI) BearerAuth(name, description string) *OpenAPI {
	return o.securityScheme(name, &openapi3.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
		Description:  description,
	})
}

// CookieAuth registers a scheme carried in the cookie named cookieName.
func (o *OpenAPI) CookieAuth(name, cookieName, description string) *OpenAPI {
	return o.securityScheme(name, &openapi3.SecurityScheme{
		Type:        "apiKey",
		In:          "cookie",
		Name:        cookieName,
		Description: description,
	})
}

func (o *OpenAPI) securityScheme(name string, scheme *openapi3.SecurityScheme) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doc.Components.SecuritySchemes[name] = &openapi3.SecuritySchemeRef{Value: scheme}
	return o
}

func (o *OpenAPI) Spec() *openapi3.T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.doc
}

func (o *OpenAPI) JSON() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return json.MarshalIndent(o.doc, "", "  ")
}

func (o *OpenAPI) YAML() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	intermediate, err := o.doc.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(intermediate)
}

func (o *OpenAPI) JSONHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := o.JSON()
		if err != nil {
			return err
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (o *OpenAPI) YAMLHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := o.YAML()
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
}

// Document starts describing the operation served at method and path. Echo style
// parameters (":id") are converted and declared automatically.
func (o *OpenAPI) Document(method, path string) *RouteBuilder {
	rb := &RouteBuilder{
		openapi:   o,
		method:    strings.ToUpper(method),
		path:      toOpenAPIPath(path),
		operation: &openapi3.Operation{Responses: openapi3.NewResponses()},
	}
	rb.declarePathParams()
	return rb
}

func (o *OpenAPI) addOperation(method, path string, op *openapi3.Operation) {
	o.mu.Lock()
	defer o.mu.Unlock()

	item := o.doc.Paths.Find(path)
	if item == nil {
		item = &openapi3.PathItem{}
		o.doc.Paths.Set(path, item)
	}
	item.SetOperation(method, op)
}

func toOpenAPIPath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if name, ok := strings.CutPrefix(part, ":"); ok {
			parts[i] = "{" + name + "}"
		}
	}
	return strings.Join(parts, "/")
}

// schemaOf returns the schema for the type of example. Named structs become components
// and are referenced.
func (o *OpenAPI) schemaOf(example any) *openapi3.SchemaRef {
	o.mu.Lock()
	defer o.mu.Unlock()

	if example == nil {
		return openapi3.NewObjectSchema().NewRef()
	}
	return o.schemaFor(reflect.TypeOf(example))
}

func (o *OpenAPI) schemaFor(t reflect.Type) *openapi3.SchemaRef {
	if t.Kind() == reflect.Pointer {
		inner := o.schemaFor(t.Elem())
		if inner.Ref != "" {
			return &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{inner}, Nullable: true}}
		}
		inner.Value.Nullable = true
		return inner
	}

	if t == timeType {
		return openapi3.NewDateTimeSchema().NewRef()
	}

	switch t.Kind() {
	case reflect.String:
		return openapi3.NewStringSchema().NewRef()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return openapi3.NewIntegerSchema().NewRef()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return openapi3.NewIntegerSchema().WithMin(0).NewRef()
	case reflect.Float32, reflect.Float64:
		return openapi3.NewFloat64Schema().NewRef()
	case reflect.Bool:
		return openapi3.NewBoolSchema().NewRef()
	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:  &openapi3.Types{openapi3.TypeArray},
			Items: o.schemaFor(t.Elem()),
		}}
	case reflect.Map:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:                 &openapi3.Types{openapi3.TypeObject},
			AdditionalProperties: openapi3.AdditionalProperties{Schema: o.schemaFor(t.Elem())},
		}}
	case reflect.Struct:
		if t.Name() == "" {
			return &openapi3.SchemaRef{Value: o.structSchema(t)}
		}
		return &openapi3.SchemaRef{Ref: componentPrefix + o.component(t)}
	default:
		return openapi3.NewObjectSchema().NewRef()
	}
}

// component registers t under a unique name. The name is reserved before the fields are
// walked so self-referencing types terminate.
func (o *OpenAPI) component(t reflect.Type) string {
	if name, ok := o.names[t]; ok {
		return name
	}

	name := t.Name()
	for i := 2; o.taken[name] != nil; i++ {
		name = t.Name() + strconv.Itoa(i)
	}
	o.names[t] = name
	o.taken[name] = t

	o.doc.Components.Schemas[name] = &openapi3.SchemaRef{Value: o.structSchema(t)}
	return name
}

func (o *OpenAPI) structSchema(t reflect.Type) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")

		if field.Anonymous && name == "" {
			o.flatten(schema, field.Type)
			continue
		}
		if name == "" {
			name = field.Name
		}

		prop := o.schemaFor(field.Type)
		doc, example := field.Tag.Get("doc"), field.Tag.Get("example")
		if doc != "" || example != "" {
			if prop.Ref != "" {
				prop = &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{prop}}}
			}
			if doc != "" {
				prop.Value.Description = doc
			}
			if example != "" {
				prop.Value.Example = example
			}
		}
		schema.Properties[name] = prop

		if !strings.Contains(opts, "omitempty") {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}

func (o *OpenAPI) flatten(into *openapi3.Schema, t reflect.Type) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}

	embedded := o.structSchema(t)
	for name, prop := range embedded.Properties {
		into.Properties[name] = prop
	}
	into.Required = append(into.Required, embedded.Required...)
}
