// Package operation implements OperationExtractor: extraction of a
// canonical OperationRecord from a Swagger/OpenAPI 2.0 document.
package operation

// Location is one of the parameter/response locations recognized by
// spec.md §3.
type Location string

const (
	LocationPath     Location = "path"
	LocationQuery    Location = "query"
	LocationHeader   Location = "header"
	LocationBody     Location = "body"
	LocationFormData Location = "formData"
)

// Parameter is the (name, location, required, typeString, description)
// record of spec.md §3.
type Parameter struct {
	Name        string
	In          Location
	Required    bool
	Type        string
	Description string
}

// Response is the (statusCode, description, schemaTypeString) record of
// spec.md §3. StatusCode is either a three-digit string or "default". Type
// is empty when the response carries no schema.
type Response struct {
	StatusCode  string
	Description string
	Type        string
}

// DefinitionKey identifies a named schema definition with source
// traceability, for consumers (the external code generator) that need to
// disambiguate definitions across files.
type DefinitionKey struct {
	Filename       string
	DefinitionName string
	LineNumber     int
}

// Record is the canonical OperationRecord of spec.md §3.
type Record struct {
	OperationID  string
	HTTPMethod   string
	PathTemplate string
	Parameters   []Parameter
	Responses    map[string]Response
	Description  string
}
