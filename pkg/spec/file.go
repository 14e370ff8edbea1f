package spec

// SpecificationFile is an immutable handle to a single Swagger/OpenAPI 2.0
// document. Identity is by absolute path, per spec.md §3.
type SpecificationFile struct {
	Path       string
	ApiVersion ApiVersion
}
