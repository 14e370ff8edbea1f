package operation

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-openapi/swag/conv"
	"go.uber.org/zap"

	"github.com/nimrody/azure-simple-sdk/internal/jsonvalue"
	"github.com/nimrody/azure-simple-sdk/pkg/spec"
	"github.com/nimrody/azure-simple-sdk/pkg/spec/ref"
)

var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true, "head": true,
}

// Extractor produces OperationRecords from SpecificationFiles, resolving
// $ref occurrences through a shared Resolver.
type Extractor struct {
	resolver *ref.Resolver
	log      *zap.Logger
}

// New returns an Extractor backed by resolver for cross-file and internal
// reference resolution.
func New(resolver *ref.Resolver, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{resolver: resolver, log: log}
}

// Extract produces a Record for operationID within file. It returns nil,
// never an error: an unreadable file, a missing operation, or malformed
// JSON all yield nil (spec.md §4.C/§7).
func (x *Extractor) Extract(file *spec.SpecificationFile, operationID string) *Record {
	doc, ok := x.decodeFile(file.Path)
	if !ok {
		return nil
	}

	paths, ok := jsonvalue.Field(doc, "paths")
	if !ok {
		return nil
	}

	for _, template := range jsonvalue.Keys(paths) {
		item, _ := jsonvalue.Field(paths, template)
		for _, method := range jsonvalue.Keys(item) {
			lowerMethod := strings.ToLower(method)
			if !httpMethods[lowerMethod] {
				continue
			}
			op, _ := jsonvalue.Field(item, lowerMethod)
			idNode, ok := jsonvalue.Field(op, "operationId")
			if !ok {
				continue
			}
			id, _ := jsonvalue.String(idNode)
			if id != operationID {
				continue
			}
			return x.buildRecord(doc, file.Path, operationID, template, lowerMethod, op)
		}
	}
	return nil
}

func (x *Extractor) decodeFile(path string) (interface{}, bool) {
	raw, err := os.ReadFile(path) //nolint:gosec // path originates from SpecificationIndex's controlled walk
	if err != nil {
		x.log.Warn("cannot read specification file", zap.String("path", path), zap.Error(err))
		return nil, false
	}
	doc, err := jsonvalue.Decode(raw)
	if err != nil {
		x.log.Warn("malformed specification JSON", zap.String("path", path), zap.Error(err))
		return nil, false
	}
	return doc, true
}

func (x *Extractor) buildRecord(doc interface{}, basePath, operationID, template, method string, op interface{}) *Record {
	desc, _ := jsonvalue.String(fieldOr(op, "description"))

	record := &Record{
		OperationID:  operationID,
		HTTPMethod:   strings.ToUpper(method),
		PathTemplate: template,
		Description:  desc,
		Responses:    make(map[string]Response),
	}

	if paramsNode, ok := jsonvalue.Field(op, "parameters"); ok {
		if arr, ok := paramsNode.([]interface{}); ok {
			for _, p := range arr {
				resolved := x.resolveIfRef(p, doc, basePath)
				if resolved == nil {
					continue
				}
				record.Parameters = append(record.Parameters, x.extractParameter(resolved, doc, basePath))
			}
		}
	}

	if responsesNode, ok := jsonvalue.Field(op, "responses"); ok {
		for _, status := range jsonvalue.Keys(responsesNode) {
			respNode, _ := jsonvalue.Field(responsesNode, status)
			resolved := x.resolveIfRef(respNode, doc, basePath)
			if resolved == nil {
				continue
			}
			record.Responses[status] = x.extractResponse(status, resolved, doc, basePath)
		}
	}

	return record
}

// resolveIfRef returns node unchanged unless it is a bare {"$ref": ...}
// wrapper, in which case it resolves and returns the referenced node (or
// nil if the reference does not resolve).
func (x *Extractor) resolveIfRef(node, root interface{}, basePath string) interface{} {
	refNode, ok := jsonvalue.Field(node, "$ref")
	if !ok {
		return node
	}
	refStr, _ := jsonvalue.String(refNode)
	return x.resolver.Resolve(refStr, root, basePath)
}

func (x *Extractor) extractParameter(node, root interface{}, basePath string) Parameter {
	name, _ := jsonvalue.String(fieldOr(node, "name"))
	in, _ := jsonvalue.String(fieldOr(node, "in"))
	desc, _ := jsonvalue.String(fieldOr(node, "description"))

	var requiredPtr *bool
	if v, ok := jsonvalue.Field(node, "required"); ok {
		if b, ok2 := jsonvalue.Bool(v); ok2 {
			requiredPtr = &b
		}
	}

	return Parameter{
		Name:        name,
		In:          Location(in),
		Required:    conv.BoolValue(requiredPtr),
		Type:        x.extractType(node, root, basePath),
		Description: desc,
	}
}

func (x *Extractor) extractResponse(status string, node, root interface{}, basePath string) Response {
	desc, _ := jsonvalue.String(fieldOr(node, "description"))
	typ := ""
	if schemaNode, ok := jsonvalue.Field(node, "schema"); ok {
		typ = x.extractType(schemaNode, root, basePath)
	}
	return Response{StatusCode: status, Description: desc, Type: typ}
}

// extractType implements the type-extraction rules of spec.md §4.C. The
// returned string never contains an unresolved "$ref" substring (invariant
// (ii) of spec.md §3).
func (x *Extractor) extractType(node, root interface{}, basePath string) string {
	if node == nil {
		return "object"
	}

	if tNode, ok := jsonvalue.Field(node, "type"); ok {
		if t, ok2 := jsonvalue.String(tNode); ok2 {
			switch t {
			case "string", "integer", "number", "boolean", "object":
				return t
			case "array":
				itemsNode, ok3 := jsonvalue.Field(node, "items")
				if !ok3 {
					return "array<object>"
				}
				return "array<" + x.extractType(itemsNode, root, basePath) + ">"
			}
		}
	}

	if schemaNode, ok := jsonvalue.Field(node, "schema"); ok {
		return x.extractType(schemaNode, root, basePath)
	}

	if refNode, ok := jsonvalue.Field(node, "$ref"); ok {
		refStr, _ := jsonvalue.String(refNode)
		resolved := x.resolver.Resolve(refStr, root, basePath)
		if resolved != nil {
			if _, hasType := jsonvalue.Field(resolved, "type"); hasType {
				return x.extractType(resolved, root, basePath)
			}
		}
		return bareDefinitionName(refStr)
	}

	return "object"
}

func bareDefinitionName(refStr string) string {
	i := strings.LastIndex(refStr, "/")
	if i < 0 || i == len(refStr)-1 {
		return refStr
	}
	return refStr[i+1:]
}

func fieldOr(node interface{}, key string) interface{} {
	v, _ := jsonvalue.Field(node, key)
	return v
}

// Definitions returns every #/definitions/* entry in file with its source
// line number, for consumers (the external code generator) that need
// traceability for duplicate-definition disambiguation (spec.md §3/§6).
func (x *Extractor) Definitions(file *spec.SpecificationFile) []DefinitionKey {
	raw, err := os.ReadFile(file.Path) //nolint:gosec
	if err != nil {
		x.log.Warn("cannot read specification file", zap.String("path", file.Path), zap.Error(err))
		return nil
	}
	doc, err := jsonvalue.Decode(raw)
	if err != nil {
		return nil
	}
	defs, ok := jsonvalue.Field(doc, "definitions")
	if !ok {
		return nil
	}

	filename := filepath.Base(file.Path)
	var keys []DefinitionKey
	for _, name := range jsonvalue.Keys(defs) {
		keys = append(keys, DefinitionKey{
			Filename:       filename,
			DefinitionName: name,
			LineNumber:     lineNumberOfDefinition(raw, name),
		})
	}
	return keys
}

// lineNumberOfDefinition performs a best-effort line-oriented scan for the
// "name": key within the definitions object, for source traceability only;
// it does not affect resolution semantics.
func lineNumberOfDefinition(raw []byte, name string) int {
	defsIdx := bytes.Index(raw, []byte(`"definitions"`))
	if defsIdx < 0 {
		defsIdx = 0
	}
	needle := []byte(`"` + name + `":`)
	rel := bytes.Index(raw[defsIdx:], needle)
	if rel < 0 {
		return 0
	}
	pos := defsIdx + rel
	return bytes.Count(raw[:pos], []byte("\n")) + 1
}
