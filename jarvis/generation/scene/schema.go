package scene

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// recordSchema is the structural guard applied to raw records before sanitation. It only rejects shapes
// sanitation cannot default: a non-scalar name or a non-object material.
const recordSchema = `{
  "type": "object",
  "properties": {
    "name":     {"type": ["string", "number", "null"]},
    "material": {"type": ["object", "null"]}
  }
}`

// sceneSchema describes a sanitized scene as emitted to renderers.
const sceneSchema = `{
  "definitions": {
    "vec3": {"type": "array", "items": {"type": "number"}, "minItems": 3, "maxItems": 3},
    "unit": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name", "type", "geometry", "position", "rotation", "scale", "material"],
    "properties": {
      "name":     {"type": "string", "minLength": 1},
      "type":     {"enum": ["box", "sphere", "cylinder", "cone", "torus", "plane"]},
      "geometry": {"type": "object", "minProperties": 1, "additionalProperties": {"type": "number"}},
      "position": {"$ref": "#/definitions/vec3"},
      "rotation": {"$ref": "#/definitions/vec3"},
      "scale":    {"$ref": "#/definitions/vec3"},
      "material": {
        "type": "object",
        "required": ["color", "metalness", "roughness", "emissive", "emissiveIntensity", "opacity", "transparent"],
        "properties": {
          "color":             {"type": "string"},
          "metalness":         {"$ref": "#/definitions/unit"},
          "roughness":         {"$ref": "#/definitions/unit"},
          "emissive":          {"type": "string"},
          "emissiveIntensity": {"type": "number", "minimum": 0, "maximum": 2},
          "opacity":           {"$ref": "#/definitions/unit"},
          "transparent":       {"type": "boolean"}
        }
      }
    }
  }
}`

var (
	recordGuard = sync.OnceValues(func() (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
	})
	sceneGuard = sync.OnceValues(func() (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewStringLoader(sceneSchema))
	})
)

// checkRecord validates one raw record against the structural guard.
func checkRecord(rec map[string]any) error {
	schema, err := recordGuard()
	if err != nil {
		return fmt.Errorf("record schema: %w", err)
	}
	return validate(schema, gojsonschema.NewGoLoader(rec))
}

// ValidateScene checks that data is a JSON array of fully populated scene objects.
func ValidateScene(data []byte) error {
	schema, err := sceneGuard()
	if err != nil {
		return fmt.Errorf("scene schema: %w", err)
	}
	return validate(schema, gojsonschema.NewBytesLoader(data))
}

func validate(schema *gojsonschema.Schema, doc gojsonschema.JSONLoader) error {
	result, err := schema.Validate(doc)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
