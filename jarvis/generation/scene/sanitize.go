package scene

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

// DefaultMaterial is applied field by field to whatever the model left out.
var DefaultMaterial = Material{
	Color:             "#00d4ff",
	Metalness:         0.3,
	Roughness:         0.5,
	Emissive:          "#000000",
	EmissiveIntensity: 0,
	Opacity:           1,
	Transparent:       false,
}

var defaultGeometry = map[ObjectType]map[string]float64{
	Box:      {"width": 1, "height": 1, "depth": 1},
	Sphere:   {"radius": 0.5, "widthSegments": 32, "heightSegments": 32},
	Cylinder: {"radiusTop": 0.5, "radiusBottom": 0.5, "height": 1, "radialSegments": 32},
	Cone:     {"radius": 0.5, "height": 1, "radialSegments": 32},
	Torus:    {"radius": 0.5, "tube": 0.2, "radialSegments": 16, "tubularSegments": 48},
	Plane:    {"width": 2, "height": 2},
}

// DefaultGeometry returns a fresh copy of the default geometry for t.
func DefaultGeometry(t ObjectType) map[string]float64 {
	src, ok := defaultGeometry[t]
	if !ok {
		src = defaultGeometry[Box]
	}
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Sanitize turns recovered records into fully populated scene objects. Records that are not objects or fail
// the structural guard are dropped; default names use the record's 1-based position in records.
func Sanitize(records []any) ([]SceneObject, error) {
	objects := make([]SceneObject, 0, len(records))
	for i, r := range records {
		rec, ok := r.(map[string]any)
		if !ok {
			continue
		}
		obj, err := SanitizeRecord(rec, i+1)
		if err != nil {
			continue
		}
		objects = append(objects, obj)
	}

	if len(objects) == 0 {
		return nil, ports.NewError(ports.KindValidation, "sanitize", ports.ErrNoValidObjects)
	}
	return objects, nil
}

// SanitizeRecord fills every field of one record. index is used for the default name Object_<index>.
func SanitizeRecord(rec map[string]any, index int) (SceneObject, error) {
	if err := checkRecord(rec); err != nil {
		return SceneObject{}, ports.ValidationError("sanitize", err)
	}

	objType := Box
	if s, ok := rec["type"].(string); ok {
		if t := ObjectType(strings.ToLower(strings.TrimSpace(s))); t.Valid() {
			objType = t
		}
	}

	return SceneObject{
		Name:     recordName(rec["name"], index),
		Type:     objType,
		Geometry: geometry(rec["geometry"], objType),
		Position: vec3(rec["position"], Vec3{0, 0, 0}),
		Rotation: vec3(rec["rotation"], Vec3{0, 0, 0}),
		Scale:    vec3(rec["scale"], Vec3{1, 1, 1}),
		Material: material(rec["material"]),
	}, nil
}

func recordName(v any, index int) string {
	switch n := v.(type) {
	case string:
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprintf("Object_%d", index)
}

// geometry keeps the numeric entries of v; an absent, non-object or all non-numeric value yields the default.
func geometry(v any, t ObjectType) map[string]float64 {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return DefaultGeometry(t)
	}

	out := make(map[string]float64, len(m))
	for k, raw := range m {
		if f, ok := number(raw); ok {
			out[k] = f
		}
	}
	if len(out) == 0 {
		return DefaultGeometry(t)
	}
	return out
}

// vec3 accepts exactly three numbers, numeric strings or nulls (read as 0). Anything else replaces the whole
// vector with def.
func vec3(v any, def Vec3) Vec3 {
	list, ok := v.([]any)
	if !ok || len(list) != 3 {
		return def
	}

	var out Vec3
	for i, raw := range list {
		if raw == nil {
			continue
		}
		f, ok := number(raw)
		if !ok {
			return def
		}
		out[i] = f
	}
	return out
}

func material(v any) Material {
	mat := DefaultMaterial
	m, ok := v.(map[string]any)
	if !ok {
		return mat
	}

	if s, ok := m["color"].(string); ok && strings.TrimSpace(s) != "" {
		mat.Color = strings.TrimSpace(s)
	}
	if s, ok := m["emissive"].(string); ok && strings.TrimSpace(s) != "" {
		mat.Emissive = strings.TrimSpace(s)
	}
	if f, ok := number(m["metalness"]); ok {
		mat.Metalness = clamp(f, 0, 1)
	}
	if f, ok := number(m["roughness"]); ok {
		mat.Roughness = clamp(f, 0, 1)
	}
	if f, ok := number(m["emissiveIntensity"]); ok {
		mat.EmissiveIntensity = clamp(f, 0, 2)
	}
	if f, ok := number(m["opacity"]); ok {
		mat.Opacity = clamp(f, 0, 1)
	}
	switch t := m["transparent"].(type) {
	case bool:
		mat.Transparent = t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			mat.Transparent = b
		}
	}
	return mat
}

// number reads a finite JSON number or numeric string.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clamp(f, lo, hi float64) float64 {
	return math.Min(math.Max(f, lo), hi)
}
