// Package scene turns model completions into renderable 3D scene descriptions.
package scene

import "encoding/json"

// ObjectType is a primitive the renderer knows how to build.
type ObjectType string

const (
	Box      ObjectType = "box"
	Sphere   ObjectType = "sphere"
	Cylinder ObjectType = "cylinder"
	Cone     ObjectType = "cone"
	Torus    ObjectType = "torus"
	Plane    ObjectType = "plane"
)

// Valid reports whether t is one of the supported primitives.
func (t ObjectType) Valid() bool {
	switch t {
	case Box, Sphere, Cylinder, Cone, Torus, Plane:
		return true
	}
	return false
}

// Vec3 is an x, y, z triple. Rotations are radians.
type Vec3 [3]float64

// Material is a physically based material description.
type Material struct {
	Color             string  `json:"color"`
	Metalness         float64 `json:"metalness"`         // [0,1]
	Roughness         float64 `json:"roughness"`         // [0,1]
	Emissive          string  `json:"emissive"`
	EmissiveIntensity float64 `json:"emissiveIntensity"` // [0,2]
	Opacity           float64 `json:"opacity"`           // [0,1]
	Transparent       bool    `json:"transparent"`
}

// SceneObject is one fully populated scene record.
type SceneObject struct {
	Name     string             `json:"name"`
	Type     ObjectType         `json:"type"`
	Geometry map[string]float64 `json:"geometry"`
	Position Vec3               `json:"position"`
	Rotation Vec3               `json:"rotation"`
	Scale    Vec3               `json:"scale"`
	Material Material           `json:"material"`
}

// Result is the outcome of a generate or modify call.
type Result struct {
	Objects      []SceneObject
	Count        int
	Success      bool
	WasTruncated bool
	Error        string
	Raw          string // first 300 characters of an unparseable completion
	Err          error  // typed cause of a failure, not serialized
}

// MarshalJSON emits {objects, count, success, was_truncated} on success and {objects, error, raw, success} on failure.
func (r Result) MarshalJSON() ([]byte, error) {
	objects := r.Objects
	if objects == nil {
		objects = []SceneObject{}
	}

	if r.Success {
		return json.Marshal(struct {
			Objects      []SceneObject `json:"objects"`
			Count        int           `json:"count"`
			Success      bool          `json:"success"`
			WasTruncated bool          `json:"was_truncated"`
		}{objects, r.Count, true, r.WasTruncated})
	}

	return json.Marshal(struct {
		Objects []SceneObject `json:"objects"`
		Error   string        `json:"error"`
		Raw     string        `json:"raw,omitempty"`
		Success bool          `json:"success"`
	}{objects, r.Error, r.Raw, false})
}

func failure(err error, msg, raw string) *Result {
	return &Result{Objects: []SceneObject{}, Error: msg, Raw: raw, Err: err}
}
