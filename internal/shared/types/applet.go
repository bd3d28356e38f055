package types

// Range bounds the values a dimension may take
type Range struct {
	Name string `yaml:"name" json:"name" cbor:"name"`
	Min  int64  `yaml:"min" json:"min" cbor:"min"`
	Max  int64  `yaml:"max" json:"max" cbor:"max"`
}

// DimensionInput declares an assessable or computed dimension
type DimensionInput struct {
	Name     string `yaml:"name" json:"name" cbor:"name"`
	Range    string `yaml:"range" json:"range" cbor:"range"`
	Computed bool   `yaml:"computed" json:"computed" cbor:"computed"`
}

// ResourceDefInput binds entry types of the applet to dimensions
type ResourceDefInput struct {
	Name       string   `yaml:"name" json:"name" cbor:"name"`
	BaseTypes  []string `yaml:"base_types" json:"base_types" cbor:"base_types"`
	Dimensions []string `yaml:"dimensions" json:"dimensions" cbor:"dimensions"`
}

// MethodInput computes an output dimension from input dimensions
type MethodInput struct {
	Name               string   `yaml:"name" json:"name" cbor:"name"`
	TargetResourceDef  string   `yaml:"target_resource_def" json:"target_resource_def" cbor:"target_resource_def"`
	InputDimensions    []string `yaml:"input_dimensions" json:"input_dimensions" cbor:"input_dimensions"`
	OutputDimension    string   `yaml:"output_dimension" json:"output_dimension" cbor:"output_dimension"`
	Program            string   `yaml:"program" json:"program" cbor:"program"`
	CanComputeLive     bool     `yaml:"can_compute_live" json:"can_compute_live" cbor:"can_compute_live"`
	RequiresValidation bool     `yaml:"requires_validation" json:"requires_validation" cbor:"requires_validation"`
}

// Threshold filters resources by a dimension value
type Threshold struct {
	Dimension string `yaml:"dimension" json:"dimension" cbor:"dimension"`
	Kind      string `yaml:"kind" json:"kind" cbor:"kind"`
	Value     int64  `yaml:"value" json:"value" cbor:"value"`
}

// OrderBy sorts resources by a dimension
type OrderBy struct {
	Dimension string `yaml:"dimension" json:"dimension" cbor:"dimension"`
	Direction string `yaml:"direction" json:"direction" cbor:"direction"`
}

// CulturalContextInput is a named view over a resource def
type CulturalContextInput struct {
	Name        string      `yaml:"name" json:"name" cbor:"name"`
	ResourceDef string      `yaml:"resource_def" json:"resource_def" cbor:"resource_def"`
	Thresholds  []Threshold `yaml:"thresholds" json:"thresholds" cbor:"thresholds"`
	OrderBy     []OrderBy   `yaml:"order_by" json:"order_by" cbor:"order_by"`
}

// AppletConfigInput is the applet configuration document registered
// against a neighbourhood's sensemaker
type AppletConfigInput struct {
	Name             string                 `yaml:"name" json:"name" cbor:"name"`
	Ranges           []Range                `yaml:"ranges" json:"ranges" cbor:"ranges"`
	Dimensions       []DimensionInput       `yaml:"dimensions" json:"dimensions" cbor:"dimensions"`
	ResourceDefs     []ResourceDefInput     `yaml:"resource_defs" json:"resource_defs" cbor:"resource_defs"`
	Methods          []MethodInput          `yaml:"methods" json:"methods" cbor:"methods"`
	CulturalContexts []CulturalContextInput `yaml:"cultural_contexts" json:"cultural_contexts" cbor:"cultural_contexts"`
}

// AppletConfig is the registered form of a config document: every named
// item resolved to the hash of the entry the sensemaker created for it.
type AppletConfig struct {
	Name             string            `json:"name" cbor:"name"`
	Ranges           map[string][]byte `json:"ranges" cbor:"ranges"`
	Dimensions       map[string][]byte `json:"dimensions" cbor:"dimensions"`
	ResourceDefs     map[string][]byte `json:"resource_defs" cbor:"resource_defs"`
	Methods          map[string][]byte `json:"methods" cbor:"methods"`
	CulturalContexts map[string][]byte `json:"cultural_contexts" cbor:"cultural_contexts"`
}
