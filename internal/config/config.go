// Package config handles tool configuration loading and management.
package config

// Config holds all tool settings.
type Config struct {
	Bake     BakeConfig     `yaml:"bake"`
	Textures TexturesConfig `yaml:"textures"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BakeConfig holds the default ambient-occlusion bake settings. Values
// here seed the bake and can be overridden per run by CLI flags.
type BakeConfig struct {
	RayCount    int     `yaml:"ray_count"`
	MinDistance float32 `yaml:"min_distance"`
	MaxDistance float32 `yaml:"max_distance"` // 0 = unlimited
	SharpAngle  float32 `yaml:"sharp_angle"`  // degrees

	MinClamp float32 `yaml:"min_clamp"`
	Bias     float32 `yaml:"bias"`
	Gain     float32 `yaml:"gain"`

	GroundPlate     bool    `yaml:"ground_plate"`
	PlateResolution int     `yaml:"plate_resolution"`
	PlateEdgeFade   float32 `yaml:"plate_edge_fade"`

	Workers int `yaml:"workers"` // 0 = one per CPU
}

// TexturesConfig holds texture lookup settings.
type TexturesConfig struct {
	// Dir is searched for the texture names a model references. Empty
	// means the model file's own directory.
	Dir string `yaml:"dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Bake: BakeConfig{
			RayCount:        128,
			MinDistance:     1,
			MaxDistance:     0,
			SharpAngle:      66,
			MinClamp:        0,
			Bias:            0.05,
			Gain:            1,
			GroundPlate:     false,
			PlateResolution: 128,
			PlateEdgeFade:   0.25,
			Workers:         0,
		},
		Textures: TexturesConfig{
			Dir: "",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
