package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "BOOTHGO_"

// EnvOverrides holds values that may be set from the environment on top of
// the YAML file. Unset variables leave the file value untouched.
type EnvOverrides struct {
	DebugLevel   *int   `env:"DEBUG_LEVEL"`
	MockGPIO     *bool  `env:"MOCK_GPIO"`
	CameraType   string `env:"CAMERA_TYPE"`
	StillPath    string `env:"STILL_PATH"`
	TemplateURL  string `env:"TEMPLATE_URL"`
	TemplatePath string `env:"TEMPLATE_PATH"`
	OutputDir    string `env:"OUTPUT_DIR"`
}

// ParseEnv reads BOOTHGO_* variables. A nil environ means the process environment.
func ParseEnv(environ map[string]string) (EnvOverrides, error) {
	var o EnvOverrides
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return o, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// ApplyEnv mutates cfg with the set overrides and re-validates it.
func (c *Config) ApplyEnv(o EnvOverrides) error {
	if o.DebugLevel != nil {
		c.Defaults.DebugLevel = *o.DebugLevel
	}
	if o.MockGPIO != nil {
		c.GPIO.Mock = *o.MockGPIO
	}
	if o.CameraType != "" {
		c.Camera.Type = o.CameraType
	}
	if o.StillPath != "" {
		c.Camera.StillPath = o.StillPath
	}
	if o.TemplatePath != "" {
		c.Collage.TemplatePath = o.TemplatePath
	}
	if o.TemplateURL != "" {
		c.Collage.TemplateURL = o.TemplateURL
		if o.TemplatePath == "" {
			c.Collage.TemplatePath = ""
		}
	}
	if o.OutputDir != "" {
		c.Booth.OutputDir = o.OutputDir
	}
	return c.Validate()
}
