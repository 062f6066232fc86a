// Package config holds the renderer's settings. Defaults can be overridden from a .env
// file and then from VKR_ environment variables.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/renderer/assets"
	"github.com/vkngwrapper/renderer/gpu"
)

// EnvPrefix starts every environment variable Load reads.
const EnvPrefix = "VKR_"

type WindowConfiguration struct {
	Title  string
	Width  int
	Height int
}

type DeviceConfiguration struct {
	// Preference is a device type name accepted by gpu.ParseDevicePreference.
	Preference           string
	MinDeviceLocalMemory int
	// MaxSamples caps the multisample count. Zero means the adapter's maximum.
	MaxSamples int
	// Features is a comma separated list of extra device features to require, named
	// as the fields of core1_0.PhysicalDeviceFeatures.
	Features string
}

type DebugConfiguration struct {
	Validation            bool
	FailOnValidationError bool
	LogLevel              string
}

type Configuration struct {
	Window        WindowConfiguration
	Device        DeviceConfiguration
	Debug         DebugConfiguration
	Assets        assets.Paths
	PipelineCache string
}

func Default() Configuration {
	return Configuration{
		Window: WindowConfiguration{
			Title:  "Vulkan",
			Width:  800,
			Height: 600,
		},
		Device: DeviceConfiguration{
			Preference:           gpu.DeviceAny.String(),
			MinDeviceLocalMemory: gpu.DefaultGraphicsMemory,
		},
		Debug: DebugConfiguration{
			Validation: true,
			LogLevel:   logrus.InfoLevel.String(),
		},
		Assets: assets.Paths{
			VertexShader:   "shaders/vert.spv",
			FragmentShader: "shaders/frag.spv",
			Model:          "meshes/viking_room.obj",
			Materials:      "meshes/viking_room.mtl",
			Texture:        "images/viking_room.png",
		},
		PipelineCache: "pipeline_cache.lz4",
	}
}

type setter func(c *Configuration, value string) error

func stringSetter(field func(c *Configuration) *string) setter {
	return func(c *Configuration, value string) error {
		*field(c) = value
		return nil
	}
}

func intSetter(field func(c *Configuration) *int) setter {
	return func(c *Configuration, value string) error {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		if parsed < 0 {
			return errors.Newf("%d is negative", parsed)
		}
		*field(c) = parsed
		return nil
	}
}

func boolSetter(field func(c *Configuration) *bool) setter {
	return func(c *Configuration, value string) error {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		*field(c) = parsed
		return nil
	}
}

var keys = map[string]setter{
	"WINDOW_TITLE":             stringSetter(func(c *Configuration) *string { return &c.Window.Title }),
	"WINDOW_WIDTH":             intSetter(func(c *Configuration) *int { return &c.Window.Width }),
	"WINDOW_HEIGHT":            intSetter(func(c *Configuration) *int { return &c.Window.Height }),
	"DEVICE_PREFERENCE":        stringSetter(func(c *Configuration) *string { return &c.Device.Preference }),
	"DEVICE_MIN_LOCAL_MEMORY":  intSetter(func(c *Configuration) *int { return &c.Device.MinDeviceLocalMemory }),
	"DEVICE_MAX_SAMPLES":       intSetter(func(c *Configuration) *int { return &c.Device.MaxSamples }),
	"DEVICE_FEATURES":          stringSetter(func(c *Configuration) *string { return &c.Device.Features }),
	"VALIDATION":               boolSetter(func(c *Configuration) *bool { return &c.Debug.Validation }),
	"FAIL_ON_VALIDATION_ERROR": boolSetter(func(c *Configuration) *bool { return &c.Debug.FailOnValidationError }),
	"LOG_LEVEL":                stringSetter(func(c *Configuration) *string { return &c.Debug.LogLevel }),
	"VERTEX_SHADER":            stringSetter(func(c *Configuration) *string { return &c.Assets.VertexShader }),
	"FRAGMENT_SHADER":          stringSetter(func(c *Configuration) *string { return &c.Assets.FragmentShader }),
	"MODEL":                    stringSetter(func(c *Configuration) *string { return &c.Assets.Model }),
	"MATERIALS":                stringSetter(func(c *Configuration) *string { return &c.Assets.Materials }),
	"TEXTURE":                  stringSetter(func(c *Configuration) *string { return &c.Assets.Texture }),
	"PIPELINE_CACHE":           stringSetter(func(c *Configuration) *string { return &c.PipelineCache }),
}

// Load starts from Default, applies the .env file at path if there is one and finally
// the process environment. Unknown VKR_ keys are rejected.
func Load(path string) (Configuration, error) {
	configuration := Default()

	if path != "" {
		values, err := godotenv.Read(path)
		switch {
		case os.IsNotExist(errors.UnwrapAll(err)):
		case err != nil:
			return configuration, errors.Wrapf(err, "reading %s", path)
		default:
			if err := configuration.apply(values); err != nil {
				return configuration, errors.Wrapf(err, "in %s", path)
			}
		}
	}

	environment := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, _ := strings.Cut(entry, "=")
		if strings.HasPrefix(key, EnvPrefix) {
			environment[key] = value
		}
	}
	if err := configuration.apply(environment); err != nil {
		return configuration, errors.Wrap(err, "in environment")
	}

	return configuration, configuration.Validate()
}

func (c *Configuration) apply(values map[string]string) error {
	for key, value := range values {
		name := strings.TrimPrefix(key, EnvPrefix)
		set, ok := keys[name]
		if !ok || name == key {
			return errors.Newf("unknown setting %s", key)
		}
		if err := set(c, value); err != nil {
			return errors.Wrapf(err, "setting %s", key)
		}
	}
	return nil
}

// Validate rejects settings that would only fail later, deep inside device setup.
func (c Configuration) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size %dx%d has no area", c.Window.Width, c.Window.Height)
	}
	if _, ok := gpu.ParseDevicePreference(c.Device.Preference); !ok {
		return errors.Newf("unknown device preference %q", c.Device.Preference)
	}
	if samples := c.Device.MaxSamples; samples&(samples-1) != 0 || samples > 64 {
		return errors.Newf("sample count %d is not a power of two up to 64", samples)
	}
	if _, err := c.RequiredFeatures(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Debug.LogLevel); err != nil {
		return err
	}
	return nil
}

// RequiredFeatures parses Device.Features.
func (c Configuration) RequiredFeatures() (*core1_0.PhysicalDeviceFeatures, error) {
	return gpu.FeaturesByName(strings.Split(c.Device.Features, ",")...)
}

// Level is the configured log level.
func (c Configuration) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.Debug.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (c Configuration) DevicePreference() gpu.DevicePreference {
	preference, _ := gpu.ParseDevicePreference(c.Device.Preference)
	return preference
}
