package vkng

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/renderer/gpu"
)

// ValidationLayer is the layer enabled when validation is requested.
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

// DebugCallback receives every message the validation layers emit.
type DebugCallback func(severity ext_debug_utils.DebugUtilsMessageSeverityFlags, kind ext_debug_utils.DebugUtilsMessageTypeFlags, message string)

type InstanceOptions struct {
	ApplicationName    string
	ApplicationVersion common.APIVersion
	APIVersion         common.APIVersion

	// Extensions must all be offered by the loader, typically the window's requirements.
	Extensions []string
	Layers     []string

	Validation bool
	// FailOnValidationError records the first error-severity message so it can be
	// surfaced through ValidationError.
	FailOnValidationError bool
	DebugCallback         DebugCallback

	Logger logrus.FieldLogger
}

// SurfaceCreator produces a presentation surface for an instance.
type SurfaceCreator interface {
	CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error)
}

// Instance owns the Vulkan instance, its debug messenger and the presentation surface.
type Instance struct {
	driver        core1_0.CoreInstanceDriver
	debugDriver   ext_debug_utils.ExtensionDriver
	messenger     ext_debug_utils.DebugUtilsMessenger
	surfaceDriver khr_surface.ExtensionDriver
	surface       khr_surface.Surface

	options InstanceOptions
	logger  logrus.FieldLogger

	mu            sync.Mutex
	validationErr error
}

// NewInstance checks every requested extension and layer against what the loader
// offers before creating the instance.
func NewInstance(global core1_0.GlobalDriver, options InstanceOptions) (*Instance, error) {
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if options.APIVersion == 0 {
		options.APIVersion = common.Vulkan1_2
	}

	i := &Instance{
		options: options,
		logger:  logger.WithField("component", "instance"),
	}

	info := core1_0.InstanceCreateInfo{
		ApplicationName:    options.ApplicationName,
		ApplicationVersion: options.ApplicationVersion,
		EngineName:         "vkngwrapper renderer",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         options.APIVersion,
	}

	available, _, err := global.AvailableExtensions()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "enumerating instance extensions"), gpu.ErrEnumeration)
	}
	if len(available) == 0 {
		return nil, errors.Mark(errors.New("loader offers no instance extensions"), gpu.ErrEnumeration)
	}

	extensions := append([]string(nil), options.Extensions...)
	if options.Validation {
		extensions = append(extensions, ext_debug_utils.ExtensionName)
	}
	for _, extension := range extensions {
		if _, ok := available[extension]; !ok {
			return nil, errors.Mark(errors.Newf("missing instance extension %s", extension), gpu.ErrEnumeration)
		}
	}
	if _, ok := available[khr_portability_enumeration.ExtensionName]; ok {
		extensions = append(extensions, khr_portability_enumeration.ExtensionName)
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}
	info.EnabledExtensionNames = extensions

	layers := append([]string(nil), options.Layers...)
	if options.Validation {
		layers = append(layers, ValidationLayer)
	}
	if len(layers) > 0 {
		availableLayers, _, err := global.AvailableLayers()
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "enumerating instance layers"), gpu.ErrEnumeration)
		}
		for _, layer := range layers {
			if _, ok := availableLayers[layer]; !ok {
				return nil, errors.Mark(errors.Newf("missing instance layer %s", layer), gpu.ErrEnumeration)
			}
		}
	}
	info.EnabledLayerNames = layers

	if options.Validation {
		info.Next = i.messengerInfo()
	}

	i.driver, _, err = global.CreateInstance(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "creating instance")
	}

	if options.Validation {
		i.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(i.driver)
		i.messenger, _, err = i.debugDriver.CreateDebugUtilsMessenger(nil, i.messengerInfo())
		if err != nil {
			i.Destroy()
			return nil, errors.Wrap(err, "creating debug messenger")
		}
	}

	i.surfaceDriver = khr_surface.CreateExtensionDriverFromCoreDriver(i.driver)

	sort.Strings(extensions)
	i.logger.WithFields(logrus.Fields{
		"extensions": extensions,
		"layers":     layers,
	}).Debug("instance created")
	return i, nil
}

func (i *Instance) messengerInfo() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityInfo | ext_debug_utils.SeverityVerbose,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    i.handleDebugMessage,
	}
}

func (i *Instance) handleDebugMessage(kind ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	entry := i.logger.WithFields(logrus.Fields{
		"type":      kind,
		"messageID": data.MessageIDName,
	})

	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		entry.Error(data.Message)
		if i.options.FailOnValidationError {
			i.recordValidationError(data.Message)
		}
	case severity&ext_debug_utils.SeverityWarning != 0:
		entry.Warn(data.Message)
	case severity&ext_debug_utils.SeverityInfo != 0:
		entry.Debug(data.Message)
	default:
		entry.Trace(data.Message)
	}

	if i.options.DebugCallback != nil {
		i.options.DebugCallback(severity, kind, data.Message)
	}
	return false
}

func (i *Instance) recordValidationError(message string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.validationErr == nil {
		i.validationErr = errors.Mark(errors.Newf("%s", message), gpu.ErrValidation)
	}
}

// ValidationError returns the first error-severity validation message, if any.
func (i *Instance) ValidationError() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.validationErr
}

func (i *Instance) Driver() core1_0.CoreInstanceDriver {
	return i.driver
}

func (i *Instance) SurfaceDriver() khr_surface.ExtensionDriver {
	return i.surfaceDriver
}

func (i *Instance) Surface() khr_surface.Surface {
	return i.surface
}

// AttachSurface creates the presentation surface the instance probes adapters against.
func (i *Instance) AttachSurface(creator SurfaceCreator) error {
	if i.surface.Initialized() {
		return errors.AssertionFailedf("instance already has a surface")
	}

	surface, err := creator.CreateSurface(i.driver.Instance(), i.surfaceDriver)
	if err != nil {
		return gpu.ResourceError(err, "creating surface")
	}
	i.surface = surface
	return nil
}

// Destroy releases the surface, then the debug messenger, then the instance. Every
// device created from it must already be gone.
func (i *Instance) Destroy() {
	if i.surface.Initialized() {
		i.surfaceDriver.DestroySurface(i.surface, nil)
		i.surface = khr_surface.Surface{}
	}

	if i.messenger.Initialized() {
		i.debugDriver.DestroyDebugUtilsMessenger(i.messenger, nil)
		i.messenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if i.driver != nil {
		i.driver.DestroyInstance(nil)
		i.driver = nil
	}
}
