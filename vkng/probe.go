package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/renderer/gpu"
	"golang.org/x/sync/errgroup"
)

// Adapters probes every physical device concurrently. The result keeps the order the
// loader enumerated them in.
func (i *Instance) Adapters() ([]*gpu.Adapter, error) {
	devices, _, err := i.driver.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "enumerating physical devices"), gpu.ErrEnumeration)
	}

	adapters := make([]*gpu.Adapter, len(devices))
	var group errgroup.Group
	for index, device := range devices {
		index, device := index, device
		group.Go(func() error {
			adapter, err := i.Probe(device)
			if err != nil {
				return errors.Wrapf(err, "probing physical device %d", index)
			}
			adapters[index] = adapter
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return adapters, nil
}

// Probe captures a physical device's capabilities. Surface fields are only filled once
// a surface has been attached.
func (i *Instance) Probe(device core1_0.PhysicalDevice) (*gpu.Adapter, error) {
	properties, err := i.driver.GetPhysicalDeviceProperties(device)
	if err != nil {
		return nil, errors.Wrap(err, "querying properties")
	}

	extensions, _, err := i.driver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return nil, errors.Wrap(err, "querying device extensions")
	}
	names := make([]string, 0, len(extensions))
	for name := range extensions {
		names = append(names, name)
	}

	adapter := gpu.Adapter{
		Handle:        device,
		Properties:    properties,
		Features:      i.driver.GetPhysicalDeviceFeatures(device),
		Memory:        i.driver.GetPhysicalDeviceMemoryProperties(device),
		QueueFamilies: i.driver.GetPhysicalDeviceQueueFamilyProperties(device),
		Extensions:    names,
	}

	if i.surface.Initialized() {
		adapter.Surface, err = i.querySurface(device, len(adapter.QueueFamilies))
		if err != nil {
			return nil, err
		}
	}

	return gpu.NewAdapter(adapter), nil
}

func (i *Instance) querySurface(device core1_0.PhysicalDevice, familyCount int) (*gpu.SurfaceSupport, error) {
	support := &gpu.SurfaceSupport{}
	var err error

	support.Capabilities, _, err = i.surfaceDriver.GetPhysicalDeviceSurfaceCapabilities(i.surface, device)
	if err != nil {
		return nil, errors.Wrap(err, "querying surface capabilities")
	}

	support.Formats, _, err = i.surfaceDriver.GetPhysicalDeviceSurfaceFormats(i.surface, device)
	if err != nil {
		return nil, errors.Wrap(err, "querying surface formats")
	}

	support.PresentModes, _, err = i.surfaceDriver.GetPhysicalDeviceSurfacePresentModes(i.surface, device)
	if err != nil {
		return nil, errors.Wrap(err, "querying present modes")
	}

	support.PresentQueueFamilies = make([]bool, familyCount)
	for family := 0; family < familyCount; family++ {
		supported, _, err := i.surfaceDriver.GetPhysicalDeviceSurfaceSupport(i.surface, device, family)
		if err != nil {
			return nil, errors.Wrapf(err, "querying present support of queue family %d", family)
		}
		support.PresentQueueFamilies[family] = supported
	}

	return support, nil
}

// SurfaceQuery reports the attached surface's capabilities as seen by one adapter.
type SurfaceQuery struct {
	instance *Instance
	device   core1_0.PhysicalDevice
}

func (i *Instance) SurfaceQuery(adapter *gpu.Adapter) SurfaceQuery {
	return SurfaceQuery{instance: i, device: adapter.Handle}
}

func (q SurfaceQuery) SurfaceCapabilities() (*khr_surface.SurfaceCapabilities, error) {
	capabilities, _, err := q.instance.surfaceDriver.GetPhysicalDeviceSurfaceCapabilities(q.instance.surface, q.device)
	if err != nil {
		return nil, errors.Wrap(err, "querying surface capabilities")
	}
	return capabilities, nil
}

// FindSupportedFormat returns the first candidate whose tiling features include features.
func (i *Instance) FindSupportedFormat(adapter *gpu.Adapter, candidates []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range candidates {
		properties := i.driver.GetPhysicalDeviceFormatProperties(adapter.Handle, format)

		if tiling == core1_0.ImageTilingLinear && properties.LinearTilingFeatures&features == features {
			return format, nil
		}
		if tiling == core1_0.ImageTilingOptimal && properties.OptimalTilingFeatures&features == features {
			return format, nil
		}
	}

	return core1_0.FormatUndefined, errors.Newf("no supported format for tiling %s with features %s", tiling, features)
}

// FindDepthFormat picks a depth attachment format usable with optimal tiling.
func (i *Instance) FindDepthFormat(adapter *gpu.Adapter) (core1_0.Format, error) {
	return i.FindSupportedFormat(adapter,
		[]core1_0.Format{core1_0.FormatD32SignedFloat, core1_0.FormatD32SignedFloatS8UnsignedInt, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt},
		core1_0.ImageTilingOptimal,
		core1_0.FormatFeatureDepthStencilAttachment)
}

// SupportsLinearBlit reports whether images of format can be blitted with linear filtering.
func (i *Instance) SupportsLinearBlit(adapter *gpu.Adapter, format core1_0.Format) bool {
	properties := i.driver.GetPhysicalDeviceFormatProperties(adapter.Handle, format)
	return properties.OptimalTilingFeatures&core1_0.FormatFeatureSampledImageFilterLinear != 0
}
