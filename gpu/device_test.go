package gpu

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

type fakeDevice struct {
	info      core1_0.DeviceCreateInfo
	requested []QueueKey
	destroyed int
}

func (d *fakeDevice) Queue(family, index int) core1_0.Queue {
	d.requested = append(d.requested, QueueKey{Family: family, Index: index})
	return core1_0.Queue{}
}

func (d *fakeDevice) Destroy() {
	d.destroyed++
}

type fakeDeviceFactory struct {
	err     error
	created []*fakeDevice
}

func (f *fakeDeviceFactory) CreateDevice(adapter *Adapter, info core1_0.DeviceCreateInfo) (*fakeDevice, error) {
	if f.err != nil {
		return nil, f.err
	}
	device := &fakeDevice{info: info}
	f.created = append(f.created, device)
	return device, nil
}

func TestBuildDevice(t *testing.T) {
	c := qt.New(t)

	adapter := discreteAdapter()
	factory := &fakeDeviceFactory{}

	builder := NewDeviceBuilder(adapter).
		Queues(0, 2, 1.0, 0.5).
		Queues(2, 1).
		Extensions(khr_swapchain.ExtensionName, khr_swapchain.ExtensionName).
		Features(&core1_0.PhysicalDeviceFeatures{SamplerAnisotropy: true})

	ctx, err := BuildDevice[*fakeDevice](builder, factory)
	c.Assert(err, qt.IsNil)
	c.Assert(factory.created, qt.HasLen, 1)

	device := factory.created[0]
	c.Assert(device.info.EnabledExtensionNames, qt.DeepEquals, []string{khr_swapchain.ExtensionName})
	c.Assert(device.info.EnabledFeatures.SamplerAnisotropy, qt.IsTrue)
	c.Assert(device.info.QueueCreateInfos, qt.HasLen, 2)
	c.Assert(device.info.QueueCreateInfos[0].QueuePriorities, qt.DeepEquals, []float32{1.0, 0.5})
	c.Assert(device.info.QueueCreateInfos[1].QueuePriorities, qt.DeepEquals, []float32{1.0})

	c.Assert(ctx.QueueKeys(), qt.DeepEquals, []QueueKey{{0, 0}, {0, 1}, {2, 0}})
	_, ok := ctx.Queue(0, 1)
	c.Assert(ok, qt.IsTrue)
	_, ok = ctx.Queue(1, 0)
	c.Assert(ok, qt.IsFalse)

	c.Assert(ctx.Device(), qt.Equals, device)
	ctx.Destroy()
	ctx.Destroy()
	c.Assert(device.destroyed, qt.Equals, 1)
	c.Assert(ctx.Live(), qt.IsFalse)
}

func TestBuildDeviceFromQueueFamilies(t *testing.T) {
	c := qt.New(t)

	adapter := fakeAdapter(adapterSpec{
		families: []core1_0.QueueFlags{core1_0.QueueGraphics, core1_0.QueueTransfer},
		present:  []bool{false, true},
	})
	factory := &fakeDeviceFactory{}

	ctx, err := BuildDevice[*fakeDevice](NewDeviceBuilder(adapter).QueueFamilies(adapter.FindQueueFamilies()), factory)
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.QueueKeys(), qt.DeepEquals, []QueueKey{{0, 0}, {1, 0}})
	c.Assert(ctx.Adapter(), qt.Equals, adapter)
}

func TestBuildDeviceCreationFailure(t *testing.T) {
	c := qt.New(t)

	factory := &fakeDeviceFactory{err: errors.New("VK_ERROR_FEATURE_NOT_PRESENT")}
	_, err := BuildDevice[*fakeDevice](NewDeviceBuilder(discreteAdapter()).Queues(0, 1), factory)

	c.Assert(errors.Is(err, ErrDeviceCreation), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, `creating logical device on discrete: VK_ERROR_FEATURE_NOT_PRESENT`)
}

func TestBuildDeviceInvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		builder func(*Adapter) *DeviceBuilder
	}{{
		name:    "no queues",
		builder: func(a *Adapter) *DeviceBuilder { return NewDeviceBuilder(a) },
	}, {
		name:    "unknown family",
		builder: func(a *Adapter) *DeviceBuilder { return NewDeviceBuilder(a).Queues(9, 1) },
	}, {
		name:    "too many queues",
		builder: func(a *Adapter) *DeviceBuilder { return NewDeviceBuilder(a).Queues(0, 3) },
	}, {
		name:    "duplicate family",
		builder: func(a *Adapter) *DeviceBuilder { return NewDeviceBuilder(a).Queues(0, 1).Queues(0, 1) },
	}, {
		name:    "priority out of range",
		builder: func(a *Adapter) *DeviceBuilder { return NewDeviceBuilder(a).Queues(0, 1, 1.5) },
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)

			factory := &fakeDeviceFactory{}
			_, err := BuildDevice[*fakeDevice](test.builder(discreteAdapter()), factory)
			c.Assert(err, qt.IsNotNil)
			c.Assert(errors.HasAssertionFailure(err), qt.IsTrue)
			c.Assert(factory.created, qt.HasLen, 0)
		})
	}
}
