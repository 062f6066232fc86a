package gpu

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

var srgb = khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

func integratedAdapter() *Adapter {
	return fakeAdapter(adapterSpec{
		name:       "integrated",
		deviceType: core1_0.PhysicalDeviceTypeIntegratedGPU,
		families:   []core1_0.QueueFlags{core1_0.QueueGraphics | core1_0.QueueCompute | core1_0.QueueTransfer},
		present:    []bool{true},
		extensions: []string{khr_swapchain.ExtensionName},
		localHeap:  512 << 20,
		formats:    []khr_surface.SurfaceFormat{srgb},
		modes:      []khr_surface.PresentMode{khr_surface.PresentModeFIFO},
	})
}

func discreteAdapter() *Adapter {
	return fakeAdapter(adapterSpec{
		name:       "discrete",
		deviceType: core1_0.PhysicalDeviceTypeDiscreteGPU,
		apiVersion: common.Vulkan1_2,
		families: []core1_0.QueueFlags{
			core1_0.QueueGraphics | core1_0.QueueCompute | core1_0.QueueTransfer,
			core1_0.QueueCompute | core1_0.QueueTransfer,
			core1_0.QueueTransfer,
		},
		present:    []bool{true, false, false},
		extensions: []string{khr_swapchain.ExtensionName, "VK_KHR_ray_query"},
		localHeap:  8 << 30,
		features:   core1_0.PhysicalDeviceFeatures{SamplerAnisotropy: true, GeometryShader: true},
		formats:    []khr_surface.SurfaceFormat{srgb},
		modes:      []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
	})
}

func headlessAdapter() *Adapter {
	return fakeAdapter(adapterSpec{
		name:       "headless",
		deviceType: core1_0.PhysicalDeviceTypeCPU,
		apiVersion: common.Vulkan1_0,
		families:   []core1_0.QueueFlags{core1_0.QueueCompute},
	})
}

func newTestSelector(c *qt.C, adapters ...*Adapter) *Selector {
	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	selector, err := NewSelector(EnumeratorFunc(func() ([]*Adapter, error) { return adapters, nil }), logger)
	c.Assert(err, qt.IsNil)
	return selector
}

func TestSelectorEmptyEnumeration(t *testing.T) {
	c := qt.New(t)

	_, err := NewSelector(EnumeratorFunc(func() ([]*Adapter, error) { return nil, nil }), nil)
	c.Assert(errors.Is(err, ErrNoAdapter), qt.IsTrue)

	_, err = NewSelector(EnumeratorFunc(func() ([]*Adapter, error) { return nil, errors.New("loader missing") }), nil)
	c.Assert(errors.Is(err, ErrEnumeration), qt.IsTrue)
}

func TestDefaultCriteriaAcceptEverything(t *testing.T) {
	c := qt.New(t)

	criteria := DefaultCriteria()
	for _, adapter := range []*Adapter{integratedAdapter(), discreteAdapter(), headlessAdapter(), fakeAdapter(adapterSpec{})} {
		c.Assert(criteria.Reject(adapter), qt.Equals, "", qt.Commentf("adapter %q", adapter.Name()))
	}
}

func TestSelectIsFirstMatch(t *testing.T) {
	c := qt.New(t)

	selector := newTestSelector(c, headlessAdapter(), integratedAdapter(), discreteAdapter())
	adapter, err := selector.Select()
	c.Assert(err, qt.IsNil)
	c.Assert(adapter.Name(), qt.Equals, "headless")

	adapter, err = selector.RequirePresent(true).Select()
	c.Assert(err, qt.IsNil)
	c.Assert(adapter.Name(), qt.Equals, "integrated")
}

func TestSelectPresetGraphics(t *testing.T) {
	c := qt.New(t)

	selector := newTestSelector(c, headlessAdapter(), integratedAdapter(), discreteAdapter())
	adapter, err := selector.PresetGraphics(DefaultGraphicsMemory).Select()
	c.Assert(err, qt.IsNil)
	c.Assert(adapter.Name(), qt.Equals, "discrete")
}

func TestSelectNoMatch(t *testing.T) {
	c := qt.New(t)

	selector := newTestSelector(c, integratedAdapter(), discreteAdapter())
	_, err := selector.RequireExtensions("VK_NV_imaginary").Select()
	c.Assert(errors.Is(err, ErrNoAdapter), qt.IsTrue)
	c.Assert(errors.GetAllDetails(err), qt.HasLen, 2)
}

func TestCriteriaAreConjunctive(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Criteria)
	}{
		{"api version", func(cr *Criteria) { cr.MinAPIVersion = common.Vulkan1_2 }},
		{"separate compute", func(cr *Criteria) { cr.ComputeQueue = QueueSeparate }},
		{"exclusive transfer", func(cr *Criteria) { cr.TransferQueue = QueueExclusive }},
		{"extension", func(cr *Criteria) { cr.Extensions = []string{"VK_KHR_ray_query"} }},
		{"device type", func(cr *Criteria) { cr.DeviceType = DeviceDiscrete }},
		{"features", func(cr *Criteria) { cr.Features = &core1_0.PhysicalDeviceFeatures{GeometryShader: true} }},
		{"memory", func(cr *Criteria) { cr.MinDeviceLocalMemory = 1 << 30 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)

			criteria := DefaultCriteria()
			criteria.RequirePresent = true
			c.Assert(criteria.Reject(integratedAdapter()), qt.Equals, "")
			c.Assert(criteria.Reject(discreteAdapter()), qt.Equals, "")

			test.modify(&criteria)
			c.Assert(criteria.Reject(integratedAdapter()), qt.Not(qt.Equals), "")
			c.Assert(criteria.Reject(discreteAdapter()), qt.Equals, "")
		})
	}
}

func TestMissingExtensionAlwaysRejects(t *testing.T) {
	c := qt.New(t)

	for _, adapter := range []*Adapter{integratedAdapter(), discreteAdapter(), headlessAdapter()} {
		criteria := DefaultCriteria()
		criteria.Extensions = []string{"VK_EXT_not_offered"}
		c.Assert(criteria.Accepts(adapter), qt.IsFalse)
	}
}

func TestPresentRequiresFormatsAndModes(t *testing.T) {
	c := qt.New(t)

	adapter := fakeAdapter(adapterSpec{
		families: []core1_0.QueueFlags{core1_0.QueueGraphics},
		present:  []bool{true},
		formats:  []khr_surface.SurfaceFormat{srgb},
	})

	criteria := DefaultCriteria()
	criteria.RequirePresent = true
	c.Assert(criteria.Reject(adapter), qt.Equals, "surface offers no present modes")
}

func TestRejectionsAreLogged(t *testing.T) {
	c := qt.New(t)

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	adapters := []*Adapter{headlessAdapter(), discreteAdapter()}
	selector, err := NewSelector(EnumeratorFunc(func() ([]*Adapter, error) { return adapters, nil }), logger)
	c.Assert(err, qt.IsNil)

	_, err = selector.PreferDeviceType(DeviceDiscrete).Select()
	c.Assert(err, qt.IsNil)

	entries := hook.AllEntries()
	c.Assert(entries, qt.HasLen, 2)
	c.Assert(entries[0].Level, qt.Equals, logrus.DebugLevel)
	c.Assert(entries[0].Data["adapter"], qt.Equals, "headless")
	c.Assert(entries[1].Level, qt.Equals, logrus.InfoLevel)
}

func TestParseDevicePreference(t *testing.T) {
	c := qt.New(t)

	preference, ok := ParseDevicePreference("Discrete")
	c.Assert(ok, qt.IsTrue)
	c.Assert(preference, qt.Equals, DeviceDiscrete)

	_, ok = ParseDevicePreference("quantum")
	c.Assert(ok, qt.IsFalse)
}
