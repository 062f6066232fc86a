package gpu

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// QueueRequest asks for one queue per priority from a queue family.
type QueueRequest struct {
	Family     int
	Priorities []float32
}

// LogicalDevice is the execution context a DeviceFactory creates.
type LogicalDevice interface {
	Queue(family, index int) core1_0.Queue
	Destroy()
}

type DeviceFactory[D LogicalDevice] interface {
	CreateDevice(adapter *Adapter, info core1_0.DeviceCreateInfo) (D, error)
}

// DeviceBuilder accumulates the queues, extensions and features for a logical device.
type DeviceBuilder struct {
	adapter    *Adapter
	queues     []QueueRequest
	extensions []string
	features   *core1_0.PhysicalDeviceFeatures
}

func NewDeviceBuilder(adapter *Adapter) *DeviceBuilder {
	return &DeviceBuilder{adapter: adapter}
}

// Queues requests count queues from family. Without priorities every queue gets 1.0.
func (b *DeviceBuilder) Queues(family, count int, priorities ...float32) *DeviceBuilder {
	if len(priorities) == 0 {
		priorities = make([]float32, count)
		for i := range priorities {
			priorities[i] = 1.0
		}
	}
	b.queues = append(b.queues, QueueRequest{Family: family, Priorities: priorities})
	return b
}

// QueueFamilies requests a single queue from each of the chosen families.
func (b *DeviceBuilder) QueueFamilies(indices QueueFamilyIndices) *DeviceBuilder {
	for _, family := range indices.Unique() {
		b.Queues(family, 1)
	}
	return b
}

func (b *DeviceBuilder) Extensions(names ...string) *DeviceBuilder {
	b.extensions = append(b.extensions, names...)
	return b
}

func (b *DeviceBuilder) Features(features *core1_0.PhysicalDeviceFeatures) *DeviceBuilder {
	b.features = MergeFeatures(b.features, features)
	return b
}

// CreateInfo validates the accumulated requests. Invalid requests are programming
// errors and come back as assertion failures.
func (b *DeviceBuilder) CreateInfo() (core1_0.DeviceCreateInfo, error) {
	if b.adapter == nil {
		return core1_0.DeviceCreateInfo{}, errors.AssertionFailedf("device builder has no adapter")
	}
	if len(b.queues) == 0 {
		return core1_0.DeviceCreateInfo{}, errors.AssertionFailedf("device builder has no queue requests")
	}

	seen := make(map[int]struct{})
	var queueInfos []core1_0.DeviceQueueCreateInfo

	for _, request := range b.queues {
		if request.Family < 0 || request.Family >= len(b.adapter.QueueFamilies) {
			return core1_0.DeviceCreateInfo{}, errors.AssertionFailedf("queue family %d does not exist", request.Family)
		}
		if _, ok := seen[request.Family]; ok {
			return core1_0.DeviceCreateInfo{}, errors.AssertionFailedf("queue family %d requested twice", request.Family)
		}
		seen[request.Family] = struct{}{}

		if len(request.Priorities) == 0 {
			return core1_0.DeviceCreateInfo{}, errors.AssertionFailedf("queue family %d requested with no queues", request.Family)
		}
		if available := b.adapter.QueueFamilies[request.Family].QueueCount; len(request.Priorities) > available {
			return core1_0.DeviceCreateInfo{}, errors.AssertionFailedf("queue family %d offers %d queues, %d requested",
				request.Family, available, len(request.Priorities))
		}
		for _, priority := range request.Priorities {
			if priority < 0 || priority > 1 {
				return core1_0.DeviceCreateInfo{}, errors.AssertionFailedf("queue priority %f is outside [0, 1]", priority)
			}
		}

		queueInfos = append(queueInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: request.Family,
			QueuePriorities:  request.Priorities,
		})
	}

	extensions := dedupe(b.extensions)
	features := b.features
	if features == nil {
		features = &core1_0.PhysicalDeviceFeatures{}
	}

	return core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueInfos,
		EnabledFeatures:       features,
		EnabledExtensionNames: extensions,
	}, nil
}

type QueueKey struct {
	Family int
	Index  int
}

// Context is a logical device together with the queues retrieved from it.
type Context[D LogicalDevice] struct {
	adapter *Adapter
	device  *Handle[D]
	queues  map[QueueKey]core1_0.Queue
}

// BuildDevice creates the logical device and retrieves one queue per requested slot. A
// failing creation call is reported as ErrDeviceCreation and is not retried.
func BuildDevice[D LogicalDevice](builder *DeviceBuilder, factory DeviceFactory[D]) (*Context[D], error) {
	info, err := builder.CreateInfo()
	if err != nil {
		return nil, err
	}

	device, err := factory.CreateDevice(builder.adapter, info)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "creating logical device on %s", builder.adapter.Name()), ErrDeviceCreation)
	}

	ctx := &Context[D]{
		adapter: builder.adapter,
		device:  NewHandle(device, func(d D) { d.Destroy() }),
		queues:  make(map[QueueKey]core1_0.Queue),
	}

	for _, request := range info.QueueCreateInfos {
		for index := range request.QueuePriorities {
			key := QueueKey{Family: request.QueueFamilyIndex, Index: index}
			ctx.queues[key] = device.Queue(key.Family, key.Index)
		}
	}

	return ctx, nil
}

func (c *Context[D]) Adapter() *Adapter {
	return c.adapter
}

// Device returns the logical device, or the zero value once destroyed.
func (c *Context[D]) Device() D {
	return c.device.Get()
}

func (c *Context[D]) Queue(family, index int) (core1_0.Queue, bool) {
	queue, ok := c.queues[QueueKey{Family: family, Index: index}]
	return queue, ok
}

// QueueKeys lists the retrieved queues ordered by family and index.
func (c *Context[D]) QueueKeys() []QueueKey {
	keys := make([]QueueKey, 0, len(c.queues))
	for key := range c.queues {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Family != keys[j].Family {
			return keys[i].Family < keys[j].Family
		}
		return keys[i].Index < keys[j].Index
	})
	return keys
}

func (c *Context[D]) Live() bool {
	return c.device.Live()
}

// Destroy releases the logical device exactly once. Every resource created from it must
// already be gone.
func (c *Context[D]) Destroy() {
	c.device.Destroy()
	c.queues = nil
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
