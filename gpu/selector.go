package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// DefaultGraphicsMemory is the device-local memory floor used by PresetGraphics.
const DefaultGraphicsMemory = 1 << 30

// Enumerator produces the adapters available to a selector, in a stable order.
type Enumerator interface {
	Adapters() ([]*Adapter, error)
}

// EnumeratorFunc adapts a function to the Enumerator interface.
type EnumeratorFunc func() ([]*Adapter, error)

func (f EnumeratorFunc) Adapters() ([]*Adapter, error) {
	return f()
}

// Selector picks the first adapter, in enumeration order, that satisfies its criteria.
type Selector struct {
	adapters []*Adapter
	criteria Criteria
	logger   logrus.FieldLogger
}

// NewSelector enumerates adapters once. It fails with ErrNoAdapter when there are none.
func NewSelector(enumerator Enumerator, logger logrus.FieldLogger) (*Selector, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	adapters, err := enumerator.Adapters()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "enumerating adapters"), ErrEnumeration)
	}
	if len(adapters) == 0 {
		return nil, errors.Mark(errors.New("no adapters available"), ErrNoAdapter)
	}

	return &Selector{
		adapters: adapters,
		criteria: DefaultCriteria(),
		logger:   logger,
	}, nil
}

func (s *Selector) Criteria() Criteria {
	return s.criteria
}

// WithCriteria replaces every accumulated requirement.
func (s *Selector) WithCriteria(criteria Criteria) *Selector {
	s.criteria = criteria
	return s
}

func (s *Selector) MinAPIVersion(version common.APIVersion) *Selector {
	s.criteria.MinAPIVersion = version
	return s
}

func (s *Selector) GraphicsQueue(preference QueuePreference) *Selector {
	s.criteria.GraphicsQueue = preference
	return s
}

func (s *Selector) ComputeQueue(preference QueuePreference) *Selector {
	s.criteria.ComputeQueue = preference
	return s
}

func (s *Selector) TransferQueue(preference QueuePreference) *Selector {
	s.criteria.TransferQueue = preference
	return s
}

func (s *Selector) RequirePresent(require bool) *Selector {
	s.criteria.RequirePresent = require
	return s
}

// RequireExtensions adds to the required extensions.
func (s *Selector) RequireExtensions(names ...string) *Selector {
	s.criteria.Extensions = append(s.criteria.Extensions, names...)
	return s
}

func (s *Selector) MinDeviceLocalMemory(bytes int) *Selector {
	s.criteria.MinDeviceLocalMemory = bytes
	return s
}

func (s *Selector) PreferDeviceType(preference DevicePreference) *Selector {
	s.criteria.DeviceType = preference
	return s
}

// RequireFeatures adds to the required features.
func (s *Selector) RequireFeatures(features *core1_0.PhysicalDeviceFeatures) *Selector {
	s.criteria.Features = MergeFeatures(s.criteria.Features, features)
	return s
}

// PresetGraphics asks for a discrete GPU that can render and present to a swapchain with
// at least minMemory bytes of device-local memory.
func (s *Selector) PresetGraphics(minMemory int) *Selector {
	return s.PreferDeviceType(DeviceDiscrete).
		GraphicsQueue(QueueAvailable).
		TransferQueue(QueueAvailable).
		RequirePresent(true).
		RequireExtensions(khr_swapchain.ExtensionName).
		MinDeviceLocalMemory(minMemory)
}

// Select evaluates adapters in enumeration order and returns the first that passes every
// check. No scoring takes place.
func (s *Selector) Select() (*Adapter, error) {
	var reasons []string

	for index, adapter := range s.adapters {
		reason := s.criteria.Reject(adapter)
		if reason == "" {
			s.logger.WithFields(logrus.Fields{
				"adapter": adapter.Name(),
				"index":   index,
				"type":    adapter.DeviceType(),
			}).Info("selected adapter")
			return adapter, nil
		}

		s.logger.WithFields(logrus.Fields{
			"adapter": adapter.Name(),
			"index":   index,
		}).Debugf("rejected adapter: %s", reason)
		reasons = append(reasons, adapter.Name()+": "+reason)
	}

	err := errors.Newf("none of %d adapters satisfied the criteria", len(s.adapters))
	for _, reason := range reasons {
		err = errors.WithDetail(err, reason)
	}
	return nil, errors.Mark(err, ErrNoAdapter)
}
