package present

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/renderer/gpu"
)

// FramesInFlight bounds the number of submissions the GPU may have outstanding.
const FramesInFlight = 2

type (
	Fence     = gpu.Handle[core1_0.Fence]
	Semaphore = gpu.Handle[core1_0.Semaphore]
)

// Status is what acquire and present report about the chain's fitness for the surface.
type Status int

const (
	StatusOK Status = iota
	StatusSuboptimal
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type FrameState int

const (
	FrameIdle FrameState = iota
	FrameAcquiring
	FrameSubmitted
	FramePresenting
)

func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "idle"
	case FrameAcquiring:
		return "acquiring"
	case FrameSubmitted:
		return "submitted"
	case FramePresenting:
		return "presenting"
	}
	return fmt.Sprintf("FrameState(%d)", int(s))
}

// Submission is one batch of recorded commands with its synchronization.
type Submission struct {
	Commands  core1_0.CommandBuffer
	Wait      *Semaphore
	WaitStage core1_0.PipelineStageFlags
	Signal    *Semaphore
	Fence     *Fence
}

// SyncDevice is the part of the device the frame loop drives. Waits never time out.
type SyncDevice interface {
	CreateSemaphore() (*Semaphore, error)
	CreateFence(signaled bool) (*Fence, error)
	WaitForFence(fence *Fence) error
	ResetFence(fence *Fence) error
	AcquireNextImage(chain *Chain, signal *Semaphore) (int, Status, error)
	Submit(submission Submission) error
	Present(chain *Chain, imageIndex int, wait *Semaphore) (Status, error)
}

// FrameSource supplies the per-image work of each frame.
type FrameSource interface {
	Chain() *Chain
	CommandBuffer(imageIndex int) core1_0.CommandBuffer
	// UpdateFrame writes the per-frame uniform data for the image.
	UpdateFrame(imageIndex int) error
	// Recreate rebuilds the chain and everything on it, reporting false when the
	// surface currently has no area.
	Recreate() (bool, error)
}

// FrameSlot holds the synchronization objects of one frame in flight.
type FrameSlot struct {
	ImageAvailable *Semaphore
	RenderFinished *Semaphore
	InFlight       *Fence

	state FrameState
}

func (s *FrameSlot) State() FrameState {
	return s.state
}

func (s *FrameSlot) destroy() {
	s.InFlight.Destroy()
	s.RenderFinished.Destroy()
	s.ImageAvailable.Destroy()
}

// Scheduler drives acquire, submit and present over a ring of FramesInFlight slots.
// It must be used from a single goroutine, except for NotifyResized.
type Scheduler struct {
	device SyncDevice
	source FrameSource
	logger logrus.FieldLogger

	slots          [FramesInFlight]*FrameSlot
	imagesInFlight []*Fence
	currentFrame   int

	resized atomic.Bool
}

// NewScheduler creates the synchronization objects for every slot. Fences start
// signaled so the first wait on each slot returns immediately. The source's chain must
// already be built; its image count sizes the per-image fence table.
func NewScheduler(device SyncDevice, source FrameSource, logger logrus.FieldLogger) (*Scheduler, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Scheduler{
		device: device,
		source: source,
		logger: logger.WithField("component", "frames"),
	}

	for i := range s.slots {
		slot, err := s.createSlot()
		if err != nil {
			s.Destroy()
			return nil, gpu.ResourceError(err, "creating frame slot %d", i)
		}
		s.slots[i] = slot
	}

	s.resetImages()
	return s, nil
}

func (s *Scheduler) createSlot() (*FrameSlot, error) {
	slot := &FrameSlot{}
	var err error

	slot.ImageAvailable, err = s.device.CreateSemaphore()
	if err != nil {
		return nil, err
	}

	slot.RenderFinished, err = s.device.CreateSemaphore()
	if err != nil {
		slot.destroy()
		return nil, err
	}

	slot.InFlight, err = s.device.CreateFence(true)
	if err != nil {
		slot.destroy()
		return nil, err
	}

	return slot, nil
}

// NotifyResized asks for the chain to be rebuilt after the next present. It is safe
// to call from any goroutine.
func (s *Scheduler) NotifyResized() {
	s.resized.Store(true)
}

func (s *Scheduler) CurrentFrame() int {
	return s.currentFrame
}

// State is the state of the slot the next frame will use.
func (s *Scheduler) State() FrameState {
	return s.slots[s.currentFrame].state
}

func (s *Scheduler) Slot(index int) *FrameSlot {
	return s.slots[index]
}

// DrawFrame renders and presents one frame. A chain that has gone out of date while
// acquiring is rebuilt and the frame is skipped without advancing the ring.
func (s *Scheduler) DrawFrame() error {
	slot := s.slots[s.currentFrame]

	if err := s.device.WaitForFence(slot.InFlight); err != nil {
		return errors.Wrapf(err, "waiting for frame %d", s.currentFrame)
	}
	slot.state = FrameIdle

	chain := s.source.Chain()
	if chain == nil {
		return errors.AssertionFailedf("drawing frame %d without a swapchain", s.currentFrame)
	}
	if chain.ImageCount() != len(s.imagesInFlight) {
		s.resetImages()
	}

	slot.state = FrameAcquiring
	imageIndex, acquireStatus, err := s.device.AcquireNextImage(chain, slot.ImageAvailable)
	if err != nil {
		slot.state = FrameIdle
		return errors.Wrap(err, "acquiring swapchain image")
	}
	if acquireStatus == StatusOutOfDate {
		slot.state = FrameIdle
		s.logger.Debug("swapchain out of date on acquire")
		return s.recreate()
	}

	if owner := s.imagesInFlight[imageIndex]; owner != nil && owner != slot.InFlight && owner.Live() {
		if err := s.device.WaitForFence(owner); err != nil {
			return errors.Wrapf(err, "waiting for image %d", imageIndex)
		}
	}
	s.imagesInFlight[imageIndex] = slot.InFlight

	if err := s.source.UpdateFrame(imageIndex); err != nil {
		return errors.Wrapf(err, "updating frame data for image %d", imageIndex)
	}

	if err := s.device.ResetFence(slot.InFlight); err != nil {
		return errors.Wrapf(err, "resetting fence for frame %d", s.currentFrame)
	}

	err = s.device.Submit(Submission{
		Commands:  s.source.CommandBuffer(imageIndex),
		Wait:      slot.ImageAvailable,
		WaitStage: core1_0.PipelineStageColorAttachmentOutput,
		Signal:    slot.RenderFinished,
		Fence:     slot.InFlight,
	})
	if err != nil {
		return errors.Wrap(err, "submitting frame")
	}
	slot.state = FramePresenting
	presentStatus, err := s.device.Present(chain, imageIndex, slot.RenderFinished)
	// The submission stays in flight until the slot's fence is waited on again.
	slot.state = FrameSubmitted
	if err != nil {
		return errors.Wrap(err, "presenting frame")
	}

	resized := s.resized.Swap(false)
	s.currentFrame = (s.currentFrame + 1) % FramesInFlight

	if resized || presentStatus != StatusOK || acquireStatus != StatusOK {
		s.logger.WithFields(logrus.Fields{
			"present": presentStatus,
			"resized": resized,
		}).Debug("swapchain needs rebuilding")
		return s.recreate()
	}

	return nil
}

func (s *Scheduler) recreate() error {
	rebuilt, err := s.source.Recreate()
	if err != nil {
		return errors.Wrap(err, "recreating swapchain")
	}
	if rebuilt {
		s.resetImages()
	}
	return nil
}

func (s *Scheduler) resetImages() {
	chain := s.source.Chain()
	s.imagesInFlight = make([]*Fence, chain.ImageCount())
}

// Destroy releases every slot's synchronization objects. The device must be idle.
func (s *Scheduler) Destroy() {
	for i, slot := range s.slots {
		if slot != nil {
			slot.destroy()
		}
		s.slots[i] = nil
	}
	s.imagesInFlight = nil
}
