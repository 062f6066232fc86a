package platform

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"
)

type Event int

const (
	EventNone Event = iota
	EventQuit
	EventResized
	EventMinimized
	EventRestored
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventQuit:
		return "quit"
	case EventResized:
		return "resized"
	case EventMinimized:
		return "minimized"
	case EventRestored:
		return "restored"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Translate maps an SDL event onto the few events the render loop cares about.
// Escape counts as a request to quit.
func Translate(event sdl.Event) Event {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return EventQuit
	case *sdl.KeyboardEvent:
		if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
			return EventQuit
		}
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			return EventResized
		case sdl.WINDOWEVENT_MINIMIZED:
			return EventMinimized
		case sdl.WINDOWEVENT_RESTORED:
			return EventRestored
		}
	}
	return EventNone
}

// PumpEvents drains SDL's queue, handing every relevant event to handler. It must run
// on the thread that created the window.
func PumpEvents(handler func(Event)) {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if translated := Translate(event); translated != EventNone {
			handler(translated)
		}
	}
}

// Visibility tracks whether the window is worth rendering to.
type Visibility struct {
	hidden bool
}

// Apply updates the visibility for event. It returns true when the event asks for the
// swapchain to be rebuilt.
func (v *Visibility) Apply(event Event) bool {
	switch event {
	case EventMinimized:
		v.hidden = true
	case EventRestored:
		v.hidden = false
		return true
	case EventResized:
		v.hidden = false
		return true
	}
	return false
}

func (v *Visibility) Rendering() bool {
	return !v.hidden
}
