package platform

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/veandco/go-sdl2/sdl"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name  string
		event sdl.Event
		want  Event
	}{
		{"quit", &sdl.QuitEvent{Type: sdl.QUIT}, EventQuit},
		{"escape", &sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Sym: sdl.K_ESCAPE}}, EventQuit},
		{"escape released", &sdl.KeyboardEvent{Type: sdl.KEYUP, Keysym: sdl.Keysym{Sym: sdl.K_ESCAPE}}, EventNone},
		{"other key", &sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Sym: sdl.K_SPACE}}, EventNone},
		{"resized", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_RESIZED}, EventResized},
		{"size changed", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_SIZE_CHANGED}, EventResized},
		{"minimized", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_MINIMIZED}, EventMinimized},
		{"restored", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_RESTORED}, EventRestored},
		{"moved", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_MOVED}, EventNone},
		{"mouse", &sdl.MouseMotionEvent{Type: sdl.MOUSEMOTION}, EventNone},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			qt.New(t).Assert(Translate(test.event), qt.Equals, test.want)
		})
	}
}

func TestVisibility(t *testing.T) {
	c := qt.New(t)

	var visibility Visibility
	c.Assert(visibility.Rendering(), qt.IsTrue)

	c.Assert(visibility.Apply(EventMinimized), qt.IsFalse)
	c.Assert(visibility.Rendering(), qt.IsFalse)

	c.Assert(visibility.Apply(EventRestored), qt.IsTrue)
	c.Assert(visibility.Rendering(), qt.IsTrue)

	visibility.Apply(EventMinimized)
	c.Assert(visibility.Apply(EventResized), qt.IsTrue)
	c.Assert(visibility.Rendering(), qt.IsTrue)

	c.Assert(visibility.Apply(EventQuit), qt.IsFalse)
}
