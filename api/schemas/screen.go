// api/schemas/screen.go
package schemas

import "context"

// Screen is one captured frame. Width and Height are the pixel size of the
// encoded image, which can differ from the pointer's coordinate space on
// scaled displays.
type Screen struct {
	PNG    []byte
	Width  int
	Height int
}

// ScreenCapturer reports the pointer's coordinate space and captures frames.
// ScreenSize is authoritative for bounds checks; Capture only supplies the
// picture.
type ScreenCapturer interface {
	ScreenSize(ctx context.Context) (width, height int, err error)
	Capture(ctx context.Context) (Screen, error)
}
