// Package device binds the humanoid executor and screen capture to the local
// desktop through robotgo.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/go-vgo/robotgo"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

var _ schemas.ScreenCapturer = (*Robot)(nil)

// ErrInvalidScreen is returned when the desktop reports no usable area.
var ErrInvalidScreen = errors.New("device: screen reports zero size")

// Robot drives the real pointer and keyboard. It implements
// humanoid.Executor and schemas.ScreenCapturer.
type Robot struct {
	logger *zap.Logger
}

// NewRobot returns a Robot bound to the process's desktop session.
func NewRobot(logger *zap.Logger) *Robot {
	return &Robot{logger: logger.Named("device")}
}

// guard converts a panic inside the native layer into an error.
func (r *Robot) guard(op string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Device operation panicked", zap.String("op", op), zap.Any("panic", rec))
			err = fmt.Errorf("device: %s panicked: %v", op, rec)
		}
	}()
	return fn()
}

func (r *Robot) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Robot) MovePointer(ctx context.Context, x, y int) error {
	return r.guard("move", func() error {
		robotgo.Move(x, y)
		return nil
	})
}

func (r *Robot) PointerPosition(ctx context.Context) (int, int, error) {
	var x, y int
	err := r.guard("location", func() error {
		x, y = robotgo.Location()
		return nil
	})
	return x, y, err
}

func (r *Robot) ButtonDown(ctx context.Context) error {
	return r.guard("button down", func() error {
		return robotgo.Toggle("left")
	})
}

func (r *Robot) ButtonUp(ctx context.Context) error {
	return r.guard("button up", func() error {
		return robotgo.Toggle("left", "up")
	})
}

func (r *Robot) TypeRune(ctx context.Context, ch rune) error {
	return r.guard("type", func() error {
		robotgo.TypeStr(string(ch))
		return nil
	})
}

func (r *Robot) KeyTap(ctx context.Context, key string) error {
	return r.guard("key tap", func() error {
		return robotgo.KeyTap(normalizeKey(key))
	})
}

// KeyChord taps the last key with the others held as modifiers.
func (r *Robot) KeyChord(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	mods := make([]interface{}, 0, len(keys)-1)
	for _, k := range keys[:len(keys)-1] {
		mods = append(mods, normalizeKey(k))
	}
	main := normalizeKey(keys[len(keys)-1])
	return r.guard("key chord", func() error {
		return robotgo.KeyTap(main, mods...)
	})
}

func (r *Robot) ScreenSize(ctx context.Context) (int, int, error) {
	var w, h int
	err := r.guard("screen size", func() error {
		w, h = robotgo.GetScreenSize()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if w <= 0 || h <= 0 {
		return 0, 0, ErrInvalidScreen
	}
	return w, h, nil
}

// Capture grabs the primary display and encodes it as PNG. On scaled
// displays the raw frame is larger than the pointer's coordinate space, so
// the frame is resampled to ScreenSize before encoding.
func (r *Robot) Capture(ctx context.Context) (schemas.Screen, error) {
	w, h, err := r.ScreenSize(ctx)
	if err != nil {
		return schemas.Screen{}, err
	}

	var shot schemas.Screen
	err = r.guard("capture", func() error {
		img, err := robotgo.CaptureImg()
		if err != nil {
			return err
		}
		if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
			r.logger.Debug("Resampling capture to screen size",
				zap.Int("frame_width", b.Dx()), zap.Int("frame_height", b.Dy()),
				zap.Int("screen_width", w), zap.Int("screen_height", h))
			img = resample(img, w, h)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		bounds := img.Bounds()
		shot = schemas.Screen{PNG: buf.Bytes(), Width: bounds.Dx(), Height: bounds.Dy()}
		return nil
	})
	if err != nil {
		return schemas.Screen{}, fmt.Errorf("device: screen capture failed: %w", err)
	}
	if shot.Width <= 0 || shot.Height <= 0 {
		return schemas.Screen{}, ErrInvalidScreen
	}
	return shot, nil
}

// resample scales src to w x h with nearest-neighbour sampling.
func resample(src image.Image, w, h int) image.Image {
	sb := src.Bounds()
	if w <= 0 || h <= 0 || sb.Empty() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := sb.Min.Y + y*sb.Dy()/h
		for x := 0; x < w; x++ {
			sx := sb.Min.X + x*sb.Dx()/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// keyAliases maps common oracle spellings onto robotgo key names.
var keyAliases = map[string]string{
	"ctrl":       "control",
	"control":    "control",
	"cmd":        "command",
	"command":    "command",
	"super":      "command",
	"win":        "command",
	"meta":       "command",
	"option":     "alt",
	"return":     "enter",
	"esc":        "escape",
	"del":        "delete",
	"pageup":     "pageup",
	"page_up":    "pageup",
	"pagedown":   "pagedown",
	"page_down":  "pagedown",
	"arrowup":    "up",
	"arrowdown":  "down",
	"arrowleft":  "left",
	"arrowright": "right",
	"spacebar":   "space",
}

func normalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}
