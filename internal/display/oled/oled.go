// Package oled drives the pair of SSD1306 panels that form the assistant's
// eyes. Both panels share one I²C bus and are told apart by address.
package oled

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/host/v3"

	"github.com/MrWong99/iva/internal/display"
)

// Config selects the bus and panel addresses.
type Config struct {
	// Bus is the I²C bus name; empty selects the first available bus.
	Bus       string
	LeftAddr  uint16
	RightAddr uint16
	Width     int
	Height    int
}

// Panel is one display. *ssd1306.Dev implements it.
type Panel interface {
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

var _ Panel = (*ssd1306.Dev)(nil)

// Eyes is a [display.Output] drawing the left and right frame images onto
// two panels.
type Eyes struct {
	left, right Panel
	bus         io.Closer
}

var _ display.Output = (*Eyes)(nil)

// New returns Eyes drawing onto the given panels. Close halts them.
func New(left, right Panel) *Eyes {
	return &Eyes{left: left, right: right}
}

// Open initialises the host drivers, opens the I²C bus and attaches both
// panels.
func Open(cfg Config) (*Eyes, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("oled: init host: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("oled: open i2c bus %q: %w", cfg.Bus, err)
	}
	opts := ssd1306.Opts{W: cfg.Width, H: cfg.Height}

	left, err := ssd1306.NewI2C(addressed{Bus: bus, addr: cfg.LeftAddr}, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("oled: left panel at %#x: %w", cfg.LeftAddr, err)
	}
	right, err := ssd1306.NewI2C(addressed{Bus: bus, addr: cfg.RightAddr}, &opts)
	if err != nil {
		_ = left.Halt()
		bus.Close()
		return nil, fmt.Errorf("oled: right panel at %#x: %w", cfg.RightAddr, err)
	}
	return &Eyes{left: left, right: right, bus: bus}, nil
}

// Draw sends the frame's eye images to the panels.
func (e *Eyes) Draw(_ context.Context, f display.Frame) error {
	var errs []error
	if f.Left != nil {
		if err := e.left.Draw(f.Left.Bounds(), f.Left, image.Point{}); err != nil {
			errs = append(errs, fmt.Errorf("oled: left panel: %w", err))
		}
	}
	if f.Right != nil {
		if err := e.right.Draw(f.Right.Bounds(), f.Right, image.Point{}); err != nil {
			errs = append(errs, fmt.Errorf("oled: right panel: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close blanks both panels and releases the bus.
func (e *Eyes) Close() error {
	errs := []error{e.left.Halt(), e.right.Halt()}
	if e.bus != nil {
		errs = append(errs, e.bus.Close())
	}
	return errors.Join(errs...)
}

// addressed pins every transaction on the shared bus to one device address,
// so two controllers can live on the same bus.
type addressed struct {
	i2c.Bus
	addr uint16
}

func (a addressed) Tx(_ uint16, w, r []byte) error {
	return a.Bus.Tx(a.addr, w, r)
}
