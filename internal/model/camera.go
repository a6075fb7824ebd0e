package model

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/chewxy/math32"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// mmPerInch converts film aperture plugs to the focal length's unit.
const mmPerInch = 25.4

// CameraConfig holds the collaborators of a CameraParser.
type CameraConfig struct {
	Graph  host.Graph
	Sink   renderer.CameraSink
	Logger *log.Logger

	// Name selects the viewport camera by transform or shape name. Empty
	// selects the first camera in the graph.
	Name string
}

// CameraParser copies the host's viewport camera into the renderer once
// per frame. Not safe for concurrent use.
type CameraParser struct {
	graph  host.Graph
	sink   renderer.CameraSink
	logger *log.Logger
	name   string

	shape   host.Handle
	current renderer.Camera
	synced  bool
	missing bool
}

// NewCameraParser creates a camera parser.
func NewCameraParser(cfg CameraConfig) (*CameraParser, error) {
	if cfg.Graph == nil || cfg.Sink == nil {
		return nil, ErrMissingDependency
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[model] ", log.LstdFlags)
	}
	return &CameraParser{
		graph:   cfg.Graph,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		name:    cfg.Name,
		current: renderer.DefaultCamera(),
	}, nil
}

// Update reads position, rotation, field of view and clip planes of the
// viewport camera and hands them to the sink. It returns false and leaves
// the renderer camera alone when there is no camera to read or the sink
// rejects it.
func (c *CameraParser) Update() bool {
	shape, ok := c.resolve()
	if !ok {
		if !c.missing {
			c.logger.Printf("Warning: no viewport camera %q, keeping the previous one", c.name)
			c.missing = true
		}
		return false
	}
	c.missing = false

	cam, err := c.read(shape)
	if err != nil {
		c.logger.Printf("Warning: viewport camera: %v", err)
		c.shape = 0
		return false
	}
	if err := c.sink.SetCamera(cam); err != nil {
		c.logger.Printf("Warning: failed to update renderer camera: %v", err)
		return false
	}
	c.current, c.synced = cam, true
	return true
}

// Camera returns the last camera handed to the sink, and whether one was.
func (c *CameraParser) Camera() (renderer.Camera, bool) {
	return c.current, c.synced
}

// Shape returns the camera shape being followed, if any.
func (c *CameraParser) Shape() host.Handle {
	return c.shape
}

func (c *CameraParser) resolve() (host.Handle, bool) {
	if c.shape.IsValid() {
		if kind, err := c.graph.Kind(c.shape); err == nil && kind == host.KindCamera {
			return c.shape, true
		}
		c.shape = 0
	}

	errFound := errors.New("found")
	err := c.graph.Walk(host.KindCamera, func(shape host.Handle) error {
		if c.name == "" || c.matches(shape) {
			c.shape = shape
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		c.logger.Printf("Warning: failed to list cameras: %v", err)
	}
	return c.shape, c.shape.IsValid()
}

func (c *CameraParser) matches(shape host.Handle) bool {
	if name, err := c.graph.Name(shape); err == nil && name == c.name {
		return true
	}
	parent, err := c.graph.Parent(shape)
	if err != nil || !parent.IsValid() {
		return false
	}
	name, err := c.graph.Name(parent)
	return err == nil && name == c.name
}

func (c *CameraParser) read(shape host.Handle) (renderer.Camera, error) {
	cam := renderer.DefaultCamera()

	transform, err := c.graph.Parent(shape)
	if err != nil {
		return cam, fmt.Errorf("camera %s: %w", shape, err)
	}
	if transform.IsValid() {
		if v, ok, err := c.vector(transform, host.PlugTranslate); err != nil {
			return cam, err
		} else if ok {
			cam.Position = v
		}
		if v, ok, err := c.vector(transform, host.PlugRotate); err != nil {
			return cam, err
		} else if ok {
			cam.Rotation = v
		}
	}

	for _, f := range []struct {
		plug string
		dst  *float32
	}{
		{host.PlugNearClipPlane, &cam.Near},
		{host.PlugFarClipPlane, &cam.Far},
	} {
		v, ok, err := c.scalar(shape, f.plug)
		if err != nil {
			return cam, err
		}
		if ok {
			*f.dst = v
		}
	}

	focal, okFocal, err := c.scalar(shape, host.PlugFocalLength)
	if err != nil {
		return cam, err
	}
	aperture, okAperture, err := c.scalar(shape, host.PlugHorizontalFilmAperture)
	if err != nil {
		return cam, err
	}
	if okFocal && okAperture && focal > 0 && aperture > 0 {
		cam.FOV = HorizontalFOV(focal, aperture)
	}
	return cam, nil
}

// scalar reads a float plug; ok is false when the node has no such plug.
func (c *CameraParser) scalar(node host.Handle, plug string) (float32, bool, error) {
	v, err := c.graph.Float(host.Plug{Node: node, Name: plug})
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, host.ErrPlugNotFound):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("read %s: %w", plug, err)
	}
}

func (c *CameraParser) vector(node host.Handle, plug string) ([3]float32, bool, error) {
	v, err := c.graph.Color(host.Plug{Node: node, Name: plug})
	switch {
	case err == nil:
		return [3]float32(v), true, nil
	case errors.Is(err, host.ErrPlugNotFound):
		return [3]float32{}, false, nil
	default:
		return [3]float32{}, false, fmt.Errorf("read %s: %w", plug, err)
	}
}

// HorizontalFOV returns the horizontal field of view in degrees of a lens
// with the given focal length (mm) and horizontal film aperture (inches).
func HorizontalFOV(focalLength, aperture float32) float32 {
	return 2 * math32.Atan(aperture*mmPerInch/(2*focalLength)) * 180 / math32.Pi
}
