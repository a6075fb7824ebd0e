package scene

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/callback"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/logging"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/material"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/model"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/texture"
)

// SessionConfig holds the host and renderer endpoints of a viewport
// session.
type SessionConfig struct {
	Graph     host.Graph
	Materials renderer.MaterialPool
	Textures  renderer.TexturePool
	Scene     renderer.SceneGraph
	Output    renderer.OutputSource
	Display   texture.DisplayTextureManager
	Blitter   texture.Blitter // optional

	// Camera receives the viewport camera every frame when set. CameraName
	// picks the host camera; empty follows the first one.
	Camera     renderer.CameraSink
	CameraName string

	// Logger is the base logger; components derive prefixed loggers from it.
	Logger *log.Logger

	// OnEvent, when set, observes every event the synchronizer services.
	OnEvent func(Event)
}

// Session is one activation of the viewport override: defaults, resolver,
// geometry parser, synchronizer and texture bridge, created together and
// torn down together.
type Session struct {
	cfg      SessionConfig
	logger   *log.Logger
	defaults material.Defaults
	resolver *material.Resolver
	models   *model.Parser
	camera   *model.CameraParser
	sync     *Synchronizer
	bridge   *texture.Bridge
	closed   bool
}

// Activate builds every component and activates the synchronizer. On
// failure everything created so far is torn down.
func Activate(cfg SessionConfig) (*Session, error) {
	switch {
	case cfg.Graph == nil:
		return nil, fmt.Errorf("graph: %w", ErrMissingDependency)
	case cfg.Materials == nil, cfg.Textures == nil:
		return nil, fmt.Errorf("renderer pools: %w", ErrMissingDependency)
	case cfg.Scene == nil:
		return nil, fmt.Errorf("renderer scene graph: %w", ErrMissingDependency)
	case cfg.Output == nil:
		return nil, fmt.Errorf("renderer output: %w", ErrMissingDependency)
	case cfg.Display == nil:
		return nil, fmt.Errorf("display texture manager: %w", ErrMissingDependency)
	}
	base := cfg.Logger
	if base == nil {
		base = log.New(os.Stderr, "", log.LstdFlags)
	}

	s := &Session{cfg: cfg, logger: logging.For(base, "scene")}
	callback.SetLogger(logging.For(base, "callback"))

	var err error
	s.defaults, err = material.NewDefaults(cfg.Materials, cfg.Textures)
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}

	s.models, err = model.New(model.Config{
		Graph:   cfg.Graph,
		Scene:   cfg.Scene,
		Logger:  logging.For(base, "model"),
		Default: s.defaults.Material,
	})
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("activate: %w", err)
	}

	if cfg.Camera != nil {
		s.camera, err = model.NewCameraParser(model.CameraConfig{
			Graph:  cfg.Graph,
			Sink:   cfg.Camera,
			Logger: logging.For(base, "camera"),
			Name:   cfg.CameraName,
		})
		if err != nil {
			s.teardown()
			return nil, fmt.Errorf("activate: %w", err)
		}
	}

	s.resolver, err = material.New(material.Config{
		Graph:     cfg.Graph,
		Materials: cfg.Materials,
		Textures:  cfg.Textures,
		Defaults:  s.defaults,
		Assigner:  s.models,
		Logger:    logging.For(base, "material"),
	})
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("activate: %w", err)
	}

	s.sync, err = NewSynchronizer(Config{
		Graph:     cfg.Graph,
		Geometry:  s.models,
		Materials: s.resolver,
		Logger:    s.logger,
		OnEvent:   cfg.OnEvent,
	})
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("activate: %w", err)
	}

	tcfg := texture.DefaultConfig()
	tcfg.Logger = logging.For(base, "texture")
	s.bridge = texture.NewWithConfig(cfg.Display, cfg.Blitter, tcfg)

	if err := s.sync.Activate(); err != nil {
		s.teardown()
		return nil, err
	}
	s.logger.Printf("Activated: %d meshes tracked, %d bindings", s.models.Count(), len(s.resolver.Bindings()))
	return s, nil
}

// Frame copies the viewport camera into the renderer, then pushes the
// renderer's latest output into the display slots. It returns false when
// no display texture could be provided.
func (s *Session) Frame(outputWidth, outputHeight int) bool {
	if s.closed {
		return false
	}
	if s.camera != nil {
		s.camera.Update()
	}
	return s.bridge.UpdateTextures(outputWidth, outputHeight, s.cfg.Output.LatestFrame())
}

// Resolver returns the material resolver.
func (s *Session) Resolver() *material.Resolver { return s.resolver }

// Models returns the geometry parser.
func (s *Session) Models() *model.Parser { return s.models }

// Camera returns the camera parser, or nil when no camera sink is set.
func (s *Session) Camera() *model.CameraParser { return s.camera }

// Synchronizer returns the scene synchronizer.
func (s *Session) Synchronizer() *Synchronizer { return s.sync }

// Bridge returns the texture bridge.
func (s *Session) Bridge() *texture.Bridge { return s.bridge }

// Defaults returns the default material and texture.
func (s *Session) Defaults() material.Defaults { return s.defaults }

// Snapshot captures the observable state of the session.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Taken:     time.Now().UTC(),
		Active:    !s.closed && s.sync.IsActive(),
		Callbacks: callback.Count(),
	}
	if s.closed {
		return snap
	}

	for _, mesh := range s.models.Tracked() {
		mat, _ := s.models.MaterialOf(mesh)
		snap.Objects = append(snap.Objects, ObjectState{
			Mesh:     uint64(mesh),
			Material: uint64(mat),
			Default:  mat == s.defaults.Material,
		})
	}
	for _, b := range s.resolver.Bindings() {
		snap.Bindings = append(snap.Bindings, BindingState{
			Engine:   uint64(b.Engine),
			Shader:   uint64(b.Shader),
			Type:     b.Type.String(),
			TypeName: b.TypeName,
			Material: uint64(b.Material),
			Meshes:   len(b.Meshes),
			Watched:  b.Watched(),
		})
	}
	snap.Watches = s.resolver.SubscriptionCount()
	if s.camera != nil {
		if cam, ok := s.camera.Camera(); ok {
			snap.Camera = &cam
		}
	}

	color, depth := s.bridge.Slot(texture.SlotColor), s.bridge.Slot(texture.SlotDepth)
	snap.Color = SlotState{Width: color.Desc.Width(), Height: color.Desc.Height(), Valid: color.Valid()}
	snap.Depth = SlotState{Width: depth.Desc.Width(), Height: depth.Desc.Height(), Valid: depth.Valid()}

	st := s.sync.Stats()
	snap.Events = st.MeshesAdded + st.MeshesRemoved + st.ShadersRemoved + st.Connections
	snap.Dropped = st.Dropped
	return snap
}

// Close deactivates the synchronizer and releases everything the session
// created, defaults last. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	err := s.teardown()
	s.logger.Printf("Deactivated")
	return err
}

func (s *Session) teardown() error {
	s.closed = true
	var errs []error
	if s.sync != nil && s.sync.IsActive() {
		if _, err := s.sync.Deactivate(); err != nil {
			errs = append(errs, err)
		}
	} else {
		callback.RevokeAll()
	}
	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close texture bridge: %w", err))
		}
	}
	if s.resolver != nil {
		if err := s.resolver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close material resolver: %w", err))
		}
	}
	if s.models != nil {
		if err := s.models.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model parser: %w", err))
		}
	}
	if err := s.defaults.Release(s.cfg.Materials); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
