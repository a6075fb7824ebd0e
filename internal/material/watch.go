package material

import (
	"fmt"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/callback"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
)

// shaderWatch is the live-edit subscription of one binding.
type shaderWatch struct {
	sub      host.Subscription
	resolver *Resolver
	engine   host.Handle
	shader   host.Handle
}

func (w *shaderWatch) onChange(node host.Handle, plug string) {
	r := w.resolver
	b, ok := r.bindings[w.engine]
	if !ok || b.watch != w || node != w.shader {
		return
	}

	var err error
	switch b.model.(type) {
	case Lambert:
		err = r.HandleLambertChange(w.engine, plug)
	case Phong:
		err = r.HandlePhongChange(w.engine, plug)
	case StandardSurface:
		err = r.HandleArnoldChange(w.engine, plug)
	}
	if err != nil {
		r.logger.Printf("Warning: shader %s.%s: %v", node, plug, err)
	}
}

// watch subscribes to the bound shader's attribute changes, once.
func (r *Resolver) watch(b *binding) error {
	if b.watch != nil {
		return nil
	}
	w := &shaderWatch{resolver: r, engine: b.engine, shader: b.shader}
	sub, err := r.graph.OnAttributeChanged(b.shader, w.onChange)
	if err != nil {
		return fmt.Errorf("watch shader %s: %w", b.shader, err)
	}
	w.sub = sub
	callback.Register(sub)
	b.watch = w
	return nil
}

func (r *Resolver) unwatch(b *binding) {
	if b.watch == nil {
		return
	}
	if err := callback.Cancel(b.watch.sub.ID); err != nil {
		r.logger.Printf("Warning: failed to cancel watch on %s: %v", b.watch.shader, err)
	}
	b.watch = nil
}

// HandleLambertChange re-resolves the lambert channel driven by plug.
func (r *Resolver) HandleLambertChange(engine host.Handle, plug string) error {
	return r.updateChannel(engine, ShaderLambert, plug)
}

// HandlePhongChange re-resolves the phong channel driven by plug.
func (r *Resolver) HandlePhongChange(engine host.Handle, plug string) error {
	return r.updateChannel(engine, ShaderPhong, plug)
}

// HandleArnoldChange re-resolves the standard surface channel driven by plug.
func (r *Resolver) HandleArnoldChange(engine host.Handle, plug string) error {
	return r.updateChannel(engine, ShaderStandardSurface, plug)
}

// updateChannel extracts and pushes only the channel driven by plug.
// Plugs that drive no channel are ignored.
func (r *Resolver) updateChannel(engine host.Handle, want SurfaceShaderType, plug string) error {
	b, ok := r.bindings[engine]
	if !ok || !b.material.IsValid() || b.model == nil || b.model.Type() != want {
		return nil
	}
	cp, ok := plugFor(b.model, plug)
	if !ok {
		return nil
	}

	v, err := extractChannel(r.graph, b.shader, cp)
	if err != nil {
		return err
	}
	mat, err := r.manager.Material(b.material)
	if err != nil {
		return err
	}
	r.stats.ChannelUpdates++
	return r.push(b, mat, cp.Channel, v)
}
