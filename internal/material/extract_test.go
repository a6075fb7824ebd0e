package material

import (
	"testing"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host/memhost"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// buildMixedNetwork creates a standard surface with a textured base color,
// a constant metalness and a bump2d-driven normal.
func buildMixedNetwork(t *testing.T, g *memhost.Graph) host.Handle {
	t.Helper()

	shader, err := g.AddShader(StandardSurfaceTypeName, "aiStandardSurface1")
	if err != nil {
		t.Fatalf("AddShader failed: %v", err)
	}
	must(t, g.SetColor(host.Plug{Node: shader, Name: "baseColor"}, host.Vec3{1, 0, 0}))
	must(t, g.SetFloat(host.Plug{Node: shader, Name: "metalness"}, 0.8))
	must(t, g.SetColor(host.Plug{Node: shader, Name: "specularColor"}, host.Vec3{0.2, 0.3, 0.4}))

	albedo, err := g.AddFileTexture("file1", "textures/albedo.png")
	if err != nil {
		t.Fatalf("AddFileTexture failed: %v", err)
	}
	must(t, g.ConnectTexture(albedo, shader, "baseColor"))

	normal, err := g.AddFileTexture("file2", "textures/normal.png")
	if err != nil {
		t.Fatalf("AddFileTexture failed: %v", err)
	}
	bump, err := g.AddShader(bumpTypeName, "bump2d1")
	if err != nil {
		t.Fatalf("AddShader failed: %v", err)
	}
	must(t, g.Connect(host.Plug{Node: normal, Name: host.PlugOutColor}, host.Plug{Node: bump, Name: host.PlugBumpValue}))
	must(t, g.Connect(host.Plug{Node: bump, Name: host.PlugOutNormal}, host.Plug{Node: shader, Name: "normalCamera"}))

	return shader
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestExtractMixedChannels(t *testing.T) {
	g := memhost.New()
	shader := buildMixedNetwork(t, g)

	model, channels, err := ExtractChannels(g, shader)
	if err != nil {
		t.Fatalf("ExtractChannels failed: %v", err)
	}
	if model.Type() != ShaderStandardSurface {
		t.Fatalf("model = %v, want standard surface", model.Type())
	}

	want := DefaultChannels
	want[renderer.ChannelAlbedo] = TextureRef("textures/albedo.png")
	want[renderer.ChannelMetalness] = Scalar(0.8)
	want[renderer.ChannelSpecularColor] = Constant(host.Vec3{0.2, 0.3, 0.4})
	want[renderer.ChannelBump] = TextureRef("textures/normal.png")

	for _, ch := range renderer.Channels {
		if channels[ch] != want[ch] {
			t.Errorf("channel %s = %v, want %v", ch, channels[ch], want[ch])
		}
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	g := memhost.New()
	shader := buildMixedNetwork(t, g)

	_, first, err := ExtractChannels(g, shader)
	if err != nil {
		t.Fatalf("first extract failed: %v", err)
	}
	_, second, err := ExtractChannels(g, shader)
	if err != nil {
		t.Fatalf("second extract failed: %v", err)
	}
	if first != second {
		t.Errorf("extraction not idempotent:\n first:  %v\n second: %v", first, second)
	}
}

func TestExtractMissingPlugsUseDefaults(t *testing.T) {
	g := memhost.New()
	shader, err := g.AddShader(LambertTypeName, "lambert2")
	if err != nil {
		t.Fatalf("AddShader failed: %v", err)
	}
	// Wrong plug type on color: a float where a color is expected.
	must(t, g.SetFloat(host.Plug{Node: shader, Name: "color"}, 0.5))

	_, channels, err := ExtractChannels(g, shader)
	if err != nil {
		t.Fatalf("ExtractChannels failed: %v", err)
	}
	if channels != DefaultChannels {
		t.Errorf("channels = %v, want defaults", channels)
	}
}

func TestExtractIgnoresNonTextureUpstream(t *testing.T) {
	g := memhost.New()
	shader, err := g.AddShader(PhongTypeName, "phong1")
	if err != nil {
		t.Fatalf("AddShader failed: %v", err)
	}
	must(t, g.SetColor(host.Plug{Node: shader, Name: "color"}, host.Vec3{0, 1, 0}))
	ramp, err := g.AddShader("ramp", "ramp1")
	if err != nil {
		t.Fatalf("AddShader failed: %v", err)
	}
	must(t, g.Connect(host.Plug{Node: ramp, Name: host.PlugOutColor}, host.Plug{Node: shader, Name: "color"}))

	_, channels, err := ExtractChannels(g, shader)
	if err != nil {
		t.Fatalf("ExtractChannels failed: %v", err)
	}
	if got := channels[renderer.ChannelAlbedo]; got != Constant(host.Vec3{0, 1, 0}) {
		t.Errorf("albedo = %v, want the plug constant", got)
	}
}

func TestExtractStaleShader(t *testing.T) {
	g := memhost.New()
	shader, err := g.AddShader(LambertTypeName, "lambert3")
	if err != nil {
		t.Fatalf("AddShader failed: %v", err)
	}
	must(t, g.RemoveNode(shader))

	if _, _, err := ExtractChannels(g, shader); !host.IsStale(err) {
		t.Errorf("ExtractChannels on removed node = %v, want stale node error", err)
	}
}

func TestExtractKeepsNegativeBumpConstant(t *testing.T) {
	g := memhost.New()
	shader, err := g.AddShader(LambertTypeName, "lambert1")
	if err != nil {
		t.Fatalf("AddShader failed: %v", err)
	}
	must(t, g.SetColor(host.Plug{Node: shader, Name: "normalCamera"}, host.Vec3{-0.25, 0.5, -1}))
	must(t, g.SetColor(host.Plug{Node: shader, Name: "color"}, host.Vec3{-1, 0.5, 2}))

	_, channels, err := ExtractChannels(g, shader)
	if err != nil {
		t.Fatalf("ExtractChannels failed: %v", err)
	}
	if got := channels[renderer.ChannelBump].Const; got != [3]float32{-0.25, 0.5, -1} {
		t.Errorf("bump = %v, want [-0.25 0.5 -1]", got)
	}
	if got := channels[renderer.ChannelAlbedo].Const; got != [3]float32{0, 0.5, 2} {
		t.Errorf("albedo = %v, want negative lanes clamped", got)
	}
}
