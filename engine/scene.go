package engine

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/art"
	"github.com/spaghettifunk/shaderpixel/engine/assets"
	"github.com/spaghettifunk/shaderpixel/engine/assets/loaders"
	"github.com/spaghettifunk/shaderpixel/engine/core"
	"github.com/spaghettifunk/shaderpixel/engine/hud"
	"github.com/spaghettifunk/shaderpixel/engine/renderer"
	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
	"github.com/spaghettifunk/shaderpixel/engine/shader"
)

const (
	envVertexShader   = "assets/shaders/env.vert"
	envFragmentShader = "assets/shaders/env.frag"
	hudVertexShader   = "assets/shaders/hud.vert"
	hudFragmentShader = "assets/shaders/hud.frag"
)

type shaderPair struct {
	vert *shader.Handle
	frag *shader.Handle
}

// shaderLibrary hands out one handle per file and stage so that objects
// sharing a shader share its compile and its reloads. Precompiled .spv
// files become static handles.
type shaderLibrary struct {
	service *shader.Service
	watcher *assets.ShaderWatcher
	handles map[string]*shader.Handle
}

func newShaderLibrary(service *shader.Service, watcher *assets.ShaderWatcher) *shaderLibrary {
	return &shaderLibrary{
		service: service,
		watcher: watcher,
		handles: make(map[string]*shader.Handle),
	}
}

func (sl *shaderLibrary) get(path string, stage metadata.ShaderStage) (*shader.Handle, error) {
	key := fmt.Sprintf("%s#%s", shader.Canonical(path), stage)
	if h, ok := sl.handles[key]; ok {
		return h, nil
	}
	if strings.EqualFold(filepath.Ext(path), shader.SPIRVExt) {
		h, err := shader.LoadSPIRV(path, stage)
		if err != nil {
			return nil, err
		}
		sl.handles[key] = h
		return h, nil
	}
	h := shader.NewHandle(sl.service, path, stage)
	if sl.watcher != nil {
		if err := sl.watcher.Watch(h); err != nil {
			return nil, fmt.Errorf("watch %s: %w", path, err)
		}
		watcher := sl.watcher
		h.OnCompiled(func(m *metadata.ShaderModule) {
			if err := watcher.Track(h, m.Dependencies); err != nil {
				core.LogWarn("watch includes of %s: %s", h.Path(), err)
			}
		})
	}
	// start compiling before the first frame asks for it
	h.Reload(false)
	sl.handles[key] = h
	return h, nil
}

func (sl *shaderLibrary) pair(vert, frag string) (shaderPair, error) {
	v, err := sl.get(vert, metadata.ShaderStageVertex)
	if err != nil {
		return shaderPair{}, err
	}
	f, err := sl.get(frag, metadata.ShaderStageFragment)
	if err != nil {
		return shaderPair{}, err
	}
	return shaderPair{vert: v, frag: f}, nil
}

func (sl *shaderLibrary) len() int {
	return len(sl.handles)
}

type textureSource interface {
	Load(path string) (metadata.Texture, error)
}

// textureCache loads every texture file once. A texture that fails to load
// is remembered as missing and the object draws with the default texture.
type textureCache struct {
	loader   textureSource
	textures map[string]metadata.Texture
}

func newTextureCache(loader textureSource) *textureCache {
	return &textureCache{loader: loader, textures: make(map[string]metadata.Texture)}
}

func (tc *textureCache) get(path string) metadata.Texture {
	if path == "" {
		return nil
	}
	if tex, ok := tc.textures[path]; ok {
		return tex
	}
	tex, err := tc.loader.Load(path)
	if err != nil {
		core.LogWarn("%s, using the default texture", err)
		tex = nil
	}
	tc.textures[path] = tex
	return tex
}

func (tc *textureCache) destroy() {
	for path, tex := range tc.textures {
		if tex != nil {
			tex.Destroy()
		}
		delete(tc.textures, path)
	}
}

// meshCache parses every model file once.
type meshCache struct {
	models loaders.ModelLoader
	meshes map[string]*metadata.Mesh
}

func (mc *meshCache) get(path string) (*metadata.Mesh, error) {
	if m, ok := mc.meshes[path]; ok {
		return m, nil
	}
	m, err := mc.models.Load(path)
	if err != nil {
		return nil, err
	}
	if mc.meshes == nil {
		mc.meshes = make(map[string]*metadata.Mesh)
	}
	mc.meshes[path] = m
	return m, nil
}

// hasMirrorClone reports whether the object is drawn into the mirror image.
// The mirror cannot see itself and the portal box only exists around the
// camera.
func hasMirrorClone(o *art.Object) bool {
	return o.Role != art.RoleMirror && o.Role != art.RolePortalBox
}

// buildScene loads the art objects and adds a scene pipeline for every
// object, a mirror pipeline for the ones the mirror reflects and the
// pipelines of the room.
func (e *Engine) buildScene() error {
	objects, err := art.LoadScene(e.config.Scene)
	if err != nil {
		return err
	}
	layer, err := art.NewLayer(objects)
	if err != nil {
		return err
	}
	e.layer = layer
	e.shaders = make([]shaderPair, len(objects))

	var meshes meshCache
	for i, o := range objects {
		pair, err := e.library.pair(o.Vertex, o.Fragment)
		if err != nil {
			return fmt.Errorf("object %s: %w", o.Name, err)
		}
		e.shaders[i] = pair

		mesh, err := meshes.get(o.Model)
		if err != nil {
			return fmt.Errorf("object %s: %w", o.Name, err)
		}
		g, err := e.geometries.Load(mesh, o.Layout, o.ContainerScale)
		if err != nil {
			return fmt.Errorf("object %s: %w", o.Name, err)
		}

		cfg := renderer.PipelineConfig{
			Name:      o.Name,
			Vertex:    pair.vert,
			Fragment:  pair.frag,
			Geometry:  g,
			Layout:    o.Layout,
			Texture:   e.textures.get(o.Texture),
			Subpass:   metadata.SubpassScene,
			CullMode:  o.CullMode,
			DepthTest: o.DepthTest,
			Enabled:   o.Enabled,
			Art:       i,
		}
		if err := e.addPipeline(cfg, hasMirrorClone(o)); err != nil {
			return err
		}
	}

	if err := e.buildEnvironment(&meshes); err != nil {
		return err
	}
	core.LogInfo("scene %s: %d objects, %d pipelines, %d shaders", e.config.Scene, len(objects), len(e.frames.Pipelines()), e.library.len())
	return nil
}

// addPipeline adds cfg and, when mirrored, its clone in the mirror subpass.
func (e *Engine) addPipeline(cfg renderer.PipelineConfig, mirrored bool) error {
	if _, err := e.frames.AddPipeline(cfg); err != nil {
		return fmt.Errorf("pipeline %s: %w", cfg.Name, err)
	}
	if !mirrored {
		return nil
	}
	clone := mirrorConfig(cfg)
	if _, err := e.frames.AddPipeline(clone); err != nil {
		return fmt.Errorf("pipeline %s: %w", clone.Name, err)
	}
	return nil
}

// mirrorConfig is the mirror subpass variant of cfg. The reflected view
// reverses the winding, so the culled side flips too.
func mirrorConfig(cfg renderer.PipelineConfig) renderer.PipelineConfig {
	cfg.Name += " (mirror)"
	cfg.Subpass = metadata.SubpassMirror
	cfg.CullMode = cfg.CullMode.Mirrored()
	return cfg
}

// buildEnvironment adds the room: the configured OBJ file or, without one,
// the generated gallery.
func (e *Engine) buildEnvironment(meshes *meshCache) error {
	var mesh *metadata.Mesh
	if e.config.Env == "" {
		mesh = loaders.GenerateEnvironment(loaders.DefaultEnvironment())
	} else {
		m, err := meshes.get(e.config.Env)
		if err != nil {
			return fmt.Errorf("environment: %w", err)
		}
		mesh = m
	}
	g, err := e.geometries.Load(mesh, metadata.VertexLayoutPosNorm, mgl32.Vec3{1, 1, 1})
	if err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	pair, err := e.library.pair(envVertexShader, envFragmentShader)
	if err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return e.addPipeline(renderer.PipelineConfig{
		Name:      "environment",
		Vertex:    pair.vert,
		Fragment:  pair.frag,
		Geometry:  g,
		Layout:    metadata.VertexLayoutPosNorm,
		Subpass:   metadata.SubpassScene,
		CullMode:  metadata.FaceCullModeBack,
		DepthTest: true,
		Enabled:   true,
		Art:       renderer.NoArt,
	}, true)
}

// buildOverlay loads the HUD font and its atlas and adds the text pipeline.
func (e *Engine) buildOverlay() error {
	font, atlas, err := e.loadFont()
	if err != nil {
		return err
	}
	pair, err := e.library.pair(hudVertexShader, hudFragmentShader)
	if err != nil {
		atlas.Destroy()
		return err
	}
	overlay, err := hud.NewOverlay(e.frames, e.backend, font, atlas, pair.vert, pair.frag)
	if err != nil {
		atlas.Destroy()
		return err
	}
	e.overlay = overlay
	e.atlas = atlas
	return nil
}

func (e *Engine) loadFont() (*loaders.Font, metadata.Texture, error) {
	path := e.config.HUD.Font
	var (
		font *loaders.Font
		img  *image.RGBA
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		font, img = hud.BuiltinFont()
	case ".ttf", ".otf", ".ttc":
		fl := loaders.SystemFontLoader{Size: e.config.HUD.FontSize}
		font, img, err = fl.Load(path)
	default:
		return e.loadBitmapFont(path)
	}
	if err != nil {
		return nil, nil, err
	}
	atlas, err := e.backend.CreateTexture(renderer.Describe(font.Face, img, e.backend.SupportsLinearBlit()))
	if err != nil {
		return nil, nil, err
	}
	return font, atlas, nil
}

func (e *Engine) loadBitmapFont(path string) (*loaders.Font, metadata.Texture, error) {
	font, err := hud.LoadFont(path)
	if err != nil {
		return nil, nil, err
	}
	if len(font.Pages) == 0 {
		return nil, nil, fmt.Errorf("font %s has no pages", path)
	}
	// glyph rectangles are top down like the atlas image
	atlasLoader := &renderer.TextureLoader{Uploader: e.backend, Images: loaders.TextureLoader{FlipY: false}}
	atlas, err := atlasLoader.Load(font.Pages[0])
	if err != nil {
		return nil, nil, err
	}
	return font, atlas, nil
}
