package browser

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const DefaultPageURL = "https://localhost/"

type PageOptions struct {
	URL       string
	Referrer  string
	CSPHeader string
	// Timezone overrides the profile's zone, e.g. from a geoip lookup.
	Timezone string
	// InitScripts run in every window before page scripts, child frames
	// included, like an automation tool's new-document hook.
	InitScripts []string
	// FrameLoadDelay is how long an attached frame takes to load. Zero loads
	// on attach, negative never loads.
	FrameLoadDelay time.Duration
	// ReadyDelay keeps the document loading for this long after creation.
	ReadyDelay    time.Duration
	ScriptTimeout time.Duration
	Logger        *zap.Logger
}

// Page is an emulated browser window over a parsed HTML document. Script
// globals live in a goja runtime, so inline and init scripts really change
// what navigator, Function.prototype and document report.
//
// All methods are safe for concurrent use.
type Page struct {
	mu      sync.Mutex
	profile Profile
	opts    PageOptions
	logger  *zap.Logger

	vm         *goja.Runtime
	hasIn      goja.Callable
	root       *html.Node
	head, body *html.Node
	csp        contentPolicy
	frames     map[*html.Node]*frameElement
	elements   map[*html.Node]*element

	session *memoryStorage
	local   *memoryStorage
	cookies *cookieJar
	audio   audioContexts

	readyState string
	readyFns   []func()
	readyTimer *time.Timer
	clickFns   map[int]func(time.Time)
	nextClick  int
	closed     bool
}

func NewPage(profile Profile, document string, opts PageOptions) (*Page, error) {
	if err := validateProfile(profile, "profile '"+profile.Name+"'"); err != nil {
		return nil, err
	}
	if opts.URL == "" {
		opts.URL = DefaultPageURL
	}
	if opts.ScriptTimeout <= 0 {
		opts.ScriptTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	p := &Page{
		profile:  profile,
		opts:     opts,
		logger:   opts.Logger.Named("page"),
		root:     root,
		frames:   make(map[*html.Node]*frameElement),
		elements: make(map[*html.Node]*element),
		session:  newMemoryStorage(),
		local:    newMemoryStorage(),
		cookies:  newCookieJar(profile.Navigator.CookieEnabled),
		clickFns: make(map[int]func(time.Time)),
	}
	p.head = findElement(root, atom.Head)
	p.body = findElement(root, atom.Body)
	p.csp.add(opts.CSPHeader)
	walkElements(root, func(n *html.Node) {
		if n.DataAtom == atom.Meta && strings.EqualFold(attr(n, "http-equiv"), "content-security-policy") {
			p.csp.add(attr(n, "content"))
		}
	})

	p.vm, err = p.newRuntime()
	if err != nil {
		return nil, err
	}
	hasIn, err := p.vm.RunString(`(function (obj, name) { return name in obj; })`)
	if err != nil {
		return nil, fmt.Errorf("install helpers: %w", err)
	}
	p.hasIn, _ = goja.AssertFunction(hasIn)

	p.runDocumentScripts()

	// Frames present in the markup loaded with the document
	walkElements(root, func(n *html.Node) {
		if n.DataAtom == atom.Iframe {
			p.frameFor(n).loaded = opts.FrameLoadDelay >= 0
		}
	})

	if opts.ReadyDelay > 0 {
		p.readyState = ReadyLoading
		p.readyTimer = time.AfterFunc(opts.ReadyDelay, p.markReady)
	} else {
		p.readyState = ReadyComplete
	}
	return p, nil
}

// newRuntime builds a fresh window global for the profile and runs the init
// scripts in it. Child frames get their own runtime from the same inputs.
func (p *Page) newRuntime() (*goja.Runtime, error) {
	vm := goja.New()

	boot, err := json.Marshal(map[string]any{
		"navigator":     p.profile.Navigator,
		"screen":        p.profile.Screen,
		"viewport":      p.profile.Viewport,
		"hasChrome":     p.profile.HasChrome,
		"globals":       nonNil(p.profile.Globals),
		"documentProps": nonNil(p.profile.DocumentProps),
	})
	if err != nil {
		return nil, fmt.Errorf("encode bootstrap: %w", err)
	}
	if err := vm.Set("__riskagentBoot", string(boot)); err != nil {
		return nil, fmt.Errorf("set bootstrap: %w", err)
	}
	if _, err := vm.RunString(bootstrapScript); err != nil {
		return nil, fmt.Errorf("bootstrap window: %w", err)
	}

	global := vm.GlobalObject()
	if !p.profile.storageBlocked("session") {
		_ = global.Set("sessionStorage", storageObject(vm, p.session))
	}
	if !p.profile.storageBlocked("local") {
		_ = global.Set("localStorage", storageObject(vm, p.local))
	}

	for i, src := range p.opts.InitScripts {
		if err := p.run(vm, src); err != nil {
			p.logger.Debug("init script failed", zap.Int("index", i), zap.Error(err))
		}
	}
	return vm, nil
}

const bootstrapScript = `(function (g) {
  var boot = JSON.parse(g.__riskagentBoot);
  delete g.__riskagentBoot;
  var nav = boot.navigator;
  var navigator = {
    userAgent: nav.userAgent,
    platform: nav.platform,
    language: nav.language,
    languages: nav.languages || [],
    webdriver: nav.webdriver,
    hardwareConcurrency: nav.hardwareConcurrency,
    cookieEnabled: nav.cookieEnabled,
    doNotTrack: nav.doNotTrack,
    plugins: { length: nav.plugins },
    mimeTypes: { length: nav.mimeTypes }
  };
  if (nav.deviceMemory !== null) navigator.deviceMemory = nav.deviceMemory;
  g.navigator = navigator;
  g.screen = {
    width: boot.screen.width, height: boot.screen.height,
    availWidth: boot.screen.width, availHeight: boot.screen.height,
    colorDepth: boot.screen.colorDepth, pixelDepth: boot.screen.colorDepth
  };
  g.devicePixelRatio = boot.screen.pixelRatio;
  g.innerWidth = boot.viewport.width;
  g.innerHeight = boot.viewport.height;
  g.window = g;
  g.self = g;
  g.document = {};
  boot.documentProps.forEach(function (n) { g.document[n] = function () {}; });
  boot.globals.forEach(function (n) { g[n] = {}; });
  if (boot.hasChrome) g.chrome = { app: {}, runtime: {} };
})(this);`

func storageObject(vm *goja.Runtime, s *memoryStorage) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("setItem", func(key, value string) { _ = s.SetItem(key, value) })
	_ = obj.Set("getItem", func(key string) goja.Value {
		v, ok, _ := s.GetItem(key)
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v)
	})
	_ = obj.Set("removeItem", func(key string) { _ = s.RemoveItem(key) })
	return obj
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// run executes src with the script timeout. Callers hold p.mu or own vm.
func (p *Page) run(vm *goja.Runtime, src string) error {
	timer := time.AfterFunc(p.opts.ScriptTimeout, func() { vm.Interrupt("script timeout") })
	defer func() {
		timer.Stop()
		vm.ClearInterrupt()
	}()
	_, err := vm.RunString(src)
	return err
}

func (p *Page) evalJSON(vm *goja.Runtime, src string, out any) error {
	timer := time.AfterFunc(p.opts.ScriptTimeout, func() { vm.Interrupt("script timeout") })
	defer func() {
		timer.Stop()
		vm.ClearInterrupt()
	}()
	v, err := vm.RunString(src)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if err := json.Unmarshal([]byte(v.String()), out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// runDocumentScripts executes inline classic scripts in document order,
// skipping all of them when the policy forbids inline execution.
func (p *Page) runDocumentScripts() {
	if !p.csp.allowsInlineScript() {
		return
	}
	walkElements(p.root, func(n *html.Node) {
		if n.DataAtom != atom.Script || attr(n, "src") != "" || !isClassicScript(n) {
			return
		}
		if err := p.run(p.vm, textContent(n)); err != nil {
			p.logger.Debug("page script failed", zap.Error(err))
		}
	})
}

func isClassicScript(n *html.Node) bool {
	t := strings.ToLower(strings.TrimSpace(attr(n, "type")))
	return t == "" || t == "text/javascript" || t == "application/javascript"
}

func (p *Page) markReady() {
	p.mu.Lock()
	if p.closed || p.readyState != ReadyLoading {
		p.mu.Unlock()
		return
	}
	p.readyState = ReadyComplete
	fns := p.readyFns
	p.readyFns = nil
	p.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Window

func (p *Page) Navigator() (Navigator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var nav Navigator
	err := p.evalJSON(p.vm, navigatorScript, &nav)
	return nav, err
}

func (p *Page) Screen() (Screen, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var s Screen
	err := p.evalJSON(p.vm, screenScript, &s)
	return s, err
}

func (p *Page) Viewport() (Viewport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var v Viewport
	err := p.evalJSON(p.vm, viewportScript, &v)
	return v, err
}

func (p *Page) Location() string { return p.opts.URL }
func (p *Page) Referrer() string { return p.opts.Referrer }

func (p *Page) Timezone() string {
	if p.opts.Timezone != "" {
		return p.opts.Timezone
	}
	return p.profile.Timezone
}

func (p *Page) HasGlobal(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasProperty(p.vm.GlobalObject(), name)
}

func (p *Page) hasProperty(obj goja.Value, name string) bool {
	if obj == nil || goja.IsUndefined(obj) || goja.IsNull(obj) {
		return false
	}
	v, err := p.hasIn(goja.Undefined(), obj, p.vm.ToValue(name))
	return err == nil && v.ToBoolean()
}

func (p *Page) NativeFunctionSource() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := p.vm.RunString(nativeSourceScript)
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return v.String(), nil
}

func (p *Page) Document() (Document, error) {
	if p.root == nil || p.body == nil {
		return nil, ErrNoDocument
	}
	return (*pageDocument)(p), nil
}

func (p *Page) Storage(kind StorageKind) (Storage, error) {
	switch kind {
	case SessionStorage:
		if p.profile.storageBlocked("session") {
			return nil, fmt.Errorf("sessionStorage: %w", ErrSecurity)
		}
		return p.session, nil
	case LocalStorage:
		if p.profile.storageBlocked("local") {
			return nil, fmt.Errorf("localStorage: %w", ErrSecurity)
		}
		return p.local, nil
	}
	return nil, fmt.Errorf("storage kind %d: %w", kind, ErrUnsupported)
}

func (p *Page) Cookies() (CookieJar, error) {
	if p.profile.storageBlocked("cookie") {
		return nil, fmt.Errorf("document.cookie: %w", ErrSecurity)
	}
	return p.cookies, nil
}

func (p *Page) NewCanvas(width, height int) (Canvas, error) {
	if !p.profile.Canvas.Supported {
		return nil, fmt.Errorf("canvas 2d: %w", ErrUnsupported)
	}
	if width <= 0 || height <= 0 {
		width, height = 300, 150
	}
	return newEmulatedCanvas(width, height, p.profile.Fonts, p.profile.Canvas.NoiseSeed), nil
}

func (p *Page) NewWebGL() (WebGL, error) {
	if p.profile.WebGL == nil {
		return nil, fmt.Errorf("webgl: %w", ErrUnsupported)
	}
	return &emulatedWebGL{profile: *p.profile.WebGL}, nil
}

func (p *Page) NewAudioContext() (AudioContext, error) {
	if !p.profile.Audio.Supported {
		return nil, fmt.Errorf("AudioContext: %w", ErrUnsupported)
	}
	return p.audio.newContext(), nil
}

func (p *Page) NewOfflineAudioContext(channels, length int, sampleRate float64) (OfflineAudioContext, error) {
	if !p.profile.Audio.Supported {
		return nil, fmt.Errorf("OfflineAudioContext: %w", ErrUnsupported)
	}
	if channels < 1 || channels > 32 || length < 1 || sampleRate < 3000 || sampleRate > 768000 {
		return nil, fmt.Errorf("OfflineAudioContext(%d, %d, %g): invalid arguments", channels, length, sampleRate)
	}
	return &emulatedOfflineContext{
		channels:   channels,
		length:     length,
		sampleRate: sampleRate,
		skew:       p.profile.Audio.Skew,
	}, nil
}

// Harness helpers

func (p *Page) Profile() Profile { return p.profile }

// RunScript evaluates src in the page's main world.
func (p *Page) RunScript(src string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run(p.vm, src)
}

// Click dispatches a click at the given time to every click listener.
func (p *Page) Click(at time.Time) {
	p.mu.Lock()
	fns := make([]func(time.Time), 0, len(p.clickFns))
	for i := 0; i < p.nextClick; i++ {
		if fn, ok := p.clickFns[i]; ok {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(at)
	}
}

// OpenAudioContexts reports realtime audio contexts not yet closed.
func (p *Page) OpenAudioContexts() int { return int(p.audio.open.Load()) }

// HTML serializes the current document.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b strings.Builder
	_ = html.Render(&b, p.root)
	return b.String()
}

// Close stops pending timers and drops listeners. The page stays readable.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.readyTimer != nil {
		p.readyTimer.Stop()
	}
	for _, f := range p.frames {
		f.stopLoad()
	}
	p.clickFns = map[int]func(time.Time){}
	p.readyFns = nil
}
