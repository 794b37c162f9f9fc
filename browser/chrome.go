package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const clickBinding = "__riskagentClick"

type ChromeOptions struct {
	ExecPath string
	Headless bool
	// Timeout bounds each DevTools round trip.
	Timeout time.Duration
	Logger  *zap.Logger
}

// ChromeWindow implements Window on a live Chrome tab. Nodes created or
// looked up through it are kept in a page-side registry keyed by integer
// handles, so Go values stay valid between evaluations.
type ChromeWindow struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	clickFns  map[int]func(time.Time)
	nextClick int
}

func NewChromeWindow(parent context.Context, url string, opts ChromeOptions) (*ChromeWindow, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", opts.Headless))
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	logger := opts.Logger.Named("chrome")
	ctx, ctxCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	w := &ChromeWindow{
		ctx: ctx,
		cancel: func() {
			ctxCancel()
			allocCancel()
		},
		timeout:  opts.Timeout,
		logger:   logger,
		clickFns: make(map[int]func(time.Time)),
	}
	chromedp.ListenTarget(ctx, w.onEvent)

	if err := chromedp.Run(ctx,
		runtime.Enable(),
		runtime.AddBinding(clickBinding),
		chromedp.Navigate(url),
		chromedp.Evaluate(registryScript, nil),
	); err != nil {
		w.cancel()
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return w, nil
}

const registryScript = `(function () {
  var key = Symbol.for("riskagent");
  if (window[key]) return;
  var ids = new WeakMap();
  var reg = { seq: 0, nodes: new Map() };
  reg.put = function (n) { var id = ++reg.seq; reg.nodes.set(id, n); return id; };
  reg.idOf = function (n) {
    if (ids.has(n)) return ids.get(n);
    var id = reg.put(n);
    ids.set(n, id);
    return id;
  };
  reg.get = function (id) {
    var n = reg.nodes.get(id);
    if (n === undefined) throw new Error("stale handle " + id);
    return n;
  };
  window[key] = reg;
  document.addEventListener("click", function () {
    window.` + clickBinding + `(String(Date.now()));
  }, true);
})()`

const registryRef = `window[Symbol.for("riskagent")]`

func (w *ChromeWindow) onEvent(ev any) {
	called, ok := ev.(*runtime.EventBindingCalled)
	if !ok || called.Name != clickBinding {
		return
	}
	ms, err := strconv.ParseInt(called.Payload, 10, 64)
	if err != nil {
		return
	}

	w.mu.Lock()
	fns := make([]func(time.Time), 0, len(w.clickFns))
	for i := 0; i < w.nextClick; i++ {
		if fn, ok := w.clickFns[i]; ok {
			fns = append(fns, fn)
		}
	}
	w.mu.Unlock()

	at := time.UnixMilli(ms)
	for _, fn := range fns {
		fn(at)
	}
}

func (w *ChromeWindow) Close() { w.cancel() }

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (w *ChromeWindow) eval(expr string, out any, opts ...chromedp.EvaluateOption) error {
	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()
	return classify(chromedp.Run(ctx, chromedp.Evaluate(expr, out, opts...)))
}

func (w *ChromeWindow) evalJSON(expr string, out any) error {
	var raw string
	if err := w.eval(expr, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// classify maps page exceptions onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var exp *runtime.ExceptionDetails
	if errors.As(err, &exp) {
		msg := exp.Error()
		if exp.Exception != nil {
			msg += " " + exp.Exception.Description
		}
		switch {
		case strings.Contains(msg, "SecurityError"):
			return fmt.Errorf("%w: %s", ErrSecurity, msg)
		case strings.Contains(msg, "stale handle"), strings.Contains(msg, "detached"):
			return fmt.Errorf("%w: %s", ErrDetached, msg)
		}
	}
	return err
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Window

func (w *ChromeWindow) Navigator() (Navigator, error) {
	var nav Navigator
	err := w.evalJSON(navigatorScript, &nav)
	return nav, err
}

func (w *ChromeWindow) Screen() (Screen, error) {
	var s Screen
	err := w.evalJSON(screenScript, &s)
	return s, err
}

func (w *ChromeWindow) Viewport() (Viewport, error) {
	var v Viewport
	err := w.evalJSON(viewportScript, &v)
	return v, err
}

func (w *ChromeWindow) stringProp(expr string) string {
	var s string
	if err := w.eval(`String(`+expr+` || "")`, &s); err != nil {
		return ""
	}
	return s
}

func (w *ChromeWindow) Location() string { return w.stringProp("location.href") }
func (w *ChromeWindow) Referrer() string { return w.stringProp("document.referrer") }
func (w *ChromeWindow) Timezone() string {
	return w.stringProp("Intl.DateTimeFormat().resolvedOptions().timeZone")
}

func (w *ChromeWindow) HasGlobal(name string) bool {
	var ok bool
	return w.eval(jsString(name)+` in window`, &ok) == nil && ok
}

func (w *ChromeWindow) NativeFunctionSource() (string, error) {
	var s string
	err := w.eval(nativeSourceScript, &s)
	return s, err
}

func (w *ChromeWindow) Document() (Document, error) {
	var ok bool
	if err := w.eval(`!!(window.document && document.documentElement)`, &ok); err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoDocument
	}
	return (*chromeDocument)(w), nil
}

func (w *ChromeWindow) Storage(kind StorageKind) (Storage, error) {
	var ok bool
	// reading the property itself throws where storage is denied
	if err := w.eval(`!!window.`+kind.String(), &ok); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrUnsupported)
	}
	return &chromeStorage{w: w, object: kind.String()}, nil
}

func (w *ChromeWindow) Cookies() (CookieJar, error) {
	return &chromeCookies{w: w}, nil
}

func (w *ChromeWindow) handle(expr string) (int, error) {
	var id int
	if err := w.eval(expr, &id); err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, ErrUnsupported
	}
	return id, nil
}

func (w *ChromeWindow) NewCanvas(width, height int) (Canvas, error) {
	id, err := w.handle(fmt.Sprintf(`(function () {
  var c = document.createElement("canvas");
  c.width = %d; c.height = %d;
  var ctx = c.getContext && c.getContext("2d");
  return ctx ? %s.put(ctx) : 0;
})()`, width, height, registryRef))
	if err != nil {
		return nil, fmt.Errorf("canvas 2d: %w", err)
	}
	return &chromeCanvas{w: w, id: id}, nil
}

func (w *ChromeWindow) NewWebGL() (WebGL, error) {
	id, err := w.handle(`(function () {
  var c = document.createElement("canvas");
  var gl = c.getContext("webgl") || c.getContext("experimental-webgl");
  return gl ? ` + registryRef + `.put(gl) : 0;
})()`)
	if err != nil {
		return nil, fmt.Errorf("webgl: %w", err)
	}
	return &chromeWebGL{w: w, id: id}, nil
}

func (w *ChromeWindow) NewAudioContext() (AudioContext, error) {
	id, err := w.handle(`(function () {
  var AC = window.AudioContext || window.webkitAudioContext;
  return AC ? ` + registryRef + `.put(new AC()) : 0;
})()`)
	if err != nil {
		return nil, fmt.Errorf("AudioContext: %w", err)
	}
	return &chromeAudioContext{w: w, id: id}, nil
}

func (w *ChromeWindow) NewOfflineAudioContext(channels, length int, sampleRate float64) (OfflineAudioContext, error) {
	var ok bool
	if err := w.eval(`!!(window.OfflineAudioContext || window.webkitOfflineAudioContext)`, &ok); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("OfflineAudioContext: %w", ErrUnsupported)
	}
	return &chromeOfflineContext{w: w, channels: channels, length: length, sampleRate: sampleRate}, nil
}

// Document

type chromeDocument ChromeWindow

func (d *chromeDocument) w() *ChromeWindow { return (*ChromeWindow)(d) }

func (d *chromeDocument) ReadyState() string { return d.w().stringProp("document.readyState") }

func (d *chromeDocument) HasProperty(name string) bool {
	var ok bool
	return d.w().eval(jsString(name)+` in document`, &ok) == nil && ok
}

func (d *chromeDocument) nodeHandle(expr string) (*chromeNode, error) {
	id, err := d.w().handle(`(function () { var n = ` + expr + `; return n ? ` + registryRef + `.idOf(n) : 0; })()`)
	if err != nil {
		return nil, err
	}
	return &chromeNode{w: d.w(), id: id}, nil
}

func (d *chromeDocument) Head() (Node, error) {
	n, err := d.nodeHandle("document.head")
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (d *chromeDocument) Body() (Node, error) {
	n, err := d.nodeHandle("document.body")
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (d *chromeDocument) CreateElement(tag string) (Element, error) {
	n, err := d.nodeHandle(`document.createElement(` + jsString(tag) + `)`)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (d *chromeDocument) CreateFrame() (Frame, error) {
	n, err := d.nodeHandle(`document.createElement("iframe")`)
	if err != nil {
		return nil, err
	}
	return &chromeFrame{chromeNode: *n}, nil
}

func (d *chromeDocument) Frames() ([]Frame, error) {
	var ids []int
	if err := d.w().eval(`Array.prototype.map.call(document.querySelectorAll("iframe"), function (f) {
  return `+registryRef+`.idOf(f);
})`, &ids); err != nil {
		return nil, err
	}
	frames := make([]Frame, len(ids))
	for i, id := range ids {
		frames[i] = &chromeFrame{chromeNode: chromeNode{w: d.w(), id: id}}
	}
	return frames, nil
}

func (d *chromeDocument) OnReady(fn func()) {
	w := d.w()
	go func() {
		var ok bool
		err := chromedp.Run(w.ctx, chromedp.Evaluate(`new Promise(function (resolve) {
  if (document.readyState !== "loading") return resolve(true);
  document.addEventListener("DOMContentLoaded", function () { resolve(true); }, { once: true });
})`, &ok, awaitPromise))
		if err != nil {
			w.logger.Debug("ready wait failed", zap.Error(err))
			return
		}
		fn()
	}()
}

func (d *chromeDocument) OnClick(fn func(at time.Time)) func() {
	w := d.w()
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextClick
	w.nextClick++
	w.clickFns[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.clickFns, id)
	}
}

// Nodes

type chromeNode struct {
	w  *ChromeWindow
	id int
}

func handleOf(el Element) (int, error) {
	switch n := el.(type) {
	case *chromeNode:
		return n.id, nil
	case *chromeFrame:
		return n.id, nil
	}
	return 0, fmt.Errorf("node belongs to another document")
}

func (n *chromeNode) call(body string, out any) error {
	return n.w.eval(fmt.Sprintf(`(function (el) { %s })(%s.get(%d))`, body, registryRef, n.id), out)
}

func (n *chromeNode) AppendChild(child Element) error {
	cid, err := handleOf(child)
	if err != nil {
		return err
	}
	return n.call(fmt.Sprintf(`el.appendChild(%s.get(%d));`, registryRef, cid), nil)
}

func (n *chromeNode) RemoveChild(child Element) error {
	cid, err := handleOf(child)
	if err != nil {
		return err
	}
	return n.call(fmt.Sprintf(`var c = %s.get(%d);
if (c.parentNode !== el) throw new Error("node is detached");
el.removeChild(c);`, registryRef, cid), nil)
}

func (n *chromeNode) SetAttribute(name, value string) error {
	return n.call(`el.setAttribute(`+jsString(name)+`, `+jsString(value)+`);`, nil)
}

func (n *chromeNode) SetText(text string) error {
	return n.call(`el.textContent = `+jsString(text)+`;`, nil)
}

func (n *chromeNode) Attached() bool {
	var ok bool
	return n.call(`return el.isConnected;`, &ok) == nil && ok
}

type chromeFrame struct {
	chromeNode
}

func (f *chromeFrame) Src() string {
	var s string
	if err := f.call(`return String(el.src || "");`, &s); err != nil {
		return ""
	}
	return s
}

func (f *chromeFrame) ComputedStyle() (Style, error) {
	var raw string
	if err := f.call(`var s = getComputedStyle(el);
var o = parseFloat(s.opacity);
return JSON.stringify({ display: s.display, visibility: s.visibility, opacity: isNaN(o) ? 1 : o });`, &raw); err != nil {
		return Style{}, err
	}
	var st Style
	return st, json.Unmarshal([]byte(raw), &st)
}

func (f *chromeFrame) BoundingRect() (Rect, error) {
	var raw string
	if err := f.call(`var r = el.getBoundingClientRect();
return JSON.stringify({ left: r.left, top: r.top, width: r.width, height: r.height });`, &raw); err != nil {
		return Rect{}, err
	}
	var r Rect
	return r, json.Unmarshal([]byte(raw), &r)
}

func (f *chromeFrame) ContentReadyState() (string, error) {
	var s string
	err := f.call(`if (!el.contentWindow) throw new Error("frame detached");
var d = el.contentDocument;
if (!d) throw new DOMException("cross-origin frame", "SecurityError");
return d.readyState;`, &s)
	return s, err
}

func (f *chromeFrame) ContentNavigator() (Navigator, error) {
	var raw string
	if err := f.call(`if (!el.contentWindow) throw new Error("frame detached");
return (`+navigatorReader+`)(el.contentWindow.navigator);`, &raw); err != nil {
		return Navigator{}, err
	}
	var nav Navigator
	return nav, json.Unmarshal([]byte(raw), &nav)
}

// OnLoad parks a promise on the frame's load event. The returned cancel
// abandons the wait.
func (f *chromeFrame) OnLoad(fn func()) func() {
	ctx, cancel := context.WithCancel(f.w.ctx)
	go func() {
		var ok bool
		err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`new Promise(function (resolve) {
  %s.get(%d).addEventListener("load", function () { resolve(true); }, { once: true });
})`, registryRef, f.id), &ok, awaitPromise))
		if err == nil && ok && ctx.Err() == nil {
			fn()
		}
	}()
	return cancel
}

// Canvas

type chromeCanvas struct {
	w  *ChromeWindow
	id int
}

func (c *chromeCanvas) do(body string, out any) error {
	return c.w.eval(fmt.Sprintf(`(function (ctx) { %s })(%s.get(%d))`, body, registryRef, c.id), out)
}

func (c *chromeCanvas) SetFont(font string) error {
	return c.do(`ctx.font = `+jsString(font)+`;`, nil)
}

func (c *chromeCanvas) SetFillStyle(style string) error {
	return c.do(`ctx.fillStyle = `+jsString(style)+`;`, nil)
}

func (c *chromeCanvas) SetTextBaseline(baseline string) error {
	return c.do(`ctx.textBaseline = `+jsString(baseline)+`;`, nil)
}

func (c *chromeCanvas) FillRect(x, y, w, h float64) error {
	return c.do(fmt.Sprintf(`ctx.fillRect(%g, %g, %g, %g);`, x, y, w, h), nil)
}

func (c *chromeCanvas) FillText(text string, x, y float64) error {
	return c.do(fmt.Sprintf(`ctx.fillText(%s, %g, %g);`, jsString(text), x, y), nil)
}

func (c *chromeCanvas) MeasureText(text string) (float64, error) {
	var width float64
	err := c.do(`return ctx.measureText(`+jsString(text)+`).width;`, &width)
	return width, err
}

func (c *chromeCanvas) DataURL() (string, error) {
	var s string
	err := c.do(`return ctx.canvas.toDataURL();`, &s)
	return s, err
}

// WebGL

type chromeWebGL struct {
	w  *ChromeWindow
	id int
}

func (g *chromeWebGL) do(body string, out any) error {
	return g.w.eval(fmt.Sprintf(`(function (gl) { %s })(%s.get(%d))`, body, registryRef, g.id), out)
}

func (g *chromeWebGL) HasExtension(name string) bool {
	var ok bool
	return g.do(`return !!gl.getExtension(`+jsString(name)+`);`, &ok) == nil && ok
}

func (g *chromeWebGL) Parameter(name string) (string, error) {
	var s string
	err := g.do(`var name = `+jsString(name)+`;
var target = gl;
if (name.indexOf("UNMASKED_") === 0) {
  target = gl.getExtension("`+DebugRendererInfo+`");
  if (!target) throw new Error("extension unavailable");
}
var v = gl.getParameter(target[name]);
return v == null ? "" : String(v);`, &s)
	return s, err
}

func (g *chromeWebGL) SupportedExtensions() ([]string, error) {
	var exts []string
	err := g.do(`return gl.getSupportedExtensions() || [];`, &exts)
	return exts, err
}

// Audio

type chromeAudioContext struct {
	w  *ChromeWindow
	id int
}

func (a *chromeAudioContext) Close() error {
	return a.w.eval(fmt.Sprintf(`(function () {
  var ctx = %[1]s.get(%[2]d);
  %[1]s.nodes.delete(%[2]d);
  return ctx.close().then(function () { return true; });
})()`, registryRef, a.id), nil, awaitPromise)
}

type chromeOfflineContext struct {
	w          *ChromeWindow
	channels   int
	length     int
	sampleRate float64
}

func (o *chromeOfflineContext) Render(ctx context.Context, osc Oscillator) (AudioBuffer, error) {
	script := fmt.Sprintf(`(async function () {
  var OAC = window.OfflineAudioContext || window.webkitOfflineAudioContext;
  var ctx = new OAC(%d, %d, %g);
  var osc = ctx.createOscillator();
  osc.type = %s;
  osc.frequency.value = %g;
  osc.connect(ctx.destination);
  osc.start(0);
  var buf = await ctx.startRendering();
  var out = [];
  for (var c = 0; c < buf.numberOfChannels; c++) out.push(Array.from(buf.getChannelData(c)));
  return JSON.stringify(out);
})()`, o.channels, o.length, o.sampleRate, jsString(osc.Type), osc.Frequency)

	runCtx, cancel := context.WithTimeout(o.w.ctx, o.w.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var raw string
	if err := classify(chromedp.Run(runCtx, chromedp.Evaluate(script, &raw, awaitPromise))); err != nil {
		return AudioBuffer{}, err
	}
	buf := AudioBuffer{SampleRate: o.sampleRate}
	if err := json.Unmarshal([]byte(raw), &buf.Channels); err != nil {
		return AudioBuffer{}, fmt.Errorf("decode samples: %w", err)
	}
	return buf, nil
}

// Storage

type chromeStorage struct {
	w      *ChromeWindow
	object string
}

func (s *chromeStorage) SetItem(key, value string) error {
	return s.w.eval(fmt.Sprintf(`window.%s.setItem(%s, %s)`, s.object, jsString(key), jsString(value)), nil)
}

func (s *chromeStorage) GetItem(key string) (string, bool, error) {
	var res struct {
		OK    bool   `json:"ok"`
		Value string `json:"value"`
	}
	err := s.w.evalJSON(fmt.Sprintf(`(function () {
  var v = window.%s.getItem(%s);
  return JSON.stringify({ ok: v !== null, value: v === null ? "" : v });
})()`, s.object, jsString(key)), &res)
	return res.Value, res.OK, err
}

func (s *chromeStorage) RemoveItem(key string) error {
	return s.w.eval(fmt.Sprintf(`window.%s.removeItem(%s)`, s.object, jsString(key)), nil)
}

type chromeCookies struct {
	w *ChromeWindow
}

func (c *chromeCookies) Cookie() (string, error) {
	var s string
	err := c.w.eval(`document.cookie`, &s)
	return s, err
}

func (c *chromeCookies) SetCookie(cookie string) error {
	return c.w.eval(`document.cookie = `+jsString(cookie)+`, undefined`, nil)
}
