package browser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"riskagent/utils"
)

// Default iframe box when neither CSS nor attributes size it.
const (
	defaultFrameWidth  = 300
	defaultFrameHeight = 150
)

// pageDocument is the Document view of a Page.
type pageDocument Page

func (d *pageDocument) page() *Page { return (*Page)(d) }

func (d *pageDocument) ReadyState() string {
	p := d.page()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyState
}

func (d *pageDocument) HasProperty(name string) bool {
	p := d.page()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasProperty(p.vm.Get("document"), name)
}

func (d *pageDocument) Head() (Node, error) {
	p := d.page()
	if p.head == nil {
		return nil, ErrNoDocument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elementFor(p.head), nil
}

func (d *pageDocument) Body() (Node, error) {
	p := d.page()
	if p.body == nil {
		return nil, ErrNoDocument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elementFor(p.body), nil
}

func (d *pageDocument) CreateElement(tag string) (Element, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return nil, errors.New("createElement: empty tag name")
	}
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}

	p := d.page()
	p.mu.Lock()
	defer p.mu.Unlock()
	if n.DataAtom == atom.Iframe {
		return p.frameFor(n), nil
	}
	return p.elementFor(n), nil
}

func (d *pageDocument) CreateFrame() (Frame, error) {
	el, err := d.CreateElement("iframe")
	if err != nil {
		return nil, err
	}
	return el.(Frame), nil
}

func (d *pageDocument) Frames() ([]Frame, error) {
	p := d.page()
	p.mu.Lock()
	defer p.mu.Unlock()

	var frames []Frame
	walkElements(p.root, func(n *html.Node) {
		if n.DataAtom == atom.Iframe {
			frames = append(frames, p.frameFor(n))
		}
	})
	return frames, nil
}

func (d *pageDocument) OnReady(fn func()) {
	p := d.page()
	p.mu.Lock()
	if p.readyState == ReadyLoading && !p.closed {
		p.readyFns = append(p.readyFns, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	go fn()
}

func (d *pageDocument) OnClick(fn func(at time.Time)) func() {
	p := d.page()
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextClick
	p.nextClick++
	p.clickFns[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.clickFns, id)
	}
}

// Element wrappers, one per node so identity survives repeated lookups.
// Callers hold p.mu.

func (p *Page) elementFor(n *html.Node) *element {
	if e, ok := p.elements[n]; ok {
		return e
	}
	e := &element{page: p, node: n}
	p.elements[n] = e
	return e
}

func (p *Page) frameFor(n *html.Node) *frameElement {
	if f, ok := p.frames[n]; ok {
		return f
	}
	f := &frameElement{element: element{page: p, node: n}, loadFns: make(map[int]func())}
	p.frames[n] = f
	return f
}

func (p *Page) nodeOf(el Element) (*html.Node, error) {
	switch e := el.(type) {
	case *element:
		if e.page == p {
			return e.node, nil
		}
	case *frameElement:
		if e.page == p {
			return e.node, nil
		}
	}
	return nil, fmt.Errorf("node belongs to another document")
}

// connected reports whether n hangs off the document root.
func (p *Page) connected(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == p.root {
			return true
		}
	}
	return false
}

type element struct {
	page *Page
	node *html.Node
}

func (e *element) AppendChild(child Element) error {
	p := e.page
	p.mu.Lock()
	cn, err := p.nodeOf(child)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if cn.Parent != nil {
		p.mu.Unlock()
		return fmt.Errorf("appendChild: node already has a parent")
	}
	connecting := p.connected(e.node)

	if cn.DataAtom == atom.Script && connecting {
		if !p.csp.allowsInlineScript() {
			p.mu.Unlock()
			return fmt.Errorf("inline script: %w", ErrBlocked)
		}
		e.node.AppendChild(cn)
		if isClassicScript(cn) && attr(cn, "src") == "" {
			if err := p.run(p.vm, textContent(cn)); err != nil {
				p.logger.Debug("injected script failed", zap.Error(err))
			}
		}
		p.mu.Unlock()
		return nil
	}

	e.node.AppendChild(cn)
	var fire []func()
	if connecting {
		walkElements(cn, func(n *html.Node) {
			if n.DataAtom == atom.Iframe {
				fire = append(fire, p.frameFor(n).attach()...)
			}
		})
	}
	p.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
	return nil
}

func (e *element) RemoveChild(child Element) error {
	p := e.page
	p.mu.Lock()
	defer p.mu.Unlock()

	cn, err := p.nodeOf(child)
	if err != nil {
		return err
	}
	if cn.Parent != e.node {
		return fmt.Errorf("removeChild: %w", ErrDetached)
	}
	e.node.RemoveChild(cn)
	walkElements(cn, func(n *html.Node) {
		if f, ok := p.frames[n]; ok {
			f.detach()
		}
	})
	return nil
}

func (e *element) SetAttribute(name, value string) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	setAttr(e.node, strings.ToLower(name), value)
	return nil
}

func (e *element) SetText(text string) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return nil
}

func (e *element) Attached() bool {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.page.connected(e.node)
}

// frameElement is an <iframe> with its nested browsing context.
type frameElement struct {
	element
	loaded    bool
	detached  bool
	loadTimer *time.Timer
	loadFns   map[int]func()
	nextLoad  int
	content   *Page // lazily built child window
}

// attach starts loading the frame's document. It returns load listeners to
// run once the caller drops p.mu.
func (f *frameElement) attach() []func() {
	p := f.page
	f.detached = false
	f.loaded = false
	f.content = nil

	switch d := p.opts.FrameLoadDelay; {
	case d == 0:
		f.loaded = true
		return f.takeLoadFns()
	case d > 0:
		f.loadTimer = time.AfterFunc(d, f.finishLoad)
	}
	return nil
}

func (f *frameElement) finishLoad() {
	p := f.page
	p.mu.Lock()
	if f.detached || p.closed {
		p.mu.Unlock()
		return
	}
	f.loaded = true
	fns := f.takeLoadFns()
	p.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (f *frameElement) takeLoadFns() []func() {
	fns := make([]func(), 0, len(f.loadFns))
	for i := 0; i < f.nextLoad; i++ {
		if fn, ok := f.loadFns[i]; ok {
			fns = append(fns, fn)
		}
	}
	f.loadFns = make(map[int]func())
	return fns
}

func (f *frameElement) detach() {
	f.detached = true
	f.stopLoad()
	f.loadFns = make(map[int]func())
	f.content = nil
}

func (f *frameElement) stopLoad() {
	if f.loadTimer != nil {
		f.loadTimer.Stop()
		f.loadTimer = nil
	}
}

func (f *frameElement) Src() string {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	return f.src()
}

// src is the reflected src property: resolved against the page URL, empty
// when the attribute is absent.
func (f *frameElement) src() string {
	raw, ok := attrOK(f.node, "src")
	if !ok {
		return ""
	}
	u, err := utils.ResolveURL(f.page.opts.URL, raw)
	if err != nil {
		return raw
	}
	return u.String()
}

func (f *frameElement) ComputedStyle() (Style, error) {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	return computedStyle(f.node), nil
}

func (f *frameElement) BoundingRect() (Rect, error) {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	return boundingRect(f.node), nil
}

func (f *frameElement) ContentReadyState() (string, error) {
	p := f.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := f.accessible(); err != nil {
		return "", err
	}
	if f.loaded {
		return ReadyComplete, nil
	}
	return ReadyLoading, nil
}

// ContentNavigator reads navigator from the frame's own window, which is
// built from the profile and init scripts only. Page scripts that patched
// the parent do not reach it.
func (f *frameElement) ContentNavigator() (Navigator, error) {
	p := f.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := f.accessible(); err != nil {
		return Navigator{}, err
	}
	if f.content == nil {
		child := &Page{profile: p.profile, opts: p.opts, logger: p.logger.Named("frame"),
			session: p.session, local: p.local}
		vm, err := child.newRuntime()
		if err != nil {
			return Navigator{}, err
		}
		child.vm = vm
		f.content = child
	}
	var nav Navigator
	err := p.evalJSON(f.content.vm, navigatorScript, &nav)
	return nav, err
}

// accessible mirrors contentWindow access rules: detached frames have no
// window, cross-origin and opaque sandboxed ones throw.
func (f *frameElement) accessible() error {
	p := f.page
	if f.detached || !p.connected(f.node) {
		return ErrDetached
	}
	if sb, ok := attrOK(f.node, "sandbox"); ok && !strings.Contains(sb, "allow-same-origin") {
		return fmt.Errorf("sandboxed frame: %w", ErrSecurity)
	}
	src := f.src()
	if src == "" || strings.HasPrefix(src, "about:") {
		return nil
	}
	u, err := utils.ResolveURL("", src)
	if err != nil {
		return fmt.Errorf("frame src: %w", ErrSecurity)
	}
	pageURL, err := utils.ResolveURL("", p.opts.URL)
	if err != nil || utils.Origin(u) != utils.Origin(pageURL) {
		return fmt.Errorf("cross-origin frame: %w", ErrSecurity)
	}
	return nil
}

func (f *frameElement) OnLoad(fn func()) func() {
	p := f.page
	p.mu.Lock()
	defer p.mu.Unlock()
	id := f.nextLoad
	f.nextLoad++
	f.loadFns[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(f.loadFns, id)
	}
}

// Layout

type inlineStyle map[string]string

func parseInlineStyle(raw string) inlineStyle {
	st := inlineStyle{}
	for _, decl := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
		st[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(v)
	}
	return st
}

func px(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "0" {
		return 0, true
	}
	if !strings.HasSuffix(v, "px") {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	return f, err == nil
}

func displayNone(n *html.Node) bool {
	if _, hidden := attrOK(n, "hidden"); hidden {
		return true
	}
	return parseInlineStyle(attr(n, "style"))["display"] == "none"
}

func computedStyle(n *html.Node) Style {
	own := parseInlineStyle(attr(n, "style"))
	st := Style{Display: "inline", Visibility: "visible", Opacity: 1}

	if displayNone(n) {
		st.Display = "none"
	} else if d, ok := own["display"]; ok {
		st.Display = d
	}
	// visibility inherits
	for a := n; a != nil; a = a.Parent {
		if a.Type != html.ElementNode {
			continue
		}
		if v, ok := parseInlineStyle(attr(a, "style"))["visibility"]; ok {
			st.Visibility = v
			break
		}
	}
	if o, ok := own["opacity"]; ok {
		if f, err := strconv.ParseFloat(o, 64); err == nil {
			st.Opacity = f
		}
	}
	return st
}

// boundingRect lays out absolutely: left/top accumulate over ancestors, and
// any display:none up the chain collapses the box to zero.
func boundingRect(n *html.Node) Rect {
	var r Rect
	for a := n; a != nil; a = a.Parent {
		if a.Type != html.ElementNode {
			continue
		}
		if displayNone(a) {
			return Rect{}
		}
		st := parseInlineStyle(attr(a, "style"))
		if v, ok := px(st["left"]); ok {
			r.Left += v
		}
		if v, ok := px(st["top"]); ok {
			r.Top += v
		}
	}

	st := parseInlineStyle(attr(n, "style"))
	r.Width = dimension(st["width"], attr(n, "width"), defaultFrameWidth)
	r.Height = dimension(st["height"], attr(n, "height"), defaultFrameHeight)
	return r
}

func dimension(css, attribute string, fallback float64) float64 {
	if v, ok := px(css); ok {
		return v
	}
	if v, err := strconv.ParseFloat(strings.TrimSuffix(attribute, "px"), 64); err == nil {
		return v
	}
	return fallback
}

// Tree helpers

func walkElements(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		walkElements(c, fn)
		c = next
	}
}

func findElement(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walkElements(root, func(n *html.Node) {
		if found == nil && n.DataAtom == a {
			found = n
		}
	})
	return found
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		} else {
			b.WriteString(textContent(c))
		}
	}
	return b.String()
}
