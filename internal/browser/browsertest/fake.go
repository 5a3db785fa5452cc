// Package browsertest provides in-memory fakes of the browser interfaces.
package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/user/deskhand/internal/browser"
)

// Element is a fake DOM node. Children are keyed by selector.
type Element struct {
	mu       sync.Mutex
	text     string
	attrs    map[string]string
	hidden   bool
	children map[string][]*Element
	inputs   []string
	clicks   int
	onClick  func()
}

// NewElement returns a visible element with the given text.
func NewElement(text string) *Element {
	return &Element{
		text:     text,
		attrs:    make(map[string]string),
		children: make(map[string][]*Element),
	}
}

// WithAttr sets an attribute and returns e.
func (e *Element) WithAttr(name, value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
	return e
}

// WithChild registers child under selector and returns e.
func (e *Element) WithChild(selector string, child ...*Element) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.children[selector] = append(e.children[selector], child...)
	return e
}

// Hidden marks e as not visible and returns e.
func (e *Element) Hidden() *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = true
	return e
}

// OnClick registers a callback fired on every click.
func (e *Element) OnClick(fn func()) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClick = fn
	return e
}

func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

func (e *Element) Inputs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.inputs...)
}

func (e *Element) Elements(_ context.Context, selector string) ([]browser.Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return toBrowser(e.children[selector]), nil
}

func (e *Element) Text(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

func (e *Element) Attribute(_ context.Context, name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *Element) Visible(context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.hidden, nil
}

func (e *Element) Click(context.Context) error {
	e.mu.Lock()
	e.clicks++
	fn := e.onClick
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (e *Element) Input(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, text)
	return nil
}

func toBrowser(els []*Element) []browser.Element {
	out := make([]browser.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out
}

// Page is a fake browser tab whose DOM is a selector → elements table.
type Page struct {
	mu          sync.Mutex
	dom         map[string][]*Element
	navigations []string
	enters      int
	closed      bool
	onNavigate  func(url string)
	navErr      error
	queries     int
	onQuery     func(n int)
}

func NewPage() *Page {
	return &Page{dom: make(map[string][]*Element)}
}

// Set replaces the elements matched by selector.
func (p *Page) Set(selector string, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dom[selector] = els
	return p
}

// Remove drops selector from the DOM.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.dom, selector)
}

// OnNavigate registers a callback fired after every navigation.
func (p *Page) OnNavigate(fn func(url string)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = fn
	return p
}

// OnQuery registers a callback fired before every page-level query with the
// running query count, letting tests change the DOM over time.
func (p *Page) OnQuery(fn func(n int)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onQuery = fn
	return p
}

// FailNavigation makes every Navigate return err.
func (p *Page) FailNavigation(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navErr = err
}

func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *Page) Enters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enters
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	err := p.navErr
	fn := p.onNavigate
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if fn != nil {
		fn(url)
	}
	return nil
}

func (p *Page) Elements(_ context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	p.queries++
	n, fn := p.queries, p.onQuery
	p.mu.Unlock()
	if fn != nil {
		fn(n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return toBrowser(p.dom[selector]), nil
}

func (p *Page) PressEnter(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enters++
	return nil
}

func (p *Page) Screenshot(context.Context) ([]byte, error) {
	return nil, errors.New("screenshots not supported by fake page")
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Launcher hands out Page and counts launches.
type Launcher struct {
	mu       sync.Mutex
	Page     *Page
	Err      error
	launches int
	opts     []browser.LaunchOptions
}

var _ browser.Launcher = (*Launcher)(nil)

func (l *Launcher) Launch(_ context.Context, opts browser.LaunchOptions) (browser.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	l.opts = append(l.opts, opts)
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Page, nil
}

// Launches returns how many times Launch was called.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// LastOptions returns the options of the most recent launch.
func (l *Launcher) LastOptions() browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.opts) == 0 {
		return browser.LaunchOptions{}
	}
	return l.opts[len(l.opts)-1]
}
