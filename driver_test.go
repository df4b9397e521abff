package main

import (
	"fmt"
	"time"
)

// fakeDriver implements Driver for tests. Every method records what it
// was called with; behavior is overridable per test through the func
// fields, with benign defaults otherwise.
type fakeDriver struct {
	navigateFn      func(url string) error
	reloadFn        func() error
	currentURLFn    func() (string, error)
	waitClickableFn func(selector string, timeout time.Duration) (ElementRef, error)
	clickFn         func(ref ElementRef) error
	scriptClickFn   func(ref ElementRef) error
	hoverFn         func(ref ElementRef) error
	inputFn         func(selector, text string, timeout time.Duration) error
	cookiesFn       func() ([]Cookie, error)
	addCookieFn     func(c Cookie) error
	localStorageFn  func() (map[string]string, error)
	setItemFn       func(key, value string) error

	navigated     []string
	reloads       int
	waitCalls     map[string]int
	clicked       []string
	scriptClicked []string
	hovered       []string
	styled        map[string]map[string]string
	inputs        map[string]string
	addedCookies  []Cookie
	setItems      map[string]string
	quit          bool
	events        []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		waitCalls: map[string]int{},
		styled:    map[string]map[string]string{},
		inputs:    map[string]string{},
		setItems:  map[string]string{},
	}
}

func (d *fakeDriver) Navigate(url string) error {
	d.navigated = append(d.navigated, url)
	d.events = append(d.events, "navigate:"+url)
	if d.navigateFn != nil {
		return d.navigateFn(url)
	}
	return nil
}

func (d *fakeDriver) Reload() error {
	d.reloads++
	if d.reloadFn != nil {
		return d.reloadFn()
	}
	return nil
}

func (d *fakeDriver) CurrentURL() (string, error) {
	if d.currentURLFn != nil {
		return d.currentURLFn()
	}
	return "about:blank", nil
}

func (d *fakeDriver) WaitClickable(selector string, timeout time.Duration) (ElementRef, error) {
	d.waitCalls[selector]++
	if d.waitClickableFn != nil {
		return d.waitClickableFn(selector, timeout)
	}
	return ElementRef{Selector: selector}, nil
}

func (d *fakeDriver) Click(ref ElementRef) error {
	d.clicked = append(d.clicked, ref.Selector)
	if d.clickFn != nil {
		return d.clickFn(ref)
	}
	return nil
}

func (d *fakeDriver) ClickViaScript(ref ElementRef) error {
	d.scriptClicked = append(d.scriptClicked, ref.Selector)
	if d.scriptClickFn != nil {
		return d.scriptClickFn(ref)
	}
	return nil
}

func (d *fakeDriver) SetElementStyle(selector string, props map[string]string) error {
	d.styled[selector] = props
	return nil
}

func (d *fakeDriver) Hover(ref ElementRef) error {
	d.hovered = append(d.hovered, ref.Selector)
	if d.hoverFn != nil {
		return d.hoverFn(ref)
	}
	return nil
}

func (d *fakeDriver) Input(selector, text string, timeout time.Duration) error {
	d.inputs[selector] = text
	if d.inputFn != nil {
		return d.inputFn(selector, text, timeout)
	}
	return nil
}

func (d *fakeDriver) Cookies() ([]Cookie, error) {
	d.events = append(d.events, "cookies")
	if d.cookiesFn != nil {
		return d.cookiesFn()
	}
	return []Cookie{{Name: "session", Value: "abc123", Domain: ".popmart.com"}}, nil
}

func (d *fakeDriver) AddCookie(c Cookie) error {
	d.addedCookies = append(d.addedCookies, c)
	if d.addCookieFn != nil {
		return d.addCookieFn(c)
	}
	return nil
}

func (d *fakeDriver) LocalStorage() (map[string]string, error) {
	d.events = append(d.events, "local_storage")
	if d.localStorageFn != nil {
		return d.localStorageFn()
	}
	return map[string]string{"token": "xyz"}, nil
}

func (d *fakeDriver) SetLocalStorageItem(key, value string) error {
	d.setItems[key] = value
	if d.setItemFn != nil {
		return d.setItemFn(key, value)
	}
	return nil
}

func (d *fakeDriver) Quit() {
	d.quit = true
	d.events = append(d.events, "quit")
}

// notFound builds a missing-element response for waitClickableFn hooks.
func notFound(selector string) (ElementRef, error) {
	return ElementRef{}, fmt.Errorf("element %s not found", selector)
}
