// Package headless implements page.Handle with a single headless Chrome tab driven by chromedp.
package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/step-archiver/internal/page"
)

const defaultNavTimeout = 5 * time.Second

// Config controls the browser bootstrap.
type Config struct {
	ExecPath     string
	UserAgent    string
	NavTimeout   time.Duration
	WindowWidth  int
	WindowHeight int
	// BlockResourceTypes lists CDP resource types (Stylesheet, Font, Image, ...) that are
	// failed before they are fetched.
	BlockResourceTypes []string
}

// Handle owns one browser tab for the lifetime of a run.
type Handle struct {
	allocatorCancel context.CancelFunc
	tabCtx          context.Context
	tabCancel       context.CancelFunc
	timeout         time.Duration
	blocked         map[string]struct{}
	logger          *zap.Logger
}

// New launches Chrome, opens a tab, and installs request interception when resource
// blocking is configured.
func New(cfg Config, logger *zap.Logger) (*Handle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocatorCtx)

	h := &Handle{
		allocatorCancel: allocatorCancel,
		tabCtx:          tabCtx,
		tabCancel:       tabCancel,
		timeout:         cfg.NavTimeout,
		blocked:         blockSet(cfg.BlockResourceTypes),
		logger:          logger,
	}
	if h.timeout <= 0 {
		h.timeout = defaultNavTimeout
	}

	var warmup []chromedp.Action
	if len(h.blocked) > 0 {
		chromedp.ListenTarget(tabCtx, h.onEvent)
		warmup = append(warmup, fetch.Enable())
	}
	if err := chromedp.Run(tabCtx, warmup...); err != nil {
		tabCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	logger.Info("headless browser ready",
		zap.Int("blocked_resource_types", len(h.blocked)),
		zap.Duration("nav_timeout", h.timeout),
	)
	return h, nil
}

// Close tears down the tab and the browser process.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.tabCancel()
	h.allocatorCancel()
}

// Navigate loads url and waits until the body is ready.
func (h *Handle) Navigate(ctx context.Context, url string) error {
	runCtx, done := h.opContext(ctx)
	defer done()
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return &page.NavigationError{URL: url, Err: err}
	}
	return nil
}

// Texts evaluates textContent for every element matching selector.
func (h *Handle) Texts(ctx context.Context, selector string) ([]string, error) {
	return h.evaluateStrings(ctx, textsScript(selector))
}

// Attrs evaluates getAttribute(attr) for every element matching selector.
func (h *Handle) Attrs(ctx context.Context, selector, attr string) ([]string, error) {
	return h.evaluateStrings(ctx, attrsScript(selector, attr))
}

func (h *Handle) evaluateStrings(ctx context.Context, script string) ([]string, error) {
	runCtx, done := h.opContext(ctx)
	defer done()
	var out []string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &out)); err != nil {
		return nil, fmt.Errorf("evaluate in page: %w", err)
	}
	return out, nil
}

// opContext bounds one browser operation by the handle timeout and the caller's context.
func (h *Handle) opContext(parent context.Context) (context.Context, func()) {
	runCtx, cancel := context.WithTimeout(h.tabCtx, h.timeout)
	stop := forwardCancel(parent, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (h *Handle) onEvent(ev any) {
	paused, ok := ev.(*fetch.EventRequestPaused)
	if !ok {
		return
	}
	// Commands cannot be issued from the listener goroutine without deadlocking.
	go h.resolve(paused)
}

func (h *Handle) resolve(ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(h.tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(h.tabCtx, c.Target)
	var err error
	if h.isBlocked(ev.ResourceType) {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
	}
	if err != nil && h.tabCtx.Err() == nil {
		h.logger.Debug("request interception failed",
			zap.String("request_url", requestURL(ev)),
			zap.Error(err),
		)
	}
}

func (h *Handle) isBlocked(rt network.ResourceType) bool {
	_, ok := h.blocked[strings.ToLower(string(rt))]
	return ok
}

func requestURL(ev *fetch.EventRequestPaused) string {
	if ev.Request == nil {
		return ""
	}
	return ev.Request.URL
}

func blockSet(types []string) map[string]struct{} {
	out := make(map[string]struct{}, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}

func textsScript(selector string) string {
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(e => e.textContent || "")`,
		jsString(selector),
	)
}

func attrsScript(selector, attr string) string {
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(e => e.getAttribute(%s) || "")`,
		jsString(selector),
		jsString(attr),
	)
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

var _ page.Handle = (*Handle)(nil)
