package headless

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/step-archiver/internal/page"
)

func TestHandleRendersAndQueries(t *testing.T) {
	var cssRequested bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/style.css" {
			cssRequested = true
			w.Header().Set("Content-Type", "text/css")
			fmt.Fprint(w, "body{}")
			return
		}
		fmt.Fprint(w, `<!doctype html><html><head><link rel="stylesheet" href="/style.css"></head><body>
<div class="breadcrumbs"><a href="/">Home</a></div>
<script>document.body.insertAdjacentHTML('beforeend', '<h1 class="productView-title">Late Title</h1>');</script>
</body></html>`)
	}))
	defer srv.Close()

	h, err := New(Config{
		NavTimeout:         5 * time.Second,
		BlockResourceTypes: []string{"Stylesheet", "Font", "Image"},
	}, zap.NewNop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer h.Close()

	ctx := context.Background()
	if err := h.Navigate(ctx, srv.URL); err != nil {
		t.Skipf("navigate failed: %v", err)
	}

	title, err := page.ReadText(ctx, h, ".productView-title")
	require.NoError(t, err)
	assert.Equal(t, "Late Title", title)

	hrefs, err := page.ReadHrefs(ctx, h, ".breadcrumbs a")
	require.NoError(t, err)
	assert.Equal(t, []string{"/"}, hrefs)
	assert.False(t, cssRequested, "stylesheet should be blocked")
}

func TestBlockSetIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	h := &Handle{blocked: blockSet([]string{" Stylesheet", "IMAGE", ""})}
	assert.Len(t, h.blocked, 2)
	assert.True(t, h.isBlocked(network.ResourceTypeStylesheet))
	assert.True(t, h.isBlocked(network.ResourceTypeImage))
	assert.False(t, h.isBlocked(network.ResourceTypeDocument))
	assert.False(t, h.isBlocked(network.ResourceTypeScript))
}

func TestScriptsQuoteSelectors(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		`Array.from(document.querySelectorAll("li.product a")).map(e => e.textContent || "")`,
		textsScript("li.product a"),
	)
	assert.Equal(t,
		`Array.from(document.querySelectorAll("a[title=\"x\"]")).map(e => e.getAttribute("href") || "")`,
		attrsScript(`a[title="x"]`, "href"),
	)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected parent cancellation to propagate")
	}
}

func TestCloseNilHandle(t *testing.T) {
	t.Parallel()

	var h *Handle
	assert.NotPanics(t, h.Close)
}
