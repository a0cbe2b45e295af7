package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bromato/bromato/storage"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage 只实现会话用到的页面方法，其余方法调用会 panic
type fakePage struct {
	playwright.Page

	mu        sync.Mutex
	handlers  []func(playwright.Response)
	closed    bool
	gotoResp  playwright.Response
	gotoURL   string
	content   string
	evaluated string
	fronted   bool
	keyboard  fakeKeyboard
}

type fakeKeyboard struct {
	playwright.Keyboard
	pressed []string
}

func (k *fakeKeyboard) Press(key string, _ ...playwright.KeyboardPressOptions) error {
	k.pressed = append(k.pressed, key)
	return nil
}

func (p *fakePage) BringToFront() error {
	p.fronted = true
	return nil
}

func (p *fakePage) Keyboard() playwright.Keyboard {
	return &p.keyboard
}

type fakeClipboard struct {
	text  []string
	image [][]byte
}

func (c *fakeClipboard) WriteText(text string) error {
	c.text = append(c.text, text)
	return nil
}

func (c *fakeClipboard) WriteImage(data []byte) error {
	c.image = append(c.image, data)
	return nil
}

func (p *fakePage) OnResponse(fn func(playwright.Response)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, fn)
}

func (p *fakePage) emit(resp playwright.Response) {
	p.mu.Lock()
	handlers := append([]func(playwright.Response){}, p.handlers...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(resp)
	}
}

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.gotoURL = url
	return p.gotoResp, nil
}

func (p *fakePage) Reload(_ ...playwright.PageReloadOptions) (playwright.Response, error) {
	return nil, nil
}

func (p *fakePage) Close(_ ...playwright.PageCloseOptions) error {
	p.closed = true
	return nil
}

func (p *fakePage) Content() (string, error) { return p.content, nil }

func (p *fakePage) Evaluate(expression string, _ ...interface{}) (interface{}, error) {
	p.evaluated = expression
	return float64(2), nil
}

type fakeResponse struct {
	playwright.Response
	url    string
	status int
	body   string
}

func (r *fakeResponse) Finished() error       { return nil }
func (r *fakeResponse) URL() string           { return r.url }
func (r *fakeResponse) Status() int           { return r.status }
func (r *fakeResponse) Body() ([]byte, error) { return []byte(r.body), nil }

type fakeOpener struct {
	pages []*fakePage
	err   error
}

func (o *fakeOpener) NewPage() (playwright.Page, error) {
	if o.err != nil {
		return nil, o.err
	}
	p := &fakePage{}
	o.pages = append(o.pages, p)
	return p, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeOpener, *storage.BoltDB) {
	t.Helper()
	db, err := storage.NewBoltDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opener := &fakeOpener{}
	return NewManager(opener, db, t.TempDir()).WithClipboard(&fakeClipboard{}), opener, db
}

func TestMatches(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		status  int
		want    bool
	}{
		{"/api/", "https://x.test/api/items", 200, true},
		{"/api/", "https://x.test/api/items", 204, true},
		{"/api/", "https://x.test/api/items", 304, false},
		{"/api/", "https://x.test/api/items", 500, false},
		{"/api/", "https://x.test/static/app.js", 200, false},
		{"", "https://x.test/anything", 200, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matches(tt.pattern, tt.url, tt.status), "%s %s %d", tt.pattern, tt.url, tt.status)
	}
}

func TestDecodeBody(t *testing.T) {
	assert.Equal(t, map[string]any{"ok": true}, decodeBody([]byte(`{"ok": true}`)))
	assert.Equal(t, []any{float64(1), float64(2)}, decodeBody([]byte(`[1, 2]`)))
	assert.Equal(t, "<html></html>", decodeBody([]byte(`<html></html>`)))
}

func TestManager_Lifecycle(t *testing.T) {
	m, opener, db := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Len(t, m.List(), 1)

	_, err = db.GetSession(s.ID)
	require.NoError(t, err)

	require.NoError(t, m.Destroy(ctx, s.ID))
	assert.True(t, opener.pages[0].closed)

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Destroy(ctx, s.ID), ErrSessionNotFound)
	_, err = db.GetSession(s.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManager_CreateFails(t *testing.T) {
	m, opener, _ := newTestManager(t)
	opener.err = errors.New("browser gone")

	_, err := m.Create(context.Background())
	assert.ErrorContains(t, err, "browser gone")
}

func TestManager_DestroyAll(t *testing.T) {
	m, opener, _ := newTestManager(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx)
		require.NoError(t, err)
	}

	m.DestroyAll(ctx)
	assert.Empty(t, m.List())
	for _, p := range opener.pages {
		assert.True(t, p.closed)
	}
}

func TestSession_NavigateWithoutResponse(t *testing.T) {
	m, opener, db := newTestManager(t)
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)

	status, err := s.Navigate(ctx, "https://example.com", NavigateOptions{WaitUntil: "load"})
	require.NoError(t, err)
	assert.Equal(t, 418, status)
	assert.Equal(t, "https://example.com", opener.pages[0].gotoURL)

	record, err := db.GetSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", record.URL)

	status, err = s.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 408, status)
}

func TestSession_EvaluateAndContent(t *testing.T) {
	m, opener, _ := newTestManager(t)
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)
	opener.pages[0].content = "<p>hi</p>"

	v, err := s.Evaluate(ctx, "1 + 1")
	require.NoError(t, err)
	assert.Equal(t, float64(2), v)
	assert.Equal(t, "1 + 1", opener.pages[0].evaluated)

	html, err := s.Content(ctx)
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", html)
}

func TestSession_NativePasteRejectsHTML(t *testing.T) {
	m, opener, _ := newTestManager(t)
	s, err := m.Create(context.Background())
	require.NoError(t, err)

	err = s.NativePaste(context.Background(), "<b>x</b>", PasteHTML)
	assert.ErrorIs(t, err, ErrUnsupportedPaste)
	assert.Empty(t, opener.pages[0].keyboard.pressed)
}

func TestSession_NativePasteText(t *testing.T) {
	m, opener, _ := newTestManager(t)
	clip := &fakeClipboard{}
	m.WithClipboard(clip)
	s, err := m.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.NativePaste(context.Background(), "hello", PasteText))
	assert.Equal(t, []string{"hello"}, clip.text)
	assert.True(t, opener.pages[0].fronted)
	assert.Equal(t, []string{"Meta+v"}, opener.pages[0].keyboard.pressed)
}

func encodeImage(t *testing.T, enc func(io.Writer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, enc(&buf, img))
	return buf.Bytes()
}

func TestSession_NativePasteImage(t *testing.T) {
	pngData := encodeImage(t, png.Encode)
	jpegData := encodeImage(t, func(w io.Writer, img image.Image) error { return jpeg.Encode(w, img, nil) })

	tests := []struct {
		name    string
		content string
	}{
		{"png", base64.StdEncoding.EncodeToString(pngData)},
		{"png data uri", "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)},
		{"jpeg is converted", base64.StdEncoding.EncodeToString(jpegData)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, opener, _ := newTestManager(t)
			clip := &fakeClipboard{}
			m.WithClipboard(clip)
			s, err := m.Create(context.Background())
			require.NoError(t, err)

			require.NoError(t, s.NativePaste(context.Background(), tt.content, PasteBase64Image))
			require.Len(t, clip.image, 1)
			assert.Empty(t, clip.text)

			cfg, format, err := image.DecodeConfig(bytes.NewReader(clip.image[0]))
			require.NoError(t, err)
			assert.Equal(t, "png", format)
			assert.Equal(t, 2, cfg.Width)
			assert.Equal(t, []string{"Meta+v"}, opener.pages[0].keyboard.pressed)
		})
	}
}

func TestSession_NativePasteInvalidImage(t *testing.T) {
	m, opener, _ := newTestManager(t)
	clip := &fakeClipboard{}
	m.WithClipboard(clip)
	s, err := m.Create(context.Background())
	require.NoError(t, err)

	for _, content := range []string{"%%%", base64.StdEncoding.EncodeToString([]byte("just text"))} {
		err := s.NativePaste(context.Background(), content, PasteBase64Image)
		assert.ErrorIs(t, err, ErrInvalidPaste, content)
	}
	assert.Empty(t, clip.image)
	assert.Empty(t, opener.pages[0].keyboard.pressed)
}

func TestSession_Interceptors(t *testing.T) {
	m, opener, _ := newTestManager(t)
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)
	page := opener.pages[0]

	id, err := s.AddInterceptor(ctx, "/api/")
	require.NoError(t, err)

	_, err = s.AddInterceptor(ctx, "/api/")
	assert.ErrorIs(t, err, ErrInterceptorExists)

	page.emit(&fakeResponse{url: "https://x.test/api/items", status: 200, body: `{"items": [1]}`})
	page.emit(&fakeResponse{url: "https://x.test/api/text", status: 201, body: `plain`})
	page.emit(&fakeResponse{url: "https://x.test/api/fail", status: 500, body: `{}`})
	page.emit(&fakeResponse{url: "https://x.test/other", status: 200, body: `{}`})

	assert.Eventually(t, func() bool {
		res, err := s.InterceptorResponses(ctx, id)
		return err == nil && len(res.Responses) == 2
	}, 2*time.Second, 10*time.Millisecond)

	res, err := s.InterceptorResponses(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "/api/", res.URL)
	byURL := map[string]any{}
	for _, e := range res.Responses {
		byURL[e.URL] = e.Data
		assert.NotEmpty(t, e.Timestamp)
	}
	assert.Equal(t, map[string]any{"items": []any{float64(1)}}, byURL["https://x.test/api/items"])
	assert.Equal(t, "plain", byURL["https://x.test/api/text"])

	require.NoError(t, s.RemoveInterceptor(ctx, id))
	_, err = s.InterceptorResponses(ctx, id)
	assert.ErrorIs(t, err, ErrInterceptorNotFound)
	assert.ErrorIs(t, s.RemoveInterceptor(ctx, id), ErrInterceptorNotFound)

	// 移除后可以重新注册同一个 pattern
	_, err = s.AddInterceptor(ctx, "/api/")
	require.NoError(t, err)
	_, err = s.AddInterceptor(ctx, "/graphql")
	require.NoError(t, err)
	require.NoError(t, s.RemoveAllInterceptors(ctx))
	_, err = s.AddInterceptor(ctx, "/graphql")
	assert.NoError(t, err)
}
