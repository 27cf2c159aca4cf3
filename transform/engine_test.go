package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/imagewarm/optimizer"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testEngine(t *testing.T) *Engine {
	return NewFS(fstest.MapFS{
		"img/hero.png": {Data: testPNG(t, 200, 100)},
		"broken.png":   {Data: []byte("not an image")},
	})
}

func TestTransformResize(t *testing.T) {
	e := testEngine(t)
	img := optimizer.CachedImage{Src: "/img/hero.png", Variant: optimizer.Resize{Width: 50, Height: 50, Quality: 80}}

	out, err := e.Transform(context.Background(), img)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 50, decoded.Bounds().Dx())
	assert.Equal(t, 25, decoded.Bounds().Dy(), "aspect ratio is kept")
	assert.Equal(t, "image/jpeg", ContentType(img))
}

func TestTransformBlur(t *testing.T) {
	e := testEngine(t)
	img := optimizer.CachedImage{Src: "img/hero.png", Variant: optimizer.DefaultBlur}

	out, err := e.Transform(context.Background(), img)
	require.NoError(t, err)

	svg := string(out)
	assert.Contains(t, svg, `viewBox="0 0 100 100"`)
	assert.Contains(t, svg, `stdDeviation="15"`)
	assert.Equal(t, "image/svg+xml", ContentType(img))

	m := regexp.MustCompile(`base64,([A-Za-z0-9+/=]+)"`).FindStringSubmatch(svg)
	require.Len(t, m, 2)
	raw, err := base64.StdEncoding.DecodeString(m[1])
	require.NoError(t, err)
	tiny, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 25, 25), tiny.Bounds())
}

func TestTransformIsDeterministic(t *testing.T) {
	e := testEngine(t)
	img := optimizer.CachedImage{Src: "img/hero.png", Variant: optimizer.DefaultBlur}

	a, err := e.Transform(context.Background(), img)
	require.NoError(t, err)
	b, err := e.Transform(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTransformErrors(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.Transform(ctx, optimizer.CachedImage{Src: "missing.png", Variant: optimizer.DefaultBlur})
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = e.Transform(ctx, optimizer.CachedImage{Src: "https://example.com/a.png", Variant: optimizer.DefaultBlur})
	assert.ErrorIs(t, err, optimizer.ErrExternalSource)

	_, err = e.Transform(ctx, optimizer.CachedImage{Src: "img/hero.png", Variant: optimizer.Resize{Width: 0, Height: 10}})
	assert.ErrorIs(t, err, optimizer.ErrInvalidVariant)

	_, err = e.Transform(ctx, optimizer.CachedImage{Src: "/", Variant: optimizer.DefaultBlur})
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = e.Transform(ctx, optimizer.CachedImage{Src: "broken.png", Variant: optimizer.DefaultBlur})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Transform(cancelled, optimizer.CachedImage{Src: "img/hero.png", Variant: optimizer.DefaultBlur})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransformCannotEscapeRoot(t *testing.T) {
	e := NewFS(fstest.MapFS{"hero.png": {Data: testPNG(t, 10, 10)}})
	_, err := e.Transform(context.Background(), optimizer.CachedImage{Src: "../../hero.png", Variant: optimizer.DefaultBlur})
	assert.NoError(t, err, "dot segments resolve inside the root")
}
