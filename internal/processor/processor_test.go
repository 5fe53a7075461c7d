package processor

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory/internal/models"
)

func writePNG(t *testing.T, fs afero.Fs, name string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, afero.WriteFile(fs, name, buf.Bytes(), 0o644))
}

func decodeSize(t *testing.T, fs afero.Fs, name string) (int, int) {
	t.Helper()
	f, err := fs.Open(name)
	require.NoError(t, err)
	defer f.Close()
	img, err := imaging.Decode(f)
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestGenerateCapsLongestSide(t *testing.T) {
	fs := afero.NewMemMapFs()
	writePNG(t, fs, "tmp/large.png", 1600, 1000)

	p := New(fs, "thumbnails", zerolog.Nop())
	d, err := p.Generate("tmp/large.png")
	require.NoError(t, err)

	assert.Equal(t, "resized-large.jpg", d.ImagePath)
	assert.Equal(t, "thumbnails/thumb-large.jpg", d.ThumbnailPath)

	w, h := decodeSize(t, fs, d.ThumbnailPath)
	assert.Equal(t, 300, w)
	assert.InDelta(t, 188, h, 1)

	w, h = decodeSize(t, fs, d.ImagePath)
	assert.Equal(t, 800, w)
	assert.Equal(t, 500, h)

	exists, err := afero.Exists(fs, "tmp/large.png")
	require.NoError(t, err)
	assert.True(t, exists, "source is left for the caller")
}

func TestGenerateNeverUpscales(t *testing.T) {
	fs := afero.NewMemMapFs()
	writePNG(t, fs, "tmp/small.png", 120, 240)

	d, err := New(fs, "thumbnails", zerolog.Nop()).Generate("tmp/small.png")
	require.NoError(t, err)

	w, h := decodeSize(t, fs, d.ThumbnailPath)
	assert.Equal(t, []int{120, 240}, []int{w, h})
	w, h = decodeSize(t, fs, d.ImagePath)
	assert.Equal(t, []int{120, 240}, []int{w, h})
}

func TestGenerateTallImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	writePNG(t, fs, "tmp/tall.png", 500, 1000)

	d, err := New(fs, "thumbnails", zerolog.Nop()).Generate("tmp/tall.png")
	require.NoError(t, err)

	w, h := decodeSize(t, fs, d.ThumbnailPath)
	assert.Equal(t, []int{150, 300}, []int{w, h})
	w, h = decodeSize(t, fs, d.ImagePath)
	assert.Equal(t, []int{400, 800}, []int{w, h})
}

func TestGenerateUndecodableLeavesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "tmp/broken.jpg", []byte("not an image"), 0o644))

	_, err := New(fs, "thumbnails", zerolog.Nop()).Generate("tmp/broken.jpg")
	require.Error(t, err)
	assert.Equal(t, models.KindProcessing, models.KindOf(err))

	for _, name := range []string{"resized-broken.jpg", "thumbnails/thumb-broken.jpg"} {
		exists, err := afero.Exists(fs, name)
		require.NoError(t, err)
		assert.False(t, exists, name)
	}
}

func TestGenerateMissingSource(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), "thumbnails", zerolog.Nop()).Generate("tmp/gone.png")
	assert.Equal(t, models.KindProcessing, models.KindOf(err))
}

func TestGenerateWriteFailureRemovesOutputs(t *testing.T) {
	base := afero.NewMemMapFs()
	writePNG(t, base, "tmp/photo.png", 400, 400)
	ro := afero.NewReadOnlyFs(base)

	_, err := New(ro, "thumbnails", zerolog.Nop()).Generate("tmp/photo.png")
	assert.Equal(t, models.KindProcessing, models.KindOf(err))

	exists, err := afero.Exists(base, "resized-photo.jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFlattenDropsTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{A: 0})
	img.Set(1, 0, color.NRGBA{R: 255, A: 255})

	out := flatten(img)
	r, g, b, a := out.At(0, 0).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff, 0xffff}, []uint32{r, g, b, a})
	r, g, b, _ = out.At(1, 0).RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b})
}

// 1x1 lossless WebP.
const webpLossless = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func TestGenerateDecodesEveryAcceptedFormat(t *testing.T) {
	webp, err := base64.StdEncoding.DecodeString(webpLossless)
	require.NoError(t, err)

	var gif bytes.Buffer
	require.NoError(t, imaging.Encode(&gif, imaging.New(1000, 500, color.NRGBA{B: 200, A: 255}), imaging.GIF))

	var jpg bytes.Buffer
	require.NoError(t, imaging.Encode(&jpg, imaging.New(900, 900, color.NRGBA{R: 10, A: 255}), imaging.JPEG))

	cases := []struct {
		name        string
		data        []byte
		thumb, full [2]int
	}{
		{name: "pixel.webp", data: webp, thumb: [2]int{1, 1}, full: [2]int{1, 1}},
		{name: "banner.gif", data: gif.Bytes(), thumb: [2]int{300, 150}, full: [2]int{800, 400}},
		{name: "square.jpeg", data: jpg.Bytes(), thumb: [2]int{300, 300}, full: [2]int{800, 800}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "tmp/"+tc.name, tc.data, 0o644))

			d, err := New(fs, "thumbnails", zerolog.Nop()).Generate("tmp/" + tc.name)
			require.NoError(t, err)

			for _, out := range []struct {
				path string
				want [2]int
			}{{d.ThumbnailPath, tc.thumb}, {d.ImagePath, tc.full}} {
				raw, err := afero.ReadFile(fs, out.path)
				require.NoError(t, err)
				_, format, err := image.DecodeConfig(bytes.NewReader(raw))
				require.NoError(t, err)
				assert.Equal(t, "jpeg", format, out.path)

				w, h := decodeSize(t, fs, out.path)
				assert.Equal(t, out.want, [2]int{w, h}, out.path)
			}
		})
	}
}

func TestGenerateFlattensTransparentSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 1200, 600))))
	require.NoError(t, afero.WriteFile(fs, "tmp/clear.png", buf.Bytes(), 0o644))

	d, err := New(fs, "thumbnails", zerolog.Nop()).Generate("tmp/clear.png")
	require.NoError(t, err)

	f, err := fs.Open(d.ImagePath)
	require.NoError(t, err)
	defer f.Close()
	img, err := imaging.Decode(f)
	require.NoError(t, err)

	assert.Equal(t, 800, img.Bounds().Dx())
	r, g, b, _ := img.At(400, 200).RGBA()
	for _, c := range []uint32{r, g, b} {
		assert.Greater(t, c, uint32(0xf000), "transparent pixels become white")
	}
}
