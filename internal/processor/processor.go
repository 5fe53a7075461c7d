package processor

import (
	"fmt"
	"image"
	"image/color"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	_ "golang.org/x/image/webp"

	"inventory/internal/models"
)

const (
	ResizedPrefix   = "resized-"
	ThumbnailPrefix = "thumb-"
)

// Variant is one derivative: the image is fit inside MaxSide x MaxSide and
// re-encoded as JPEG. Images already inside the box are not enlarged.
type Variant struct {
	MaxSide int
	Quality int
}

var (
	Thumbnail = Variant{MaxSide: 300, Quality: 85}
	Display   = Variant{MaxSide: 800, Quality: 90}
)

// Derivatives holds storage-relative paths of the generated files.
type Derivatives struct {
	ImagePath     string
	ThumbnailPath string
}

type Processor struct {
	fs           afero.Fs
	thumbnailDir string
	log          zerolog.Logger
}

// New returns a Processor writing into fs, which is rooted at the storage
// root. Display derivatives go to the root, thumbnails to thumbnailDir.
func New(fs afero.Fs, thumbnailDir string, log zerolog.Logger) *Processor {
	return &Processor{fs: fs, thumbnailDir: thumbnailDir, log: log}
}

// Generate decodes src and writes the thumbnail and display derivative.
// On failure no output is left behind. src itself is never removed.
func (p *Processor) Generate(src string) (Derivatives, error) {
	const op = "processor.Generate"

	img, err := p.open(src)
	if err != nil {
		return Derivatives{}, models.Processing(op, err)
	}

	stem := strings.TrimSuffix(path.Base(src), path.Ext(src))
	d := Derivatives{
		ImagePath:     ResizedPrefix + stem + ".jpg",
		ThumbnailPath: path.Join(p.thumbnailDir, ThumbnailPrefix+stem+".jpg"),
	}

	if err := p.fs.MkdirAll(p.thumbnailDir, 0o755); err != nil {
		return Derivatives{}, models.Processing(op, err)
	}
	if err := p.write(d.ThumbnailPath, img, Thumbnail); err != nil {
		p.discard(d.ThumbnailPath)
		return Derivatives{}, models.Processing(op, err)
	}
	if err := p.write(d.ImagePath, img, Display); err != nil {
		p.discard(d.ThumbnailPath, d.ImagePath)
		return Derivatives{}, models.Processing(op, err)
	}

	p.log.Debug().
		Str("source", src).
		Str("image", d.ImagePath).
		Str("thumbnail", d.ThumbnailPath).
		Msg("derivatives generated")
	return d, nil
}

func (p *Processor) open(src string) (image.Image, error) {
	f, err := p.fs.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", src, err)
	}
	return img, nil
}

func (p *Processor) write(dst string, img image.Image, v Variant) error {
	out, err := p.fs.Create(dst)
	if err != nil {
		return err
	}

	resized := flatten(imaging.Fit(img, v.MaxSide, v.MaxSide, imaging.Lanczos))
	if err := imaging.Encode(out, resized, imaging.JPEG, imaging.JPEGQuality(v.Quality)); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", dst, err)
	}
	return out.Close()
}

func (p *Processor) discard(paths ...string) {
	for _, name := range paths {
		if err := p.fs.Remove(name); err != nil {
			p.log.Debug().Err(err).Str("path", name).Msg("discard partial derivative")
		}
	}
}

// flatten composites transparent images onto white, since JPEG has no alpha.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
