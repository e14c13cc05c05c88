// Package image prepares images for multimodal messages: it decodes, shrinks
// and re-encodes them as base64 PNG.
package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-go-golems/parley/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const DefaultMaxSize = 1000

// Resize scales img so that its longer side is at most maxSize, keeping the
// aspect ratio. Smaller images are returned unchanged.
func Resize(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return img
	}

	nw, nh := maxSize, maxSize
	if w > h {
		nh = h * maxSize / w
	} else {
		nw = w * maxSize / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func ToPNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "could not encode png")
	}
	return buf.Bytes(), nil
}

func EncodePNG(img image.Image) (string, error) {
	b, err := ToPNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

type Encoder struct {
	MaxSize    int
	HTTPClient *http.Client
	// Policy validates remote image URLs, defaults to security.HostedPolicy.
	Policy security.URLPolicy
	// TempDir is where downloads are staged, os.TempDir() when empty.
	TempDir string
}

func NewEncoder() *Encoder {
	return &Encoder{
		MaxSize:    DefaultMaxSize,
		HTTPClient: http.DefaultClient,
		Policy:     security.HostedPolicy,
	}
}

// Encode accepts a local path or an http(s) URL.
func (e *Encoder) Encode(ctx context.Context, pathOrURL string) (string, error) {
	if IsRemote(pathOrURL) {
		return e.EncodeURL(ctx, pathOrURL)
	}
	return e.EncodeFile(pathOrURL)
}

func IsRemote(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (e *Encoder) EncodeFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	return e.EncodeReader(f)
}

func (e *Encoder) EncodeReader(r io.Reader) (string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return "", errors.Wrap(err, "could not decode image")
	}
	log.Trace().Str("format", format).Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).Msg("decoded image")

	return EncodePNG(Resize(img, e.MaxSize))
}

// EncodeURL downloads the image into a temporary file, which is removed on
// every return path, and encodes it.
func (e *Encoder) EncodeURL(ctx context.Context, rawURL string) (string, error) {
	if err := e.Policy.Validate(rawURL); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(e.TempDir, "parley-image-*")
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", tmp.Name()).Msg("could not remove temporary image")
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	// #nosec G704 -- URL is validated above.
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "could not download %s", rawURL)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("could not download %s: status %d", rawURL, resp.StatusCode)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		return "", errors.Wrapf(err, "could not download %s", rawURL)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return e.EncodeReader(tmp)
}
