// Package scan is the host side of extraction: it decodes scanner output
// into request buffers and writes the extracted crops back to disk.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/pipeline"
)

// Image is a decoded scan as non-premultiplied RGBA bytes.
type Image struct {
	Path   string
	Format string
	Width  int
	Height int
	Pixels []byte
}

// Request wraps the scan for one extraction run.
func (img *Image) Request(params models.ExtractionParams) pipeline.Request {
	return pipeline.Request{
		Pixels: img.Pixels,
		Width:  img.Width,
		Height: img.Height,
		Params: params,
	}
}

type Loader struct {
	logger logger.Logger
}

func NewLoader(log logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{logger: log}
}

// Load decodes path and applies its EXIF orientation.
func (l *Loader) Load(path string) (*Image, error) {
	startTime := time.Now()

	format := DetermineFormat(path)
	if format == "unknown" {
		return nil, fmt.Errorf("%w: unsupported file type %s", models.ErrInvalidImage, filepath.Ext(path))
	}

	decoded, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", models.ErrInvalidImage, path, err)
	}

	nrgba := imaging.Clone(decoded)
	bounds := nrgba.Bounds()
	img := &Image{
		Path:   path,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pixels: nrgba.Pix,
	}

	l.logger.Debug("ScanLoader", "scan decoded", map[string]interface{}{
		"path":    path,
		"format":  format,
		"size":    fmt.Sprintf("%dx%d", img.Width, img.Height),
		"elapsed": time.Since(startTime).String(),
	})
	return img, nil
}

// DetermineFormat names the image format implied by the file extension.
func DetermineFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tiff", ".tif":
		return "tiff"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	case ".bmp":
		return "bmp"
	case ".gif":
		return "gif"
	default:
		return "unknown"
	}
}

// Discover expands args into a sorted list of supported image files.
// Directories are walked recursively; files are taken as given.
func Discover(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && DetermineFormat(path) != "unknown" {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", arg, err)
		}
	}

	sort.Strings(files)
	return files, nil
}
