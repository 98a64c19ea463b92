package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"polaroid-extractor/internal/config"
	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/pipeline"
)

// Saver writes crops as <stem>_polaroid_<n>.png. Without Overwrite an
// existing file is kept and the new one gets a short unique suffix.
type Saver struct {
	output config.OutputConfig
	logger logger.Logger
}

func NewSaver(output config.OutputConfig, log logger.Logger) *Saver {
	if log == nil {
		log = logger.Nop()
	}
	return &Saver{output: output, logger: log}
}

func (s *Saver) SavePolaroids(scanPath string, polaroids []models.ExtractedPolaroid) ([]string, error) {
	if len(polaroids) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(s.output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	stem := Stem(scanPath)
	paths := make([]string, 0, len(polaroids))
	for _, p := range polaroids {
		name := fmt.Sprintf("%s_polaroid_%d", stem, p.Index+1)
		path, err := s.write(s.output.Dir, name, p.PNG)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	s.logger.Info("ScanSaver", "polaroids written", map[string]interface{}{
		"scan":  scanPath,
		"count": len(paths),
		"dir":   s.output.Dir,
	})
	return paths, nil
}

// SavePreview writes a preview frame when a preview dir is configured.
// It returns an empty path when previews are disabled.
func (s *Saver) SavePreview(scanPath string, preview pipeline.Preview) (string, error) {
	if s.output.PreviewDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.output.PreviewDir, 0o755); err != nil {
		return "", fmt.Errorf("creating preview dir: %w", err)
	}
	return s.write(s.output.PreviewDir, Stem(scanPath)+"_"+preview.Stage, preview.PNG)
}

func (s *Saver) write(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name+".png")

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !s.output.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		path = filepath.Join(dir, name+"_"+uuid.NewString()[:8]+".png")
		s.logger.Warning("ScanSaver", "output exists, writing alongside", map[string]interface{}{
			"path": path,
		})
		f, err = os.OpenFile(path, flags, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}

// Stem is the file name without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
