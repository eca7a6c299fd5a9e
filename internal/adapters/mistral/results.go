package mistral

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

// OCRResponse is the subset of the /v1/ocr response we consume.
type OCRResponse struct {
	Pages []OCRPage `json:"pages"`
	Model string    `json:"model"`
}

type OCRPage struct {
	Index    int        `json:"index"`
	Markdown string     `json:"markdown"`
	Images   []OCRImage `json:"images"`
}

type OCRImage struct {
	ID          string `json:"id"`
	ImageBase64 string `json:"image_base64"`
}

// SaveResults writes the extracted images and the combined Markdown of resp
// into outputDir:
//
//	outputDir/complete.md
//	outputDir/images/<image id>
func SaveResults(resp *OCRResponse, outputDir string) (domain.ConversionResult, error) {
	imagesDir := filepath.Join(outputDir, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return domain.ConversionResult{}, fmt.Errorf("create output dir: %w", err)
	}

	var (
		pages  = make([]string, 0, len(resp.Pages))
		images int
		names  = newImageNamer()
	)
	for _, page := range resp.Pages {
		md := page.Markdown
		for _, img := range page.Images {
			if img.ID == "" || img.ImageBase64 == "" {
				continue
			}
			data, err := decodeImage(img.ImageBase64)
			if err != nil {
				return domain.ConversionResult{}, fmt.Errorf("decode image %s: %w", img.ID, err)
			}
			name := names.name(img.ID)
			if err := os.WriteFile(filepath.Join(imagesDir, name), data, 0o644); err != nil {
				return domain.ConversionResult{}, fmt.Errorf("write image %s: %w", name, err)
			}
			md = RewriteImageLinks(md, img.ID, "images/"+name)
			images++
		}
		pages = append(pages, md)
	}

	mdPath := filepath.Join(outputDir, "complete.md")
	if err := os.WriteFile(mdPath, []byte(strings.Join(pages, "\n\n")), 0o644); err != nil {
		return domain.ConversionResult{}, fmt.Errorf("write markdown: %w", err)
	}

	return domain.ConversionResult{
		OutputDir:    outputDir,
		MarkdownPath: mdPath,
		Pages:        len(resp.Pages),
		Images:       images,
	}, nil
}

// RewriteImageLinks points the inline reference ![id](id) at target.
func RewriteImageLinks(markdown, id, target string) string {
	return strings.ReplaceAll(markdown, fmt.Sprintf("![%s](%s)", id, id), fmt.Sprintf("![%s](%s)", id, target))
}

// decodeImage accepts a data URI or bare base64.
func decodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return data, nil
}

// imageNamer maps provider image ids to file names inside images/. Ids are
// reduced to their base name; collisions get a numeric suffix and the same
// id always maps to the same file.
type imageNamer struct {
	byID map[string]string
	used map[string]bool
}

func newImageNamer() *imageNamer {
	return &imageNamer{byID: map[string]string{}, used: map[string]bool{}}
}

func (n *imageNamer) name(id string) string {
	if name, ok := n.byID[id]; ok {
		return name
	}
	base := filepath.Base(strings.ReplaceAll(id, "\\", "/"))
	if base == "." || base == ".." || base == "/" {
		base = "image"
	}
	ext := filepath.Ext(base)
	if ext == "" || ext == "." {
		base = strings.TrimSuffix(base, ".")
		ext = ".png"
	}
	stem := strings.Trim(strings.TrimSuffix(base, filepath.Ext(base)), ".")
	if stem == "" {
		stem = "image"
	}

	name := stem + ext
	for i := 2; n.used[name]; i++ {
		name = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
	n.used[name] = true
	n.byID[id] = name
	return name
}
