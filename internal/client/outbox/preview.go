package outbox

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/scanvault/internal/filex"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/image/draw"
)

const (
	previewRunes = 160
	thumbMaxSide = 256
	thumbQuality = 80
)

var markdown = goldmark.New()

// TextPreview is a short single-line rendition of a text capture.
// Markdown is reduced to its plain text.
func TextPreview(name, content string) string {
	plain := content
	if textMimeType(name) == "text/markdown" {
		plain = markdownToPlain([]byte(content))
	}
	plain = strings.Join(strings.Fields(plain), " ")

	if utf8.RuneCountInString(plain) <= previewRunes {
		return plain
	}
	r := []rune(plain)
	return strings.TrimSpace(string(r[:previewRunes])) + "…"
}

func markdownToPlain(src []byte) string {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(src))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// writeThumbnail scales the image at src to fit thumbMaxSide and stores it
// as JPEG at dst.
func writeThumbnail(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(src), err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaleToFit(img, thumbMaxSide), &jpeg.Options{Quality: thumbQuality}); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return filex.WriteFileAtomic(dst, buf.Bytes(), 0o600)
}

// scaleToFit keeps the aspect ratio; images already small enough are
// only re-encoded.
func scaleToFit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}

	nw, nh := maxSide, maxSide
	if w > h {
		nh = max(1, h*maxSide/w)
	} else {
		nw = max(1, w*maxSide/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
