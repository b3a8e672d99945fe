package xltpl

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// imageInfo is the detected format and pixel size of an image.
type imageInfo struct {
	ext         string
	contentType string
	width       int
	height      int
}

var imageFormats = map[string]struct{ ext, contentType string }{
	"png":  {"png", "image/png"},
	"jpeg": {"jpg", "image/jpeg"},
	"gif":  {"gif", "image/gif"},
	"bmp":  {"bmp", "image/bmp"},
	"tiff": {"tiff", "image/tiff"},
	"webp": {"webp", "image/webp"},
}

func decodeImageInfo(data []byte) (imageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return imageInfo{}, fmt.Errorf("%w: %v", ErrUnsupportedImageFormat, err)
	}
	f, ok := imageFormats[format]
	if !ok {
		return imageInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedImageFormat, format)
	}
	return imageInfo{ext: f.ext, contentType: f.contentType, width: cfg.Width, height: cfg.Height}, nil
}

// imageBytes turns an image value into raw bytes. Accepted sources are a
// byte slice, a path to an existing file, or base64 text (optionally a data
// URI).
func imageBytes(val Value, root string) ([]byte, error) {
	switch val.Kind() {
	case KindBytes:
		return val.Bytes(), nil
	case KindString:
	default:
		return nil, fmt.Errorf("%w: %s value", ErrInvalidImageSource, val.Kind())
	}
	s := strings.TrimSpace(val.Str())
	name := s
	if root != "" && !filepath.IsAbs(name) {
		name = filepath.Join(root, name)
	}
	if st, err := os.Stat(name); err == nil && !st.IsDir() {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImageSource, err)
		}
		return data, nil
	}
	if strings.HasPrefix(s, "data:") {
		if _, payload, ok := strings.Cut(s, ","); ok {
			s = payload
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not a file or base64 data", ErrInvalidImageSource)
	}
	return data, nil
}

// embedImage replaces the cell's content with an empty string and anchors
// the image at the cell. Empty values leave only the empty string.
func (e *engine) embedImage(cell *etree.Element, ref CellRef, val Value) error {
	e.insertValue(cell, ValueOf(""))
	if val.IsEmpty() {
		return nil
	}

	data, err := imageBytes(val, e.opts.imageRootPath)
	var info imageInfo
	if err == nil {
		info, err = decodeImageInfo(data)
	}
	if err != nil {
		if e.opts.imageErrorHandler == nil {
			return err
		}
		e.opts.imageErrorHandler(val.Raw(), err)
		e.wb.log.Warn("image skipped",
			slog.String("sheet", e.sh.info.Name),
			slog.String("cell", ref.CellName()),
			slog.Any("error", err))
		return nil
	}

	d, err := e.sh.loadDrawing(true)
	if err != nil {
		return err
	}
	relID, err := nextRelID(d.rels.Root())
	if err != nil {
		return err
	}
	media := e.wb.prefix + "/media/image" + strconv.Itoa(e.wb.parts.maxMediaID(info.ext)+1) + "." + info.ext
	e.wb.parts.set(media, data)
	e.wb.ensureDefault(info.ext, info.contentType)

	rel := d.rels.Root().CreateElement("Relationship")
	rel.CreateAttr("Id", relID)
	rel.CreateAttr("Type", nsOfficeRels+"/image")
	rel.CreateAttr("Target", relativeTarget(d.path, media))

	cx, cy := e.fitImage(ref, info)
	anchor := buildAnchor(ref, cx, cy, d.maxShapeID()+1, relID)
	d.root().AddChild(anchor)
	d.created[anchor] = true

	e.wb.log.Debug("image embedded",
		slog.String("sheet", e.sh.info.Name),
		slog.String("cell", ref.CellName()),
		slog.String("media", media))
	return nil
}

// fitImage returns the anchor extent in EMUs. Inside a merge the image is
// scaled to fit the merged box, keeping its aspect ratio; elsewhere the
// configured ratio applies.
func (e *engine) fitImage(ref CellRef, info imageInfo) (int64, int64) {
	w := float64(pxToEMU(float64(info.width)))
	h := float64(pxToEMU(float64(info.height)))

	if merge, ok := e.sh.mergeContaining(ref); ok {
		var mw, mh float64
		for c := merge.Start.Col; c <= merge.End.Col; c++ {
			mw += e.sh.columnWidth(c)
		}
		for r := merge.Start.Row; r <= merge.End.Row; r++ {
			mh += e.sh.rowHeight(r)
		}
		boxW := float64(colWidthToEMU(mw))
		boxH := float64(rowHeightToEMU(mh))
		if boxW > 0 && boxH > 0 {
			rate := max(w/boxW, h/boxH)
			if rate > 0 {
				return int64(math.Floor(w / rate)), int64(math.Floor(h / rate))
			}
		}
		return int64(w), int64(h)
	}

	ratio := e.opts.ratio()
	return int64(math.Floor(w * ratio / 100)), int64(math.Floor(h * ratio / 100))
}

const emuPerInch = 914400

func pxToEMU(px float64) int64 {
	return int64(math.Round(px * emuPerInch / 96))
}

// colWidthToEMU converts a width in characters using the default font's
// approximate pixel width per character.
func colWidthToEMU(width float64) int64 {
	return pxToEMU(width * 7.625579987895905)
}

// rowHeightToEMU converts a height in points.
func rowHeightToEMU(height float64) int64 {
	return int64(math.Round(height / 72 * emuPerInch))
}

// buildAnchor creates an <xdr:oneCellAnchor> holding a picture at ref.
func buildAnchor(ref CellRef, cx, cy int64, shapeID int, relID string) *etree.Element {
	ext := func(parent *etree.Element, tag string) {
		el := parent.CreateElement(tag)
		el.CreateAttr("cx", strconv.FormatInt(cx, 10))
		el.CreateAttr("cy", strconv.FormatInt(cy, 10))
	}

	anchor := etree.NewElement("xdr:oneCellAnchor")
	from := anchor.CreateElement("xdr:from")
	from.CreateElement("xdr:col").SetText(strconv.Itoa(ref.Col - 1))
	from.CreateElement("xdr:colOff").SetText("0")
	from.CreateElement("xdr:row").SetText(strconv.Itoa(ref.Row - 1))
	from.CreateElement("xdr:rowOff").SetText("0")
	ext(anchor, "xdr:ext")

	pic := anchor.CreateElement("xdr:pic")
	nv := pic.CreateElement("xdr:nvPicPr")
	cNvPr := nv.CreateElement("xdr:cNvPr")
	cNvPr.CreateAttr("id", strconv.Itoa(shapeID))
	cNvPr.CreateAttr("name", "Picture "+strconv.Itoa(shapeID))
	cNvPr.CreateAttr("descr", "")
	nv.CreateElement("xdr:cNvPicPr").CreateElement("a:picLocks").CreateAttr("noChangeAspect", "1")

	blipFill := pic.CreateElement("xdr:blipFill")
	blip := blipFill.CreateElement("a:blip")
	blip.CreateAttr("xmlns:r", nsOfficeRels)
	blip.CreateAttr("r:embed", relID)
	blipFill.CreateElement("a:stretch").CreateElement("a:fillRect")

	spPr := pic.CreateElement("xdr:spPr")
	xfrm := spPr.CreateElement("a:xfrm")
	off := xfrm.CreateElement("a:off")
	off.CreateAttr("x", "0")
	off.CreateAttr("y", "0")
	ext(xfrm, "a:ext")
	geom := spPr.CreateElement("a:prstGeom")
	geom.CreateAttr("prst", "rect")
	geom.CreateElement("a:avLst")

	anchor.CreateElement("xdr:clientData")
	return anchor
}
