package filetype

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ImageInfo contains detected type information for downloaded image bytes
type ImageInfo struct {
	MIMEType    string
	Extension   string
	IsImage     bool
	Description string
}

// Detector handles type detection using magic bytes
type Detector struct{}

// New creates a new detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs data by magic bytes. Anything that is not a recognised image
// is still reported, with IsImage false; callers decide what to do with it.
func (d *Detector) Detect(data []byte) ImageInfo {
	mtype := mimetype.Detect(data)
	info := ImageInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(&info)
	return info
}

// DetectFile sniffs a file on disk.
func (d *Detector) DetectFile(path string) (ImageInfo, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return ImageInfo{}, err
	}
	info := ImageInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(&info)
	return info, nil
}

func (d *Detector) classify(info *ImageInfo) {
	// mimetype may append parameters such as "; charset=utf-8"
	base := info.MIMEType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	info.MIMEType = base

	switch {
	case base == "image/jpeg":
		info.IsImage = true
		info.Description = "JPEG image"
	case base == "image/png":
		info.IsImage = true
		info.Description = "PNG image"
	case base == "image/gif":
		info.IsImage = true
		info.Description = "GIF image"
	case base == "image/webp":
		info.IsImage = true
		info.Description = "WebP image"
	case base == "image/svg+xml":
		info.IsImage = true
		info.Description = "SVG image"
	case strings.HasPrefix(base, "image/"):
		info.IsImage = true
		info.Description = "Image file"
	case base == "text/html":
		info.Description = "HTML document (likely an error page)"
	default:
		info.Description = "Unrecognised content: " + base
	}
}
