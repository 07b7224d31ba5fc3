package shipping

import "fmt"

// ArtifactKind identifies one of the per-store files produced for an order.
type ArtifactKind string

const (
	ArtifactTransport ArtifactKind = "transport" // carrier label, normalized to PDF
	ArtifactPDF       ArtifactKind = "pdf"       // packing slip + label
	ArtifactImage     ArtifactKind = "image"     // rasterized composite
	ArtifactZPL       ArtifactKind = "zpl"       // printer bitmap text
)

// FileName returns the file name of the artifact for orderNumber.
func (k ArtifactKind) FileName(orderNumber string) string {
	switch k {
	case ArtifactTransport:
		return orderNumber + "_transport.pdf"
	case ArtifactPDF:
		return orderNumber + ".pdf"
	case ArtifactImage:
		return orderNumber + ".jpg"
	case ArtifactZPL:
		return orderNumber + ".zpl"
	default:
		panic(fmt.Sprintf("unknown artifact kind %q", string(k)))
	}
}

// ContentType returns the MIME type served for the artifact.
func (k ArtifactKind) ContentType() string {
	switch k {
	case ArtifactImage:
		return "image/jpeg"
	case ArtifactZPL:
		return "text/plain; charset=utf-8"
	default:
		return "application/pdf"
	}
}

// DerivedArtifacts are regenerated together by compose.
var DerivedArtifacts = []ArtifactKind{ArtifactPDF, ArtifactImage, ArtifactZPL}

// ArtifactSet holds the paths of the derived artifacts written by one compose.
type ArtifactSet struct {
	PDFPath   string
	ImagePath string
	ZPLPath   string
}

// Fields returns the paths keyed by artifact kind, for logging.
func (s ArtifactSet) Fields() map[ArtifactKind]string {
	return map[ArtifactKind]string{
		ArtifactPDF:   s.PDFPath,
		ArtifactImage: s.ImagePath,
		ArtifactZPL:   s.ZPLPath,
	}
}
