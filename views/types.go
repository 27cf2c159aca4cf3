package views

// ImageProps describes one site image as a page requests it.
type ImageProps struct {
	Src    string
	Width  int // box the image is fitted into, aspect ratio is kept
	Height int
	// Quality is the JPEG quality, 0 selects optimizer.DefaultQuality.
	Quality int

	Blur     bool // show a blurred placeholder until the image loads
	Priority bool // preload the image
	Alt      string
	Class    string
}

// PageMeta carries per-page metadata into the <head> of Layout.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical
}
