package introspect

import (
	"sync"

	"github.com/eringen/imagewarm/optimizer"
)

// Registry collects the images one render requires. It is append-only and
// belongs to exactly one RenderContext.
type Registry struct {
	mu     sync.Mutex
	images []optimizer.CachedImage
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Push records images in call order. Duplicates are kept.
func (r *Registry) Push(images ...optimizer.CachedImage) {
	r.mu.Lock()
	r.images = append(r.images, images...)
	r.mu.Unlock()
}

// Len returns the number of recorded images.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.images)
}

// Images returns a copy of the recorded images.
func (r *Registry) Images() []optimizer.CachedImage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]optimizer.CachedImage, len(r.images))
	copy(out, r.images)
	return out
}

// ImageSet is an insertion-ordered set of images. It is the single place
// where images from different renders are deduplicated.
type ImageSet struct {
	order []optimizer.CachedImage
	seen  map[optimizer.CachedImage]struct{}
}

// NewImageSet returns an empty set.
func NewImageSet() *ImageSet {
	return &ImageSet{seen: make(map[optimizer.CachedImage]struct{})}
}

// Add inserts images not already present.
func (s *ImageSet) Add(images ...optimizer.CachedImage) {
	for _, img := range images {
		if _, ok := s.seen[img]; ok {
			continue
		}
		s.seen[img] = struct{}{}
		s.order = append(s.order, img)
	}
}

// Len returns the set size.
func (s *ImageSet) Len() int {
	return len(s.order)
}

// Slice returns the images in first-seen order.
func (s *ImageSet) Slice() []optimizer.CachedImage {
	out := make([]optimizer.CachedImage, len(s.order))
	copy(out, s.order)
	return out
}
