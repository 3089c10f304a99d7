package capture

import (
	"image"

	"github.com/corona10/goimagehash"
	"github.com/nfnt/resize"
)

// frameWidth is the bounded resolution class frames are downscaled to before
// hashing and persistence. Height follows the aspect ratio.
const frameWidth = 512

// downscale bounds a raw frame to the persistence resolution class.
func downscale(img image.Image) image.Image {
	if img.Bounds().Dx() <= frameWidth {
		return img
	}
	return resize.Resize(frameWidth, 0, img, resize.Bilinear)
}

// fingerprint computes the perceptual difference hash of a frame.
func fingerprint(img image.Image) (*goimagehash.ImageHash, error) {
	return goimagehash.DifferenceHash(img)
}

// diffScore is the hamming distance between two fingerprints; a higher score
// means a more meaningful visual change.
func diffScore(a, b *goimagehash.ImageHash) (int, error) {
	return a.Distance(b)
}
