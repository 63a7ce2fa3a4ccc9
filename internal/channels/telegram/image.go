package telegram

import (
	"fmt"
	"os"

	"github.com/disintegration/imaging"
)

// maxVisionDimension bounds the longest edge of an image handed to the
// agent for vision use; downloaded photos can run to several thousand
// pixels and needlessly inflate the agent's context.
const maxVisionDimension = 1568

// sanitizeImage decodes a downloaded photo, applies its EXIF orientation,
// strips the EXIF block, downsamples it if oversized, and re-encodes it as
// a flat JPEG — the normalization step the Domain Stack's "downloaded-image
// normalization before vision attach" entry refers to.
func sanitizeImage(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("telegram: open image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxVisionDimension || bounds.Dy() > maxVisionDimension {
		img = imaging.Fit(img, maxVisionDimension, maxVisionDimension, imaging.Lanczos)
	}

	out, err := os.CreateTemp("", "clawbridge-img-*.jpg")
	if err != nil {
		return "", fmt.Errorf("telegram: create sanitized image temp file: %w", err)
	}
	defer out.Close()

	if err := imaging.Encode(out, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("telegram: encode sanitized image: %w", err)
	}

	_ = os.Remove(path) // the pre-sanitization original is no longer needed
	return out.Name(), nil
}
