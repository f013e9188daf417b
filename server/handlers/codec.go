package handlers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"strings"

	"github.com/disintegration/imaging"
)

// extractImageData strips the data-URL prefix and decodes the base64
// payload. Clients send frames as "data:image/jpeg;base64,...".
func extractImageData(dataURL string) ([]byte, error) {
	parts := strings.Split(dataURL, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid data URL format")
	}

	imageData, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return imageData, nil
}

func decodeFrame(data []byte) (*image.RGBA, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

func encodeFrame(img *image.RGBA) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
