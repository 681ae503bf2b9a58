package browser

import (
	"context"
	"encoding/base64"

	"github.com/paiml/probar/internal/perr"
)

// ScreenshotFormat selects the image encoding of a capture.
type ScreenshotFormat string

const (
	ScreenshotPNG  ScreenshotFormat = "png"
	ScreenshotJPEG ScreenshotFormat = "jpeg"
)

// Screenshot captures the current viewport and returns the decoded
// image bytes.
func (a *Agent) Screenshot(ctx context.Context, format ScreenshotFormat) ([]byte, error) {
	var out struct {
		Data string `json:"data"`
	}
	if err := a.send(ctx, "Page.captureScreenshot", map[string]string{
		"format": string(format),
	}, &out); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, perr.New(perr.KindProtocolError, component, "screenshot", "", err)
	}
	return data, nil
}
