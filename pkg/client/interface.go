package client

import (
	"context"

	"github.com/menta2k/uwuifier/pkg/types"
)

// VisionClient is a vision-language model backend that can be prompted
// with an image
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	LocateFaces(ctx context.Context, model, prompt, imgB64 string) (*types.FaceReport, error)
}
