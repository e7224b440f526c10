//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"

	"github.com/hyperjump/docqa/internal/errs"
)

var errNoCGO = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime, or use the openai or mock provider")

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an embedding error when built without CGO.
func NewONNXEmbedder(_, _, _ string, _, _ int, _ bool) (*ONNXEmbedder, error) {
	return nil, errs.New(errs.KindEmbedding, "embedding.NewONNXEmbedder", errNoCGO)
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errs.New(errs.KindEmbedding, "embedding.ONNXEmbedder.Embed", errNoCGO)
}

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errs.New(errs.KindEmbedding, "embedding.ONNXEmbedder.EmbedBatch", errNoCGO)
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }
func (e *ONNXEmbedder) Model() string   { return "" }
func (e *ONNXEmbedder) Close() error    { return nil }
