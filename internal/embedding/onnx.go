//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a sentence-transformer model (all-MiniLM-L6-v2 by default) through ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	model      string
	dimensions int
	maxTokens  int
	truncate   bool
	tokenizer  *WordPieceTokenizer
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXEmbedder loads the model at modelPath and its WordPiece vocabulary at vocabPath.
// Any failure to read the vocabulary, initialize the runtime, or load the model is an
// embedding error.
func NewONNXEmbedder(modelPath, vocabPath, model string, dimensions, maxTokens int, truncate bool) (*ONNXEmbedder, error) {
	const op = "embedding.NewONNXEmbedder"
	tokenizer, err := LoadWordPieceTokenizer(vocabPath)
	if err != nil {
		return nil, err
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errs.New(errs.KindEmbedding, op, fmt.Errorf("initialize onnx runtime: %w", err))
		}
	}

	inputIDs, attentionMask, tokenTypeIDs := tokenizer.Encode("", maxTokens)
	shape := ort.NewShape(1, int64(maxTokens))

	inputIDsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, errs.New(errs.KindEmbedding, op, fmt.Errorf("create input_ids tensor: %w", err))
	}
	attentionMaskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		inputIDsTensor.Destroy()
		return nil, errs.New(errs.KindEmbedding, op, fmt.Errorf("create attention_mask tensor: %w", err))
	}
	tokenTypeIDsTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		return nil, errs.New(errs.KindEmbedding, op, fmt.Errorf("create token_type_ids tensor: %w", err))
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		return nil, errs.New(errs.KindEmbedding, op, fmt.Errorf("create output tensor: %w", err))
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		outputTensor.Destroy()
		return nil, errs.New(errs.KindEmbedding, op, fmt.Errorf("load model %s: %w", modelPath, err))
	}

	return &ONNXEmbedder{
		session:             session,
		model:               model,
		dimensions:          dimensions,
		maxTokens:           maxTokens,
		truncate:            truncate,
		tokenizer:           tokenizer,
		inputIDsTensor:      inputIDsTensor,
		attentionMaskTensor: attentionMaskTensor,
		tokenTypeIDsTensor:  tokenTypeIDsTensor,
		outputTensor:        outputTensor,
	}, nil
}

// Embed returns the unit-length embedding for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.KindEmbedding, "embedding.ONNXEmbedder.Embed", err)
	}
	text, err := fitTokens(e.tokenizer, text, e.maxTokens, e.truncate)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Encode(text, e.maxTokens)
	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)
	copy(e.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

	if err := e.session.Run(); err != nil {
		return nil, errs.New(errs.KindEmbedding, "embedding.ONNXEmbedder.Embed", fmt.Errorf("inference failed: %w", err))
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.outputTensor.GetData()[:e.dimensions])
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// EmbedBatch calls Embed for each text; the session runs one input at a time.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the configured model name.
func (e *ONNXEmbedder) Model() string {
	return e.model
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	// Tensors are created together in NewONNXEmbedder, so one nil check covers all four.
	if e.outputTensor != nil {
		_ = e.inputIDsTensor.Destroy()
		_ = e.attentionMaskTensor.Destroy()
		_ = e.tokenTypeIDsTensor.Destroy()
		_ = e.outputTensor.Destroy()
		e.inputIDsTensor, e.attentionMaskTensor, e.tokenTypeIDsTensor, e.outputTensor = nil, nil, nil, nil
	}
	return err
}
