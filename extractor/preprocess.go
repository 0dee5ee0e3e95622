package extractor

import (
	"bytes"
	"image"

	// Register decoders for the common image formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

// PreprocessOptions fixes how raw images are turned into a pixel tensor.
//
// The same options must be used at ingestion and query time; both the HTTP
// client and the stub run every image through the same Preprocess call.
type PreprocessOptions struct {
	// TargetWidth and TargetHeight give the fixed resolution every image is
	// resized to before extraction.
	TargetWidth  int
	TargetHeight int

	// Mean and Std are per-channel (RGB) normalization parameters applied
	// after scaling pixel values to [0,1]. Zero Std disables normalization
	// for that channel.
	Mean [3]float32
	Std  [3]float32
}

// DefaultPreprocessOptions matches the common ImageNet-trained extractor
// setup: 224x224 input, RGB channel order, [0,1] scaling with per-channel
// mean/std normalization.
var DefaultPreprocessOptions = PreprocessOptions{
	TargetWidth:  224,
	TargetHeight: 224,
	Mean:         [3]float32{0.485, 0.456, 0.406},
	Std:          [3]float32{0.229, 0.224, 0.225},
}

// Tensor is a preprocessed image in CHW layout (channel, row, column) with
// RGB channel order.
type Tensor struct {
	Data     []float32
	Width    int
	Height   int
	Channels int
}

// Preprocess decodes, resizes and normalizes a raw image.
//
// It fails with a permanent ExtractionError when the payload is empty,
// malformed or in an unsupported format.
func Preprocess(imageBytes []byte, opts PreprocessOptions) (*Tensor, error) {
	if len(imageBytes) == 0 {
		return nil, NewExtractionError("empty image payload", false, nil)
	}

	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, NewExtractionError("decode image", false, err)
	}

	w, h := opts.TargetWidth, opts.TargetHeight
	if w <= 0 || h <= 0 {
		w, h = DefaultPreprocessOptions.TargetWidth, DefaultPreprocessOptions.TargetHeight
	}

	// Bilinear scaling to the fixed target resolution.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	t := &Tensor{
		Data:     make([]float32, 3*w*h),
		Width:    w,
		Height:   h,
		Channels: 3,
	}

	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := dst.PixOffset(x, y)
			i := y*w + x

			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[off+c]) / 255
				if opts.Std[c] != 0 {
					v = (v - opts.Mean[c]) / opts.Std[c]
				}
				t.Data[c*plane+i] = v
			}
		}
	}

	return t, nil
}
