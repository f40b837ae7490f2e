package onnx

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Provider selects the ONNX Runtime execution provider for a session.
type Provider string

const (
	// CPUProvider runs on the default CPU execution provider.
	CPUProvider Provider = "cpu"
	// CUDAProvider runs on an NVIDIA GPU through the CUDA provider.
	CUDAProvider Provider = "cuda"
)

// SessionConfig tunes how a session executes. The zero value selects the
// CPU provider with runtime-default threading.
type SessionConfig struct {
	Provider Provider
	// DeviceID selects the GPU for the CUDA provider.
	DeviceID int
	// IntraOpThreads and InterOpThreads bound runtime parallelism; 0 keeps
	// the runtime default.
	IntraOpThreads int
	InterOpThreads int
}

// build turns the config into runtime session options. Returns nil options
// for the zero value so sessions fall back to runtime defaults. The caller
// owns the returned options and must Destroy them after session creation.
func (c SessionConfig) build() (*ort.SessionOptions, error) {
	if c == (SessionConfig{}) || (c.Provider == CPUProvider && c.IntraOpThreads == 0 && c.InterOpThreads == 0) {
		return nil, nil
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}

	if c.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
			opts.Destroy()
			return nil, errors.Wrap(err, "setting intra-op threads")
		}
	}
	if c.InterOpThreads > 0 {
		if err := opts.SetInterOpNumThreads(c.InterOpThreads); err != nil {
			opts.Destroy()
			return nil, errors.Wrap(err, "setting inter-op threads")
		}
	}

	switch c.Provider {
	case "", CPUProvider:
		// default provider
	case CUDAProvider:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			opts.Destroy()
			return nil, errors.Wrap(err, "creating cuda provider options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(c.DeviceID)}); err != nil {
			opts.Destroy()
			return nil, errors.Wrap(err, "configuring cuda device")
		}
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			opts.Destroy()
			return nil, errors.Wrap(err, "appending cuda provider")
		}
	default:
		opts.Destroy()
		return nil, errors.Errorf("unknown execution provider %q", c.Provider)
	}

	return opts, nil
}
