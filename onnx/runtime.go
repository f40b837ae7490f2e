// Package onnx runs exported detector networks with ONNX Runtime and hands
// their outputs across the tensor boundary as *tensor.Dense maps.
package onnx

import (
	"log"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// Initialize loads the ONNX Runtime shared library and sets up the process
// environment. Safe to call more than once; later calls return the first
// result.
//
// Arguments:
//   - libraryPath: Path to the onnxruntime shared library; empty keeps the
//     platform default lookup.
func Initialize(libraryPath string) error {
	initOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = errors.Wrap(err, "initializing onnxruntime environment")
			return
		}
		log.Printf("onnxruntime environment initialized")
	})
	return initErr
}

// Destroy tears down the ONNX Runtime environment. Call once at process
// shutdown, after all sessions are closed.
func Destroy() error {
	return ort.DestroyEnvironment()
}
