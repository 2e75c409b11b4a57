package onnxrt

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/RyanBlaney/sonido-gunshot/detection/backends"
)

func TestInputShape(t *testing.T) {
	tests := []struct {
		dims ort.Shape
		want [3]int
	}{
		{ort.NewShape(-1, 128, 128, 1), [3]int{128, 128, 1}},
		{ort.NewShape(1, -1, 64, 3), [3]int{0, 64, 3}},
		{ort.NewShape(1, 128), [3]int{}},
	}
	for _, tt := range tests {
		if got := InputShape(tt.dims); got != tt.want {
			t.Errorf("InputShape(%v) = %v, want %v", tt.dims, got, tt.want)
		}
	}
}

func TestOutputShape(t *testing.T) {
	tests := []struct {
		dims ort.Shape
		n    int
		want ort.Shape
	}{
		{ort.NewShape(-1, 2), 2, ort.NewShape(1, 2)},
		{ort.NewShape(-1, -1), 2, ort.NewShape(1, 2)},
		{nil, 0, ort.NewShape(1, 1)},
		{ort.NewShape(1, 1), 0, ort.NewShape(1, 1)},
	}
	for _, tt := range tests {
		if got := OutputShape(tt.dims, tt.n); !slices.Equal(got, tt.want) {
			t.Errorf("OutputShape(%v, %d) = %v, want %v", tt.dims, tt.n, got, tt.want)
		}
	}
}

func TestLoadMissingWeights(t *testing.T) {
	rt := New("")
	_, err := rt.Load(backends.Architecture{}, filepath.Join(t.TempDir(), "model.onnx"))
	if err == nil {
		t.Fatal("expected error for missing weights")
	}
}

func TestUnavailableLibrary(t *testing.T) {
	if ort.IsInitialized() {
		t.Skip("ONNX Runtime already initialised in this process")
	}

	rt := New(filepath.Join(t.TempDir(), "libonnxruntime.so"))
	err := rt.Available()
	if !errors.Is(err, backends.ErrRuntimeUnavailable) {
		t.Fatalf("expected ErrRuntimeUnavailable, got %v", err)
	}
}
