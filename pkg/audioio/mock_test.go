package audioio

import (
	"context"
	"testing"
	"time"
)

func TestChunkBytesRoundTrip(t *testing.T) {
	original := AudioChunk{
		Samples:    []int16{0, 100, -100, 32767, -32768},
		SampleRate: 16000,
		Channels:   1,
	}

	var decoded AudioChunk
	decoded.FromBytes(original.Bytes(), 16000, 1)

	if len(decoded.Samples) != len(original.Samples) {
		t.Fatalf("sample count = %d, want %d", len(decoded.Samples), len(original.Samples))
	}
	for i, s := range original.Samples {
		if decoded.Samples[i] != s {
			t.Errorf("sample %d = %d, want %d", i, decoded.Samples[i], s)
		}
	}
}

func TestChunkLevel(t *testing.T) {
	silence := AudioChunk{Samples: make([]int16, 160), SampleRate: 16000, Channels: 1}
	if level := silence.Level(); level != 0 {
		t.Errorf("silence level = %v, want 0", level)
	}

	loud := AudioChunk{Samples: []int16{20000, -20000, 20000, -20000}, SampleRate: 16000, Channels: 1}
	level := loud.Level()
	if level <= 0.5 || level > 1 {
		t.Errorf("loud level = %v, want in (0.5,1]", level)
	}
}

func TestMockSourceLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond
	source := NewMockSource(cfg, nil, WithSineWave(440, 0.5))

	if err := source.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	chunk, err := source.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(chunk.Samples) != cfg.BufferSize() {
		t.Errorf("chunk size = %d, want %d", len(chunk.Samples), cfg.BufferSize())
	}
	if chunk.Level() == 0 {
		t.Error("sine chunk should have non-zero level")
	}

	source.SetAmplitude(0)
	// Drain a few buffered chunks, then expect silence.
	deadline := time.After(time.Second)
	for {
		chunk, err = source.Read(context.Background())
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if chunk.Level() == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("amplitude change never took effect")
		default:
		}
	}

	if err := source.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := source.Stop(); err != nil {
		t.Errorf("Stop() should be idempotent, got %v", err)
	}
	if err := source.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
