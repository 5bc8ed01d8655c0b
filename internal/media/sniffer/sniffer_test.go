package sniffer

import (
	"errors"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want MediaType
		ext  string
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, TypeJPEG, "jpg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00}, TypePNG, "png"},
		{"gif", []byte("GIF89a......"), TypeGIF, "gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), TypeWEBP, "webp"},
		{"avif", []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00"), TypeAVIF, "avif"},
		{"svg", []byte(`  <svg xmlns="http://www.w3.org/2000/svg"></svg>`), TypeSVG, "svg"},
		{"svg with prolog", []byte(`<?xml version="1.0"?><svg></svg>`), TypeSVG, "svg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.data)
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if got.Type != tt.want {
				t.Errorf("Type = %s, want %s", got.Type, tt.want)
			}
			if got.Ext() != tt.ext {
				t.Errorf("Ext() = %s, want %s", got.Ext(), tt.ext)
			}
		})
	}
}

func TestDetectUnknown(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("hello world"), []byte("%PDF-1.7")} {
		if _, err := Detect(data); !errors.Is(err, ErrUnknownType) {
			t.Errorf("Detect(%q) error = %v, want ErrUnknownType", data, err)
		}
	}
}

func TestResultMatches(t *testing.T) {
	jpeg := Result{Type: TypeJPEG, MIME: "image/jpeg"}
	tests := []struct {
		declared string
		want     bool
	}{
		{"", true},
		{"image/jpeg", true},
		{"IMAGE/JPEG; charset=binary", true},
		{"image/jpg", true},
		{"image/png", false},
	}
	for _, tt := range tests {
		if got := jpeg.Matches(tt.declared); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.declared, got, tt.want)
		}
	}
}
