// Package sniffer identifies proof-of-delivery images by their magic bytes.
// The declared MIME type of an upload is never trusted on its own.
package sniffer

import (
	"bytes"
	"errors"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeAVIF MediaType = "avif"
	TypeSVG  MediaType = "svg"
)

// headLen is how much of a payload the detectors look at.
const headLen = 512

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
}

// Ext is the file extension used for object keys.
func (r Result) Ext() string {
	if r.Type == TypeJPEG {
		return "jpg"
	}
	return string(r.Type)
}

func Detect(data []byte) (Result, error) {
	head := data
	if len(head) > headLen {
		head = head[:headLen]
	}
	switch {
	case len(head) == 0:
		return Result{}, ErrUnknownType
	case isJPEG(head):
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	case isGIF(head):
		return Result{Type: TypeGIF, MIME: "image/gif"}, nil
	case isWEBP(head):
		return Result{Type: TypeWEBP, MIME: "image/webp"}, nil
	case isAVIF(head):
		return Result{Type: TypeAVIF, MIME: "image/avif"}, nil
	case isSVG(head):
		return Result{Type: TypeSVG, MIME: "image/svg+xml"}, nil
	}
	return Result{}, ErrUnknownType
}

// Matches reports whether a declared MIME type agrees with the detected one.
// An empty declaration always matches.
func (r Result) Matches(declared string) bool {
	declared = NormalizeMIME(declared)
	if declared == "" {
		return true
	}
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	return declared == r.MIME
}

// NormalizeMIME drops parameters and case from a media type.
func NormalizeMIME(value string) string {
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = value[:idx]
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return bytes.HasPrefix(head, pngMagic)
}

func isGIF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a"))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

func isAVIF(head []byte) bool {
	if len(head) < 12 {
		return false
	}
	return string(head[4:8]) == "ftyp" && bytes.Contains(head[8:], []byte("avif"))
}

func isSVG(head []byte) bool {
	trimmed := strings.TrimSpace(string(head))
	if strings.HasPrefix(trimmed, "<svg") {
		return true
	}
	return strings.HasPrefix(trimmed, "<?xml") && strings.Contains(strings.ToLower(trimmed), "<svg")
}
