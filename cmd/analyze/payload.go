package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// inlineThreshold is the argument length above which the video argument is
// treated as base64 data rather than a path.
const inlineThreshold = 1000

func isInlinePayload(arg string) bool {
	return strings.HasPrefix(arg, "data:video") || len(arg) > inlineThreshold
}

// decodePayload accepts raw base64 or a data URL ("data:video/mp4;base64,...").
func decodePayload(arg string) ([]byte, error) {
	data := arg
	if strings.HasPrefix(arg, "data:") {
		_, after, ok := strings.Cut(arg, ",")
		if !ok {
			return nil, errors.New("data URL has no payload")
		}
		data = after
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(data))
}

// materializeVideo returns a path to the video named by arg. Inline payloads
// are written to a temporary .mp4 that cleanup removes.
func materializeVideo(arg, dir string) (string, func(), error) {
	if !isInlinePayload(arg) {
		return arg, func() {}, nil
	}

	data, err := decodePayload(arg)
	if err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp(dir, "analyze-*.mp4")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}

	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
