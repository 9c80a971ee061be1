package main

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"stanlsp/internal/version"
)

func TestRenderVersionJSON(t *testing.T) {
	var out bytes.Buffer
	if err := renderVersionJSON(&out, versionOptions{format: "json", showHash: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	var payload versionPayload
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Tool != "stanlsp" || payload.Version != version.String() {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.GitCommit == "" || payload.BuildDate != "" {
		t.Fatalf("unexpected optional fields: %+v", payload)
	}
}

func TestRenderVersionPretty(t *testing.T) {
	disableColor(t)
	var out bytes.Buffer
	renderVersionPretty(&out, versionOptions{showDate: true})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || lines[0] != "stanlsp "+version.String() || !strings.HasPrefix(lines[1], "built:") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}
