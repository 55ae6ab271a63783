package llm

import (
	"io"
	"strings"
	"testing"
)

func TestAccumulatorJoinsDeltaPieces(t *testing.T) {
	var acc Accumulator
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"
	if _, err := io.Copy(&acc, strings.NewReader(stream)); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if acc.Text() != "Hello" {
		t.Fatalf("expected Hello, got %q", acc.Text())
	}
	if !acc.Done() {
		t.Fatal("expected done after sentinel")
	}
}

func TestAccumulatorHandlesSplitChunks(t *testing.T) {
	var acc Accumulator
	// A data line split mid-JSON across two writes, as TCP chunking may do.
	parts := []string{
		"data: {\"choices\":[{\"delta\":{\"con",
		"tent\":\"Hi\"}}]}\n",
		"data: [DONE]\n",
	}
	for _, p := range parts {
		if _, err := acc.Write([]byte(p)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if acc.Text() != "Hi" {
		t.Fatalf("expected Hi, got %q", acc.Text())
	}
}

func TestAccumulatorIgnoresNoise(t *testing.T) {
	var acc Accumulator
	stream := ": keepalive comment\n" +
		"event: ping\n" +
		"data: not json\n" +
		"data: {\"choices\":[]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":null}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n"
	if _, err := io.Copy(&acc, strings.NewReader(stream)); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if acc.Text() != "ok" {
		t.Fatalf("expected ok, got %q", acc.Text())
	}
	if acc.Done() {
		t.Fatal("done must require the sentinel")
	}
}

func TestAccumulatorStopsAfterDone(t *testing.T) {
	var acc Accumulator
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: [DONE]\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n"
	if _, err := io.Copy(&acc, strings.NewReader(stream)); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if acc.Text() != "a" {
		t.Fatalf("content after [DONE] must be ignored, got %q", acc.Text())
	}
}

func TestAccumulatorFinishConsumesUnterminatedLine(t *testing.T) {
	var acc Accumulator
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"tial\"}}]}"
	if _, err := io.Copy(&acc, strings.NewReader(stream)); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if acc.Text() != "par" {
		t.Fatalf("unterminated line must stay pending until Finish, got %q", acc.Text())
	}
	acc.Finish()
	if acc.Text() != "partial" {
		t.Fatalf("expected partial after Finish, got %q", acc.Text())
	}
	// Finish is idempotent.
	acc.Finish()
	if acc.Text() != "partial" {
		t.Fatalf("second Finish must not re-feed, got %q", acc.Text())
	}
}

func TestAccumulatorCRLFLines(t *testing.T) {
	var acc Accumulator
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\r\ndata: [DONE]\r\n"
	if _, err := io.Copy(&acc, strings.NewReader(stream)); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if acc.Text() != "x" || !acc.Done() {
		t.Fatalf("crlf stream mishandled: %q done=%v", acc.Text(), acc.Done())
	}
}
