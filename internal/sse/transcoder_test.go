package sse

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func chunkRecord(text string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", text)
}

func collect(t *testing.T, tr *Transcoder) ([]string, error) {
	t.Helper()
	var chunks []string
	for chunk, err := range tr.Chunks() {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// countingReader records how many bytes were pulled from the stream
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

type tripwireReader struct {
	touched bool
}

func (t *tripwireReader) Read([]byte) (int, error) {
	t.touched = true
	return 0, errors.New("read past sentinel")
}

func TestTranscode_RoundTripInOrder(t *testing.T) {
	t.Parallel()

	want := []string{"Hello", ", ", "world", "!", " How", " are", " you?"}
	var b strings.Builder
	for _, w := range want {
		b.WriteString(chunkRecord(w))
	}
	b.WriteString("data: [DONE]\n\n")

	tr := NewTranscoder(strings.NewReader(b.String()))
	got, err := collect(t, tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if !tr.Completed() {
		t.Fatalf("expected stream to be marked completed")
	}
}

func TestTranscode_StopsAtSentinel(t *testing.T) {
	t.Parallel()

	tail := &tripwireReader{}
	input := chunkRecord("one") + chunkRecord("two") + "data: [DONE]\n"
	r := io.MultiReader(strings.NewReader(input), tail)

	got, err := collect(t, NewTranscoder(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "|") != "one|two" {
		t.Fatalf("unexpected chunks %q", got)
	}
	if tail.touched {
		t.Fatalf("expected no reads after the sentinel")
	}
}

func TestTranscode_IgnoresRecordsAfterSentinel(t *testing.T) {
	t.Parallel()

	input := chunkRecord("kept") + "data: [DONE]\n\n" + chunkRecord("dropped")
	got, err := collect(t, NewTranscoder(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "kept" {
		t.Fatalf("expected only the chunk before the sentinel, got %q", got)
	}
}

func TestTranscode_SkipsMalformedJSON(t *testing.T) {
	t.Parallel()

	input := chunkRecord("first") + "data: {\"choices\":[{\"delta\":\n\n" + chunkRecord("second") + "data: [DONE]\n\n"
	tr := NewTranscoder(strings.NewReader(input))
	got, err := collect(t, tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "|") != "first|second" {
		t.Fatalf("expected both valid chunks, got %q", got)
	}
	if tr.Skipped() != 1 {
		t.Fatalf("expected 1 skipped frame, got %d", tr.Skipped())
	}
}

func TestTranscode_SkipsEmptyDeltas(t *testing.T) {
	t.Parallel()

	input := "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[]}\n\n" +
		chunkRecord("text") +
		"data: [DONE]\n\n"
	got, err := collect(t, NewTranscoder(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "text" {
		t.Fatalf("expected one text chunk, got %q", got)
	}
}

func TestTranscode_SplitMultibyteCharacters(t *testing.T) {
	t.Parallel()

	want := []string{"héllo ", "wörld ", "👋"}
	var b strings.Builder
	for _, w := range want {
		b.WriteString(chunkRecord(w))
	}
	b.WriteString("data: [DONE]\n\n")

	got, err := collect(t, NewTranscoder(iotest.OneByteReader(strings.NewReader(b.String()))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "") != strings.Join(want, "") {
		t.Fatalf("expected %q, got %q", strings.Join(want, ""), strings.Join(got, ""))
	}
}

func TestTranscode_CRLFLineEndings(t *testing.T) {
	t.Parallel()

	input := strings.ReplaceAll(chunkRecord("a")+chunkRecord("b")+"data: [DONE]\n\n", "\n", "\r\n")
	got, err := collect(t, NewTranscoder(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "") != "ab" {
		t.Fatalf("unexpected chunks %q", got)
	}
}

func TestTranscode_EndWithoutSentinelFlushesPartial(t *testing.T) {
	t.Parallel()

	input := chunkRecord("one") + strings.TrimSuffix(chunkRecord("two"), "\n\n")
	tr := NewTranscoder(strings.NewReader(input))
	got, err := collect(t, tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "|") != "one|two" {
		t.Fatalf("expected final partial event to be flushed, got %q", got)
	}
	if tr.Completed() {
		t.Fatalf("expected stream without sentinel to be incomplete")
	}
}

func TestTranscode_ReadErrorIsTerminal(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(chunkRecord("partial")), iotest.ErrReader(boom))

	var chunks []string
	var errs []error
	for chunk, err := range Transcode(r) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) != 1 || chunks[0] != "partial" {
		t.Fatalf("expected chunk before failure, got %q", chunks)
	}
	if len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Fatalf("expected one terminal read error, got %v", errs)
	}
}

func TestTranscode_UpstreamErrorEventIsTerminal(t *testing.T) {
	t.Parallel()

	input := chunkRecord("a") + "data: {\"error\":{\"message\":\"overloaded\"}}\n\n" + chunkRecord("b")
	got, err := collect(t, NewTranscoder(strings.NewReader(input)))
	if !errors.Is(err, ErrUpstreamEvent) {
		t.Fatalf("expected upstream error event, got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected chunks before the error only, got %q", got)
	}
}

func TestTranscode_PullBased(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString(chunkRecord(fmt.Sprintf("chunk-%d", i)))
	}
	total := b.Len()
	counter := &countingReader{r: iotest.OneByteReader(strings.NewReader(b.String()))}

	for chunk, err := range Transcode(counter) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if chunk != "chunk-0" {
			t.Fatalf("unexpected first chunk %q", chunk)
		}
		break
	}
	if counter.n >= total {
		t.Fatalf("expected lazy reads, consumed %d of %d bytes", counter.n, total)
	}
	if want := len(chunkRecord("chunk-0")); counter.n != want {
		t.Fatalf("expected exactly the first record (%d bytes) to be read, got %d", want, counter.n)
	}
}

func TestTranscode_NotRestartable(t *testing.T) {
	t.Parallel()

	tr := NewTranscoder(strings.NewReader(chunkRecord("once") + "data: [DONE]\n\n"))
	if _, err := collect(t, tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := collect(t, tr)
	if !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed on second range, got %v", err)
	}
}
