package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/documentextraction/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeTranscriber struct {
	mu        sync.Mutex
	mimeTypes []string
	text      string
	err       error
}

func (t *fakeTranscriber) Transcribe(_ context.Context, mimeType string, _ []byte) (string, error) {
	t.mu.Lock()
	t.mimeTypes = append(t.mimeTypes, mimeType)
	t.mu.Unlock()
	return t.text, t.err
}

func TestRecognizerImage(t *testing.T) {
	transcriber := &fakeTranscriber{text: "Invoice Number: 7\nTotal: $5.00"}
	read := func(_ context.Context, uri string) ([]byte, error) {
		assert.Equal(t, "gs://bucket/staging/1-abc-scan.png", uri)
		return pngHeader, nil
	}
	r := NewRecognizerWith(read, transcriber, discardLogger())

	resp, err := r.Process(context.Background(), &models.RecognizeRequest{GCSUri: "gs://bucket/staging/1-abc-scan.png"})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 1, resp.PageCount)
	assert.Equal(t, []string{"Invoice Number: 7\nTotal: $5.00"}, resp.Fragments)
	assert.Equal(t, []string{"image/png"}, transcriber.mimeTypes)
}

// buildPDF writes a minimal PDF with one page per width, so each page can be
// told apart by its media box.
func buildPDF(widths ...int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, len(widths))
	for i := range widths {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(widths)))
	for i, w := range widths {
		content := fmt.Sprintf("0 0 m %d 100 l S", w)
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 100] /Resources << >> /Contents %d 0 R >>", w, 4+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// pageWidthTranscriber answers with the width of the single page it is given.
type pageWidthTranscriber struct {
	mu        sync.Mutex
	mimeTypes []string
}

func (t *pageWidthTranscriber) Transcribe(_ context.Context, mimeType string, data []byte) (string, error) {
	t.mu.Lock()
	t.mimeTypes = append(t.mimeTypes, mimeType)
	t.mu.Unlock()

	pdfCtx, err := api.ReadAndValidate(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return "", err
	}
	if pdfCtx.PageCount != 1 {
		return "", fmt.Errorf("got %d pages, want 1", pdfCtx.PageCount)
	}
	dims, err := pdfCtx.XRefTable.PageDims()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("width %d", int(dims[0].Width)), nil
}

func TestRecognizerSplitsPDFInPageOrder(t *testing.T) {
	tests := []struct {
		name   string
		widths []int
		want   []string
	}{
		{"single page", []int{150}, []string{"width 150"}},
		{"three pages", []int{101, 102, 103}, []string{"width 101", "width 102", "width 103"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := buildPDF(tt.widths...)
			transcriber := &pageWidthTranscriber{}
			r := NewRecognizerWith(func(context.Context, string) ([]byte, error) {
				return doc, nil
			}, transcriber, discardLogger())

			resp, err := r.Process(context.Background(), &models.RecognizeRequest{GCSUri: "gs://bucket/staging/1-abc-invoice.pdf"})
			require.NoError(t, err)
			assert.Equal(t, "success", resp.Status)
			assert.Equal(t, len(tt.widths), resp.PageCount)
			assert.Equal(t, tt.want, resp.Fragments)
			for _, m := range transcriber.mimeTypes {
				assert.Equal(t, "application/pdf", m)
			}
		})
	}
}

func TestRecognizerRejectsCorruptPDF(t *testing.T) {
	r := NewRecognizerWith(func(context.Context, string) ([]byte, error) {
		return []byte("%PDF-1.4\nnot really a pdf"), nil
	}, &fakeTranscriber{}, discardLogger())

	_, err := r.Process(context.Background(), &models.RecognizeRequest{GCSUri: "gs://b/broken.pdf"})
	assert.ErrorContains(t, err, "PDF")
}

func TestRecognizerErrors(t *testing.T) {
	r := NewRecognizerWith(nil, &fakeTranscriber{}, discardLogger())
	_, err := r.Process(context.Background(), &models.RecognizeRequest{})
	assert.ErrorContains(t, err, "gcsUri is required")

	r = NewRecognizerWith(func(context.Context, string) ([]byte, error) {
		return nil, errors.New("object not found")
	}, &fakeTranscriber{}, discardLogger())
	_, err = r.Process(context.Background(), &models.RecognizeRequest{GCSUri: "gs://b/o.png"})
	assert.ErrorContains(t, err, "object not found")

	r = NewRecognizerWith(func(context.Context, string) ([]byte, error) {
		return pngHeader, nil
	}, &fakeTranscriber{err: errors.New("quota exceeded")}, discardLogger())
	_, err = r.Process(context.Background(), &models.RecognizeRequest{GCSUri: "gs://b/o.png"})
	assert.ErrorContains(t, err, "page 1: quota exceeded")
}

func TestTranscribePagesKeepsOrderAndLimit(t *testing.T) {
	transcriber := &orderedTranscriber{}
	r := NewRecognizerWith(nil, transcriber, discardLogger())

	pages := make([][]byte, 10)
	for i := range pages {
		pages[i] = []byte{byte('a' + i)}
	}
	fragments, err := r.transcribePages(context.Background(), discardLogger(), "application/pdf", pages)
	require.NoError(t, err)
	require.Len(t, fragments, 10)
	for i, f := range fragments {
		assert.Equal(t, string(rune('a'+i)), f)
	}
	assert.LessOrEqual(t, transcriber.maxActive.Load(), int32(pageConcurrency))
}

type orderedTranscriber struct {
	active    atomic.Int32
	maxActive atomic.Int32
}

func (t *orderedTranscriber) Transcribe(_ context.Context, _ string, data []byte) (string, error) {
	n := t.active.Add(1)
	defer t.active.Add(-1)
	for {
		m := t.maxActive.Load()
		if n <= m || t.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	// Later pages finish first.
	time.Sleep(time.Duration('k'-data[0]) * time.Millisecond)
	return string(data), nil
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want string
	}{
		{"pdf by content", "staging/x.bin", []byte("%PDF-1.7\n"), "application/pdf"},
		{"png by content", "staging/x", pngHeader, "image/png"},
		{"tiff by extension", "staging/scan.TIF", []byte{0x49, 0x49, 0x2a, 0x00}, "image/tiff"},
		{"unknown", "staging/notes", []byte{0x00, 0x01}, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectMIMEType(tt.file, tt.data))
		})
	}
}

func TestExtractText(t *testing.T) {
	assert.Empty(t, extractText(nil))
	assert.Empty(t, extractText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{
			genai.Text("```text\nInvoice Number: 12\n"),
			genai.Text("Total: $1.00\n```"),
		}},
	}}}
	assert.Equal(t, "Invoice Number: 12\nTotal: $1.00", extractText(resp))
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, isRefusal("As a large language model, I cannot read this."))
	assert.False(t, isRefusal("Total Due: $10.00"))
}
