package transform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestExtractMedia(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []MediaReference
	}{
		{
			name: "full resolution source preferred",
			html: `<img data-fullres-src="https://remote/full.png" src="https://remote/small.png"/>`,
			want: []MediaReference{{
				Index:     0,
				SourceURL: "https://remote/full.png",
				Kind:      KindInlineImage,
				FileName:  "p1_asset_0.png",
			}},
		},
		{
			name: "plain image source",
			html: `<img src="https://remote/img.png"/>`,
			want: []MediaReference{{
				Index:     0,
				SourceURL: "https://remote/img.png",
				Kind:      KindInlineImage,
				FileName:  "p1_asset_0.png",
			}},
		},
		{
			name: "jpeg hint changes extension",
			html: `<img src="https://remote/resource" data-src-type="image/jpeg"/>`,
			want: []MediaReference{{
				Index:     0,
				SourceURL: "https://remote/resource",
				Kind:      KindInlineImage,
				FileName:  "p1_asset_0.jpg",
			}},
		},
		{
			name: "object with attachment name",
			html: `<object data="https://remote/file" data-attachment="report.pdf" type="application/pdf"></object>`,
			want: []MediaReference{{
				Index:          0,
				SourceURL:      "https://remote/file",
				Kind:           KindAttachment,
				AttachmentName: "report.pdf",
				FileName:       "p1_report.pdf",
			}},
		},
		{
			name: "attachment name sanitized",
			html: `<object data="https://remote/file" data-attachment="q1/q2: plan.docx"></object>`,
			want: []MediaReference{{
				Index:          0,
				SourceURL:      "https://remote/file",
				Kind:           KindAttachment,
				AttachmentName: "q1/q2: plan.docx",
				FileName:       "p1_q1_q2_ plan.docx",
			}},
		},
		{
			name: "pdf printout object",
			html: `<object data="https://remote/printout" type="application/pdf"></object>`,
			want: []MediaReference{{
				Index:     0,
				SourceURL: "https://remote/printout",
				Kind:      KindPrintout,
				FileName:  "p1_asset_0.pdf",
			}},
		},
		{
			name: "relative source skipped",
			html: `<img src="local.png"/>`,
			want: nil,
		},
		{
			name: "element without source skipped",
			html: `<img alt="nothing here"/>`,
			want: nil,
		},
		{
			name: "skipped element still occupies its index",
			html: `<img src="local.png"/><img src="https://remote/b.png"/>`,
			want: []MediaReference{{
				Index:     1,
				SourceURL: "https://remote/b.png",
				Kind:      KindInlineImage,
				FileName:  "p1_asset_1.png",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractMedia(parseDoc(t, tt.html), "p1")
			if len(got) != len(tt.want) {
				t.Fatalf("got %d references, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, want := range tt.want {
				if got[i].Index != want.Index ||
					got[i].SourceURL != want.SourceURL ||
					got[i].Kind != want.Kind ||
					got[i].AttachmentName != want.AttachmentName ||
					got[i].FileName != want.FileName {
					t.Errorf("reference %d = %+v, want %+v", i, got[i], want)
				}
			}
		})
	}
}

// fakeDownloader records requested downloads and writes placeholder bytes,
// failing for URLs listed in failing.
type fakeDownloader struct {
	calls   []string
	failing map[string]bool
}

func (d *fakeDownloader) DownloadFile(_ context.Context, url, savePath string) error {
	d.calls = append(d.calls, url)
	if d.failing[url] {
		return errors.New("boom")
	}
	return os.WriteFile(savePath, []byte("bytes-of-"+url), 0o644)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessRewritesInlineImage(t *testing.T) {
	assetsDir := filepath.Join(t.TempDir(), "assets")
	dl := &fakeDownloader{}
	p := NewProcessor(dl, discardLogger())

	html := `<html><body><img data-fullres-src="https://remote/full.png" src="https://remote/small.png"/></body></html>`
	res, err := p.Process(context.Background(), "p1", html, assetsDir)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !strings.Contains(res.HTML, `src="assets/p1_asset_0.png"`) {
		t.Errorf("image not repointed locally: %s", res.HTML)
	}
	if strings.Contains(res.HTML, "data-fullres-src") {
		t.Errorf("full resolution attribute should be removed: %s", res.HTML)
	}
	if strings.Contains(res.HTML, "https://remote/") {
		t.Errorf("remote reference left behind: %s", res.HTML)
	}
	if _, err := os.Stat(filepath.Join(assetsDir, "p1_asset_0.png")); err != nil {
		t.Errorf("asset file missing: %v", err)
	}
	if len(dl.calls) != 1 || dl.calls[0] != "https://remote/full.png" {
		t.Errorf("downloads = %v, want the full resolution URL", dl.calls)
	}
}

func TestProcessRewritesAttachmentAsLink(t *testing.T) {
	assetsDir := filepath.Join(t.TempDir(), "assets")
	p := NewProcessor(&fakeDownloader{}, discardLogger())

	html := `<html><body><object data="https://remote/file" data-attachment="report.pdf"></object></body></html>`
	res, err := p.Process(context.Background(), "p1", html, assetsDir)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !strings.Contains(res.HTML, `<a href="assets/p1_report.pdf">📎 附件: report.pdf</a>`) {
		t.Errorf("attachment not rewritten as labeled link: %s", res.HTML)
	}
	if strings.Contains(res.HTML, "<object") {
		t.Errorf("object element should be replaced: %s", res.HTML)
	}
	if _, err := os.Stat(filepath.Join(assetsDir, "p1_report.pdf")); err != nil {
		t.Errorf("attachment file missing: %v", err)
	}
}

func TestProcessRewritesPrintoutAsImage(t *testing.T) {
	assetsDir := filepath.Join(t.TempDir(), "assets")
	p := NewProcessor(&fakeDownloader{}, discardLogger())

	html := `<html><body><object data="https://remote/printout" type="application/pdf"></object></body></html>`
	res, err := p.Process(context.Background(), "p1", html, assetsDir)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !strings.Contains(res.HTML, `<img src="assets/p1_asset_0.pdf"`) {
		t.Errorf("printout not rewritten as image: %s", res.HTML)
	}
	if strings.Contains(res.HTML, "<object") {
		t.Errorf("object element should be replaced: %s", res.HTML)
	}
}

func TestProcessKeepsRemoteReferenceOnDownloadFailure(t *testing.T) {
	assetsDir := filepath.Join(t.TempDir(), "assets")
	dl := &fakeDownloader{failing: map[string]bool{"https://remote/broken.png": true}}
	p := NewProcessor(dl, discardLogger())

	html := `<html><body>` +
		`<img src="https://remote/broken.png"/>` +
		`<img src="https://remote/fine.png"/>` +
		`</body></html>`
	res, err := p.Process(context.Background(), "p1", html, assetsDir)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// The failed element keeps its remote URL so the next run repairs it.
	if !strings.Contains(res.HTML, `src="https://remote/broken.png"`) {
		t.Errorf("failed download should leave the element untouched: %s", res.HTML)
	}
	if !strings.Contains(res.HTML, `src="assets/p1_asset_1.png"`) {
		t.Errorf("successful download should still be rewritten: %s", res.HTML)
	}

	if len(res.Media) != 2 {
		t.Fatalf("got %d media results, want 2", len(res.Media))
	}
	if res.Media[0].Downloaded || res.Media[0].Err == nil {
		t.Errorf("first media should have failed: %+v", res.Media[0])
	}
	if !res.Media[1].Downloaded {
		t.Errorf("second media should have succeeded: %+v", res.Media[1])
	}
}

func TestProcessCreatesAssetsDirForMediaFreePages(t *testing.T) {
	assetsDir := filepath.Join(t.TempDir(), "assets")
	p := NewProcessor(&fakeDownloader{}, discardLogger())

	// Even without any media the directory must appear: the next run checks
	// for it when deciding whether the page is fully exported.
	if _, err := p.Process(context.Background(), "p1", "<html><body><p>text</p></body></html>", assetsDir); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	info, err := os.Stat(assetsDir)
	if err != nil || !info.IsDir() {
		t.Errorf("assets dir missing for media-free page: %v", err)
	}
}
