// Package content implements the supplemental browser_read_content tool:
// read-only article extraction off the current page, running a
// readability → sanitize → markdown pipeline. Unlike the mutating action
// tools it takes no pre/post snapshot and never touches the ref registry.
package content

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"

	"github.com/use-agent/browser-stream/internal/browsererr"
	"github.com/use-agent/browser-stream/internal/cdp"
)

// residueSelectors are CSS selectors for boilerplate fragments that
// readability's main-content extraction sometimes leaves behind inside
// the retained article body (nested nav blocks, ad slots, share bars).
var residueSelectors = []string{
	"nav", "aside", ".ad", ".ads", ".advertisement", ".social-share",
	".share-buttons", ".related-posts", ".comments", "[class*=\"sidebar\"]",
}

// minTextContentLength mirrors the upstream pipeline's threshold for
// treating a readability extraction as real content rather than noise.
const minTextContentLength = 50

// Result is the browser_read_content response shape.
type Result struct {
	OK       bool     `json:"ok"`
	Title    string   `json:"title"`
	Markdown string   `json:"markdown"`
	Errors   []string `json:"errors,omitempty"`
	TimingMS int64    `json:"timingMs"`
}

// Reader runs the read-content pipeline against a live page.
type Reader struct {
	conv *converter.Converter
	san  *bluemonday.Policy
}

// New builds a Reader with a reusable converter and sanitizer policy,
// both goroutine-safe and safe to construct once at startup.
func New() *Reader {
	return &Reader{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		san: bluemonday.UGCPolicy(),
	}
}

// Read grabs the current page's outer HTML over ch, extracts the main
// article with go-readability, sanitizes it, and converts it to Markdown.
// It never calls anything that mutates page state.
func (r *Reader) Read(ctx context.Context, ch cdp.Channel) Result {
	start := time.Now()

	html, pageURL, err := fetchOuterHTML(ctx, ch)
	if err != nil {
		slog.Warn("read_content failed", "error", err)
		return Result{
			OK:       false,
			Errors:   []string{browsererr.New(browsererr.CodeContentExtractionFailed, "failed to read page HTML", err).Error()},
			TimingMS: time.Since(start).Milliseconds(),
		}
	}

	var errs []string

	article, ok := r.extract(normalizeHTML(html), pageURL)
	if !ok {
		errs = append(errs, "readability extraction failed or below minimum content length, using raw HTML")
	}

	pruned := stripResidue(article.Content)
	clean := r.san.Sanitize(pruned)

	md, err := r.conv.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil {
		slog.Warn("read_content failed", "error", err)
		return Result{
			OK:       false,
			Title:    article.Title,
			Errors:   append(errs, browsererr.New(browsererr.CodeContentExtractionFailed, "markdown conversion failed", err).Error()),
			TimingMS: time.Since(start).Milliseconds(),
		}
	}

	if len(errs) > 0 {
		slog.Warn("read_content completed with warnings", "warnings", errs, "timingMs", time.Since(start).Milliseconds())
	} else {
		slog.Info("read_content completed", "timingMs", time.Since(start).Milliseconds())
	}

	return Result{
		OK:       true,
		Title:    article.Title,
		Markdown: md,
		Errors:   errs,
		TimingMS: time.Since(start).Milliseconds(),
	}
}

// extract runs go-readability, falling back to the raw HTML wrapped in an
// Article when extraction fails or yields too little text, exactly the
// fallback contract the upstream pipeline established.
func (r *Reader) extract(html, pageURL string) (readability.Article, bool) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		slog.Warn("readability: invalid source URL, falling back to raw HTML",
			"url", pageURL, "error", err,
		)
		return fallbackArticle(html), false
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		slog.Warn("readability: extraction failed, falling back to raw HTML",
			"url", pageURL, "error", err,
		)
		return fallbackArticle(html), false
	}

	if len(strings.TrimSpace(article.TextContent)) < minTextContentLength {
		slog.Warn("readability: extracted content too short, falling back to raw HTML",
			"url", pageURL, "length", len(article.TextContent),
		)
		return fallbackArticle(html), false
	}

	return article, true
}

func fallbackArticle(html string) readability.Article {
	return readability.Article{Content: html, TextContent: html}
}

// normalizeHTML re-serializes rawHTML through a token-level scan that
// drops script/style/noscript subtrees and HTML comments before
// readability ever sees the document, the same tag-skipping shape the
// upstream pipeline uses for its lightweight text scans. A tokenizer
// error leaves rawHTML untouched rather than failing extraction outright.
func normalizeHTML(rawHTML string) string {
	tokenizer := nethtml.NewTokenizer(strings.NewReader(rawHTML))
	var out strings.Builder
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case nethtml.ErrorToken:
			if skipDepth > 0 {
				return rawHTML
			}
			return out.String()
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "script" || tag == "style" || tag == "noscript" {
				if tt == nethtml.StartTagToken {
					skipDepth++
				}
				continue
			}
			if skipDepth == 0 {
				out.Write(tokenizer.Raw())
			}
		case nethtml.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "script" || tag == "style" || tag == "noscript" {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth == 0 {
				out.Write(tokenizer.Raw())
			}
		case nethtml.CommentToken:
			continue
		default:
			if skipDepth == 0 {
				out.Write(tokenizer.Raw())
			}
		}
	}
}

// stripResidue removes boilerplate fragments (residueSelectors) that
// survive inside readability's extracted article body, mirroring the
// upstream pipeline's selector-based exclude pass. Parse failures
// return contentHTML unchanged.
func stripResidue(contentHTML string) string {
	if strings.TrimSpace(contentHTML) == "" {
		return contentHTML
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contentHTML))
	if err != nil {
		return contentHTML
	}
	for _, selector := range residueSelectors {
		doc.Find(selector).Remove()
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return contentHTML
	}
	result, err := body.Html()
	if err != nil {
		return contentHTML
	}
	return result
}

// fetchOuterHTML resolves the current page's main frame document and
// returns its outer HTML alongside the frame's URL (needed to resolve
// relative links during Markdown conversion).
func fetchOuterHTML(ctx context.Context, ch cdp.Channel) (string, string, error) {
	var frameTree cdp.PageGetFrameTreeResult
	if err := ch.Send(ctx, "Page.getFrameTree", nil, &frameTree); err != nil {
		return "", "", err
	}

	var doc cdp.DOMGetDocumentResult
	if err := ch.Send(ctx, "DOM.getDocument", cdp.DOMGetDocumentParams{Depth: 1}, &doc); err != nil {
		return "", "", err
	}

	var outer cdp.DOMGetOuterHTMLResult
	params := cdp.DOMGetOuterHTMLParams{NodeID: doc.Root.NodeID}
	if err := ch.Send(ctx, "DOM.getOuterHTML", params, &outer); err != nil {
		return "", "", err
	}

	return outer.OuterHTML, frameTree.FrameTree.Frame.URL, nil
}
