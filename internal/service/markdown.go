package service

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()
)

// renderBodyHTML 把帖子正文按 Markdown 渲染为净化后的 HTML。
// 渲染失败时退回转义后的纯文本，绝不向客户端输出未净化的内容。
func renderBodyHTML(body string) string {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(body), &buf); err != nil {
		return sanitizer.Sanitize(body)
	}
	return strings.TrimSpace(string(sanitizer.SanitizeBytes(buf.Bytes())))
}
