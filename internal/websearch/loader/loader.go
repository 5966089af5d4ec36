// Package loader 抓取网页并提取可读正文，用于搜索结果的内容增强
package loader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
)

// DefaultMaxBodyBytes 响应体上限，超出部分截断
const DefaultMaxBodyBytes = 5 << 20

// Loader 内容加载器。失败时返回 ("", false)，不返回错误
type Loader interface {
	Load(ctx context.Context, url string) (string, bool)
}

// Config 加载器配置
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// HTTPLoader 基于 HTTP GET 的内容加载器
type HTTPLoader struct {
	client *http.Client
	config Config
	logger *logger.Logger
}

// NewHTTPLoader 创建 HTTP 加载器
func NewHTTPLoader(cfg Config, log *logger.Logger) *HTTPLoader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; AI-Search-Backend/1.0)"
	}
	if log == nil {
		log = logger.L()
	}

	return &HTTPLoader{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.Named("loader"),
	}
}

// Load 加载 URL 内容
func (l *HTTPLoader) Load(ctx context.Context, url string) (string, bool) {
	text, err := l.load(ctx, url)
	if err != nil {
		l.logger.WithContext(ctx).Debug("load content failed", zap.String("url", url), zap.Error(err))
		return "", false
	}
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func (l *HTTPLoader) load(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	// 检查状态码
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error: %s", resp.Status)
	}

	// 超过上限的部分直接丢弃
	body, err := io.ReadAll(io.LimitReader(resp.Body, l.config.MaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("invalid content type %q: %w", contentType, err)
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return ExtractText(string(body))
	case isTextual(mediaType):
		return normalizeParagraphs(string(body)), nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func isTextual(mediaType string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/rss+xml", "application/atom+xml":
		return true
	}
	return false
}

// skipElements 不输出正文的元素
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Template: true,
}

// blockElements 前后以空行分段的元素
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Table: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Blockquote: true, atom.Br: true, atom.Hr: true,
	atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Figcaption: true, atom.Aside: true,
}

// ExtractText 从 HTML 提取正文，段落之间以空行分隔
func ExtractText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var text strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
			text.WriteString(" ")
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			text.WriteString("\n\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
		if block {
			text.WriteString("\n\n")
		}
	}
	f(doc)

	return normalizeParagraphs(text.String()), nil
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// normalizeParagraphs 合并段内空白并移除空段落
func normalizeParagraphs(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var paragraphs []string
	for _, block := range paragraphBreak.Split(s, -1) {
		if p := strings.Join(strings.Fields(block), " "); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}
