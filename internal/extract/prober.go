package extract

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"

	"github.com/mioym/homeval/internal/proxy"
	"github.com/mioym/homeval/internal/utils"
)

// Prober 纯HTTP探测器
// 浏览器通道不可用时的降级路径: 经代理直接抓取结果页HTML并走提取链
// 只对不强制执行JS渲染的厂商有效
type Prober struct {
	chain    *Chain
	headers  http.Header
	timeout  time.Duration
	endpoint *proxy.Endpoint // nil表示直连
}

// NewProber 创建HTTP探测器
func NewProber(chain *Chain, headers http.Header, timeout time.Duration, ep *proxy.Endpoint) *Prober {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prober{chain: chain, headers: headers, timeout: timeout, endpoint: ep}
}

// Probe 抓取目标URL并提取估值
func (p *Prober) Probe(target string) (Fields, error) {
	c := colly.NewCollector()
	c.SetRequestTimeout(p.timeout)
	c.WithTransport(&http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
		DisableKeepAlives: true,
	})

	if p.endpoint != nil {
		if err := c.SetProxy(p.endpoint.URL().String()); err != nil {
			return Fields{}, fmt.Errorf("设置探测代理失败: %w", err)
		}
		utils.Debugf("HTTP探测经由代理: %s", p.endpoint.Label)
	}

	var (
		body    []byte
		reqErr  error
		status  int
		gotResp bool
	)

	c.OnRequest(func(r *colly.Request) {
		for name, values := range p.headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		gotResp = true
		status = r.StatusCode
		decoded, err := decompressBody(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			utils.Warnf("探测响应解压失败 (编码=%s): %v", r.Headers.Get("Content-Encoding"), err)
			decoded = r.Body
		}
		body = decoded
	})

	c.OnError(func(r *colly.Response, err error) {
		reqErr = err
	})

	if err := c.Visit(target); err != nil {
		return Fields{}, fmt.Errorf("HTTP探测请求失败: %w", err)
	}
	c.Wait()

	if reqErr != nil {
		return Fields{}, fmt.Errorf("HTTP探测失败: %w", reqErr)
	}
	if !gotResp {
		return Fields{}, fmt.Errorf("HTTP探测无响应")
	}
	if status >= 400 {
		return Fields{}, fmt.Errorf("HTTP探测异常状态: %d", status)
	}

	return p.chain.Run(string(body))
}

// decompressBody 根据Content-Encoding解压响应体
// 支持 gzip, deflate, br (Brotli)
func decompressBody(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(reader)

	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))

	case "":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
