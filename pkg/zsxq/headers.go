package zsxq

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// userAgents is the rotation pool. One is drawn fresh for every attempt,
// retries included.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:132.0) Gecko/20100101 Firefox/132.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:132.0) Gecko/20100101 Firefox/132.0",
}

var acceptLanguages = []string{
	"zh-CN,zh;q=0.9,en;q=0.8",
	"zh-CN,zh;q=0.9,en;q=0.8,zh-TW;q=0.7",
	"zh-CN,zh;q=0.9,en-US;q=0.8,en;q=0.7",
	"zh-CN,zh;q=0.8,zh-TW;q=0.7,zh-HK;q=0.5,en-US;q=0.3,en;q=0.2",
}

var platforms = []string{`"Windows"`, `"macOS"`, `"Linux"`}

func secChUAFor(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Chrome/131.0.0.0"):
		return `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`
	case strings.Contains(userAgent, "Chrome/130.0.0.0"):
		return `"Google Chrome";v="130", "Chromium";v="130", "Not?A_Brand";v="99"`
	case strings.Contains(userAgent, "Chrome/129.0.0.0"):
		return `"Google Chrome";v="129", "Not=A?Brand";v="8", "Chromium";v="129"`
	case strings.Contains(userAgent, "Chrome"):
		return `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`
	default:
		return `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`
	}
}

// stealthHeaders builds a fresh randomized client-identity header set. This
// is cosmetic camouflage, not a correctness concern, but it is regenerated
// for every attempt.
func (c *Client) stealthHeaders() map[string]string {
	ua := userAgents[rand.Intn(len(userAgents))]

	headers := map[string]string{
		"Accept":             "application/json, text/plain, */*",
		"Accept-Language":    acceptLanguages[rand.Intn(len(acceptLanguages))],
		"Cache-Control":      "no-cache",
		"Cookie":             c.cookie,
		"Origin":             "https://wx.zsxq.com",
		"Pragma":             "no-cache",
		"Referer":            fmt.Sprintf("https://wx.zsxq.com/dweb2/index/group/%s", c.groupID),
		"Sec-Ch-Ua":          secChUAFor(ua),
		"Sec-Ch-Ua-Mobile":   "?0",
		"Sec-Ch-Ua-Platform": platforms[rand.Intn(len(platforms))],
		"Sec-Fetch-Dest":     "empty",
		"Sec-Fetch-Mode":     "cors",
		"Sec-Fetch-Site":     "same-site",
		"User-Agent":         ua,
	}

	optional := map[string]string{
		"DNT":                       "1",
		"Sec-GPC":                   "1",
		"Upgrade-Insecure-Requests": "1",
		"X-Requested-With":          "XMLHttpRequest",
	}
	for key, value := range optional {
		if rand.Float64() > 0.5 {
			headers[key] = value
		}
	}

	if rand.Float64() > 0.7 {
		headers["X-Timestamp"] = strconv.FormatInt(time.Now().Unix()+int64(rand.Intn(61)-30), 10)
	}
	if rand.Float64() > 0.6 {
		headers["X-Request-Id"] = fmt.Sprintf("req-%012d", rand.Int63n(1e12))
	}

	return headers
}
