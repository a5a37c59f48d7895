// Package security はリモート取得元のSSRF対策と投稿内容のサニタイズを提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// schemes は取得元URLに許可するスキーム。
var schemes = []string{"http", "https"}

// blockedPrefixes は取得元URLとして拒否するアドレス範囲。
// 静的検証用で、DNS解決後のアドレスはsafeurlのDialerが検証する。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // クラウドのメタデータIPを含む
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// SourceGuard はリモートのアイデア取得元へのリクエストを安全に行うための検証器。
type SourceGuard struct{}

// NewSourceGuard はSourceGuardを生成する。
func NewSourceGuard() *SourceGuard {
	return &SourceGuard{}
}

// Client はプライベートアドレス・ループバック・リンクローカルへの接続を
// Dialerレベルで拒否するHTTPクライアントを返す。DNS再バインディングにも有効。
func (g *SourceGuard) Client(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(schemes...).
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// Validate は取得元URLをDNS解決なしで検証する。
// 起動時の設定チェックに使用する。
func (g *SourceGuard) Validate(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range schemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("disallowed scheme: %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		// ホスト名はDialer側で検証する
		return nil
	}
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return fmt.Errorf("blocked IP address: %s", addr)
		}
	}
	return nil
}
