package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_TimeoutAndTransport(t *testing.T) {
	g := NewSourceGuard()
	client := g.Client(5 * time.Second)

	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("safeurlのTransportが設定されるべき")
	}
}

// httptestサーバーは127.0.0.1で起動するため、接続は拒否される。
func TestClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSourceGuard().Client(5 * time.Second)
	resp, err := client.Get(ts.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("ループバックへの接続はエラーになるべき")
	}
}

func TestValidate(t *testing.T) {
	g := NewSourceGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"公開URL", "https://ideas.example.com/api/ideas", false},
		{"公開URL（http）", "http://example.org/feed.xml", false},
		{"空", "", true},
		{"スキームなし", "not-a-url", true},
		{"ftp", "ftp://example.com/ideas", true},
		{"file", "file:///etc/passwd", true},
		{"プライベートIP", "http://10.0.0.1/ideas", true},
		{"プライベートIP 172", "http://172.20.1.1/ideas", true},
		{"プライベートIP 192", "http://192.168.1.100/ideas", true},
		{"ループバック", "http://127.0.0.1/ideas", true},
		{"localhost", "http://LOCALHOST/ideas", true},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data/", true},
		{"IPv6ループバック", "http://[::1]/ideas", true},
		{"IPv4射影IPv6", "http://[::ffff:127.0.0.1]/ideas", true},
		{"ゼロアドレス", "http://0.0.0.0/ideas", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Validate(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
