package powerbi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ohlcvsync/internal/logger"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultAuthority = "https://login.microsoftonline.com"
	defaultAPIBase   = "https://api.powerbi.com/v1.0/myorg"
	defaultScope     = "https://analysis.windows.net/powerbi/api/.default"
)

// ErrNotConfigured 表示未配置刷新所需的凭证或数据集。
var ErrNotConfigured = errors.New("powerbi: refresh not configured")

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	GroupID      string
	DatasetID    string
	Authority    string
	APIBase      string
	Scope        string
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	out.Authority = strings.TrimRight(strings.TrimSpace(out.Authority), "/")
	if out.Authority == "" {
		out.Authority = defaultAuthority
	}
	out.APIBase = strings.TrimRight(strings.TrimSpace(out.APIBase), "/")
	if out.APIBase == "" {
		out.APIBase = defaultAPIBase
	}
	if strings.TrimSpace(out.Scope) == "" {
		out.Scope = defaultScope
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	return out
}

// Ready 返回凭证与数据集是否齐全。
func (c Config) Ready() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != "" && c.GroupID != "" && c.DatasetID != ""
}

// Client 使用 client-credentials 换取 token，再触发数据集刷新。
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	if !cfg.Ready() {
		return nil, ErrNotConfigured
	}
	final := cfg.withDefaults()
	return &Client{cfg: final, http: &http.Client{Timeout: final.Timeout}}, nil
}

func (c *Client) tokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.cfg.Authority, url.PathEscape(c.cfg.TenantID))
}

func (c *Client) refreshURL() string {
	return fmt.Sprintf("%s/groups/%s/datasets/%s/refreshes", c.cfg.APIBase,
		url.PathEscape(c.cfg.GroupID), url.PathEscape(c.cfg.DatasetID))
}

// TriggerRefresh 请求刷新数据集；服务端返回 202 视为成功。
func (c *Client) TriggerRefresh(ctx context.Context) error {
	cc := clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.tokenURL(),
		Scopes:       []string{c.cfg.Scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	httpClient := cc.Client(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL(), strings.NewReader(`{"notifyOption":"NoNotification"}`))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("powerbi refresh: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusAccepted {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = gjson.GetBytes(body, "error.code").String()
		}
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return fmt.Errorf("powerbi refresh: status %d: %s", resp.StatusCode, msg)
	}
	logger.Infow("powerbi refresh accepted", "group", c.cfg.GroupID, "dataset", c.cfg.DatasetID,
		"request_id", resp.Header.Get("RequestId"))
	return nil
}
