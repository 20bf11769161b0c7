package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rota27/refinado/internal/logger"
)

const (
	DefaultLoginBase = "https://login.microsoftonline.com"
	DefaultGraphBase = "https://graph.microsoft.com/v1.0"

	// WorkbookMIME is declared on every content upload.
	WorkbookMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	graphScope     = "https://graph.microsoft.com/.default"
	defaultTimeout = 25 * time.Second

	// Tokens are renewed this long before their actual expiry.
	tokenExpiryMargin = 2 * time.Minute
)

// Config addresses the one workbook this deployment edits.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// SiteDomain names the SharePoint site (e.g. "empresa.sharepoint.com"),
	// Library the document library inside it, Folder/File the workbook path.
	SiteDomain string
	Library    string
	Folder     string
	File       string

	// LoginBase and GraphBase are overridable so tests can point the client
	// at a local fake.
	LoginBase string
	GraphBase string

	Timeout time.Duration
}

// Metadata is the lightweight item state fetched without content.
type Metadata struct {
	ETag         string `json:"eTag"`
	LastModified string `json:"lastModifiedDateTime"`
}

// Client talks to the document-hosting API. All remote state it learns is
// kept in the injected DocumentCache.
type Client struct {
	cfg    Config
	cache  *DocumentCache
	httpc  *http.Client
	log    *logger.Logger
	policy Policy
}

func NewClient(cfg Config, cache *DocumentCache, appLogger *logger.Logger) *Client {
	if cfg.LoginBase == "" {
		cfg.LoginBase = DefaultLoginBase
	}
	if cfg.GraphBase == "" {
		cfg.GraphBase = DefaultGraphBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		cache:  cache,
		httpc:  &http.Client{Timeout: cfg.Timeout},
		log:    appLogger,
		policy: DefaultPolicy(),
	}
}

// SetPolicy swaps the backoff policy used by the request helper.
func (c *Client) SetPolicy(p Policy) { c.policy = p }

// Cache exposes the injected cache (the admin deep reset clears it).
func (c *Client) Cache() *DocumentCache { return c.cache }

// do issues one HTTP call with bounded retries on transient failures. After
// the attempt budget is spent the last transient error is returned as-is so
// callers keep the classification.
func (c *Client) do(method, rawURL, resource string, header http.Header, body []byte) ([]byte, error) {
	const component = "GraphHTTP"

	attempts := c.policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := c.policy.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequest(method, rawURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", resource, err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = &TransientError{Err: err}
			c.log.Warn(component, "Transport failure: resource=%s attempt=%d/%d error=%v", resource, attempt, attempts, err)
			if attempt < attempts {
				sleep(c.policy.Delay(attempt))
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				return nil, fmt.Errorf("read response for %s: %w", resource, readErr)
			}
			return data, nil
		case retryableStatus[resp.StatusCode]:
			lastErr = &TransientError{Status: resp.StatusCode}
			c.log.Warn(component, "Retryable status: resource=%s status=%d attempt=%d/%d", resource, resp.StatusCode, attempt, attempts)
			if attempt < attempts {
				sleep(c.policy.Delay(attempt))
			}
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &AuthError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(data))}
		case resp.StatusCode == http.StatusNotFound:
			return nil, &NotFoundError{Resource: resource}
		default:
			return nil, fmt.Errorf("unexpected status %d for %s: %s", resp.StatusCode, resource, strings.TrimSpace(string(data)))
		}
	}
	return nil, lastErr
}

// AcquireToken returns a bearer token from the client-credentials exchange,
// served from cache while it is inside the expiry margin. Failures are fatal
// for the caller: a rejected credential never improves on retry.
func (c *Client) AcquireToken() (string, error) {
	const component = "GraphAuth"

	if tok := c.cache.Token(time.Now()); tok != "" {
		return tok, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("scope", graphScope)

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.cfg.LoginBase, c.cfg.TenantID)
	header := http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}}

	data, err := c.do(http.MethodPost, endpoint, "token endpoint", header, []byte(form.Encode()))
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) || IsTransient(err) {
			return "", err
		}
		return "", &AuthError{Detail: err.Error()}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.AccessToken == "" {
		return "", &AuthError{Detail: "token response missing access_token"}
	}

	expiry := time.Now().Add(time.Duration(payload.ExpiresIn)*time.Second - tokenExpiryMargin)
	c.cache.SetToken(payload.AccessToken, expiry)
	c.log.Debug(component, "Token acquired: expiresIn=%ds", payload.ExpiresIn)
	return payload.AccessToken, nil
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

// filePath returns the library-relative workbook path with each segment
// escaped but the separators kept.
func (c *Client) filePath() string {
	segments := []string{}
	for _, s := range strings.Split(c.cfg.Folder, "/") {
		if s != "" {
			segments = append(segments, url.PathEscape(s))
		}
	}
	segments = append(segments, url.PathEscape(c.cfg.File))
	return strings.Join(segments, "/")
}

// resolveIDs walks site -> drive -> item, caching each identifier. The IDs
// are stable for the lifetime of the deployment, so once resolved they are
// never re-fetched.
func (c *Client) resolveIDs(token string) (siteID, driveID, itemID string, err error) {
	const component = "GraphResolve"

	siteID, driveID, itemID = c.cache.IDs()

	if siteID == "" {
		data, err := c.do(http.MethodGet, fmt.Sprintf("%s/sites/%s", c.cfg.GraphBase, c.cfg.SiteDomain),
			"site "+c.cfg.SiteDomain, bearer(token), nil)
		if err != nil {
			return "", "", "", err
		}
		var site struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &site); err != nil || site.ID == "" {
			return "", "", "", &NotFoundError{Resource: "site " + c.cfg.SiteDomain}
		}
		siteID = site.ID
		c.cache.SetSiteID(siteID)
		c.log.Debug(component, "Resolved site: id=%s", siteID)
	}

	if driveID == "" {
		data, err := c.do(http.MethodGet, fmt.Sprintf("%s/sites/%s/drives", c.cfg.GraphBase, siteID),
			"drives of "+c.cfg.SiteDomain, bearer(token), nil)
		if err != nil {
			return "", "", "", err
		}
		var drives struct {
			Value []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"value"`
		}
		if err := json.Unmarshal(data, &drives); err != nil {
			return "", "", "", fmt.Errorf("decode drive listing: %w", err)
		}
		for _, d := range drives.Value {
			if d.Name == c.cfg.Library {
				driveID = d.ID
				break
			}
		}
		if driveID == "" {
			return "", "", "", &NotFoundError{Resource: "library " + c.cfg.Library}
		}
		c.cache.SetDriveID(driveID)
		c.log.Debug(component, "Resolved drive: id=%s library=%s", driveID, c.cfg.Library)
	}

	if itemID == "" {
		path := c.filePath()
		data, err := c.do(http.MethodGet, fmt.Sprintf("%s/sites/%s/drives/%s/root:/%s", c.cfg.GraphBase, siteID, driveID, path),
			"file "+c.cfg.Folder+"/"+c.cfg.File, bearer(token), nil)
		if err != nil {
			return "", "", "", err
		}
		var item struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &item); err != nil || item.ID == "" {
			return "", "", "", &NotFoundError{Resource: "file " + c.cfg.Folder + "/" + c.cfg.File}
		}
		itemID = item.ID
		c.cache.SetItemID(itemID)
		c.log.Debug(component, "Resolved item: id=%s", itemID)
	}

	return siteID, driveID, itemID, nil
}

func (c *Client) itemURL(siteID, driveID, itemID, suffix string) string {
	return fmt.Sprintf("%s/sites/%s/drives/%s/items/%s%s", c.cfg.GraphBase, siteID, driveID, itemID, suffix)
}

func (c *Client) fetchMetadata(token, siteID, driveID, itemID string) (Metadata, error) {
	data, err := c.do(http.MethodGet, c.itemURL(siteID, driveID, itemID, "?$select=eTag,lastModifiedDateTime"),
		"workbook metadata", bearer(token), nil)
	if err != nil {
		return Metadata{}, err
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("decode workbook metadata: %w", err)
	}
	return md, nil
}

// FetchMetadata returns the current change-tag and modified time without
// downloading content.
func (c *Client) FetchMetadata() (Metadata, error) {
	token, err := c.AcquireToken()
	if err != nil {
		return Metadata{}, err
	}
	siteID, driveID, itemID, err := c.resolveIDs(token)
	if err != nil {
		return Metadata{}, err
	}
	return c.fetchMetadata(token, siteID, driveID, itemID)
}

func (c *Client) download(token, siteID, driveID, itemID string) ([]byte, error) {
	return c.do(http.MethodGet, c.itemURL(siteID, driveID, itemID, "/content"), "workbook content", bearer(token), nil)
}

// FetchBytes returns the workbook's current bytes.
//
// With force or a nonzero version token the content is unconditionally
// re-downloaded (the caller just wrote, or explicitly wants fresh state).
// Otherwise only the change-tag is queried; when it matches the cached entry
// the cached bytes are returned without a content download.
func (c *Client) FetchBytes(versionToken int64, force bool) ([]byte, error) {
	const component = "GraphFetch"

	token, err := c.AcquireToken()
	if err != nil {
		return nil, err
	}
	siteID, driveID, itemID, err := c.resolveIDs(token)
	if err != nil {
		return nil, err
	}

	if force || versionToken != 0 {
		data, err := c.download(token, siteID, driveID, itemID)
		if err != nil {
			return nil, err
		}
		md, err := c.fetchMetadata(token, siteID, driveID, itemID)
		if err != nil {
			return nil, err
		}
		c.cache.SetPayload(data, md.ETag, md.LastModified)
		c.log.Info(component, "Downloaded workbook (forced): size=%d etag=%s", len(data), md.ETag)
		return data, nil
	}

	md, err := c.fetchMetadata(token, siteID, driveID, itemID)
	if err != nil {
		return nil, err
	}
	if cached, etag := c.cache.Payload(); cached != nil && etag == md.ETag {
		c.log.Debug(component, "Cache hit: etag=%s size=%d", etag, len(cached))
		return cached, nil
	}

	data, err := c.download(token, siteID, driveID, itemID)
	if err != nil {
		return nil, err
	}
	c.cache.SetPayload(data, md.ETag, md.LastModified)
	c.log.Info(component, "Downloaded workbook: size=%d etag=%s", len(data), md.ETag)
	return data, nil
}

// Upload replaces the workbook content wholesale and refreshes the byte
// cache with the just-uploaded payload, avoiding a re-download on the next
// read. There is no change-tag precondition: the last writer to finish a
// full fetch-merge-upload cycle wins.
func (c *Client) Upload(payload []byte) error {
	const component = "GraphUpload"

	token, err := c.AcquireToken()
	if err != nil {
		return err
	}
	siteID, driveID, itemID, err := c.resolveIDs(token)
	if err != nil {
		return err
	}

	header := bearer(token)
	header.Set("Content-Type", WorkbookMIME)
	if _, err := c.do(http.MethodPut, c.itemURL(siteID, driveID, itemID, "/content"), "workbook upload", header, payload); err != nil {
		return err
	}

	md, err := c.fetchMetadata(token, siteID, driveID, itemID)
	if err != nil {
		// The upload itself succeeded; losing the fresh tag only costs an
		// extra download later.
		c.log.Warn(component, "Uploaded but metadata refresh failed: error=%v", err)
		c.cache.SetPayload(payload, "", "")
		return nil
	}
	c.cache.SetPayload(payload, md.ETag, md.LastModified)
	c.log.Info(component, "Uploaded workbook: size=%d etag=%s", len(payload), md.ETag)
	return nil
}
