package graph

import (
	"sync"
	"time"
)

// DocumentCache holds everything the client learns about the remote workbook
// during the life of the process: the bearer token, the resolved site/drive/
// item identifiers and the last downloaded byte payload keyed by its eTag.
//
// The deployment runs a single process with one active session, so one cache
// instance is shared by construction rather than through package globals.
type DocumentCache struct {
	mu sync.Mutex

	token       string
	tokenExpiry time.Time

	siteID  string
	driveID string
	itemID  string

	etag         string
	lastModified string
	payload      []byte
}

func NewDocumentCache() *DocumentCache {
	return &DocumentCache{}
}

// Token returns the cached bearer token if it is still inside the expiry
// margin, otherwise the empty string.
func (dc *DocumentCache) Token(now time.Time) string {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.token == "" || !now.Before(dc.tokenExpiry) {
		return ""
	}
	return dc.token
}

func (dc *DocumentCache) SetToken(token string, expiry time.Time) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.token = token
	dc.tokenExpiry = expiry
}

// IDs returns the resolved identifiers; empty strings mean "not resolved yet".
func (dc *DocumentCache) IDs() (siteID, driveID, itemID string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.siteID, dc.driveID, dc.itemID
}

func (dc *DocumentCache) SetSiteID(id string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.siteID = id
}

func (dc *DocumentCache) SetDriveID(id string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.driveID = id
}

func (dc *DocumentCache) SetItemID(id string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.itemID = id
}

// Payload returns the cached workbook bytes and the eTag they were
// downloaded under. The returned slice must not be mutated by callers.
func (dc *DocumentCache) Payload() (payload []byte, etag string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.payload, dc.etag
}

func (dc *DocumentCache) SetPayload(payload []byte, etag, lastModified string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.payload = payload
	dc.etag = etag
	dc.lastModified = lastModified
}

// LastModified returns the remote timestamp recorded with the cached bytes.
func (dc *DocumentCache) LastModified() string {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.lastModified
}

// Clear drops every cached value. Used by the admin deep reset.
func (dc *DocumentCache) Clear() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.token = ""
	dc.tokenExpiry = time.Time{}
	dc.siteID = ""
	dc.driveID = ""
	dc.itemID = ""
	dc.etag = ""
	dc.lastModified = ""
	dc.payload = nil
}
