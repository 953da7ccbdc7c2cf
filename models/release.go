package models

import "encoding/json"

// Release is a GitHub release. The create-release request and the
// get-release response share this shape, so every field is omitempty and
// unset fields stay out of the request body.
type Release struct {
	UploadURL       string      `json:"upload_url,omitempty"`
	ID              json.Number `json:"id,omitempty"`
	TagName         string      `json:"tag_name,omitempty"`
	TargetCommitish string      `json:"target_commitish,omitempty"`
	Name            string      `json:"name,omitempty"`
	Body            string      `json:"body,omitempty"`
	Draft           bool        `json:"draft,omitempty"`
	Prerelease      bool        `json:"prerelease,omitempty"`
	Assets          []Asset     `json:"assets,omitempty"`
}

// Asset is one file attached to a release. The REST API returns ids as
// numbers while the GraphQL node-id decoding yields decimal strings, so
// ID is a json.Number to let the two compare.
type Asset struct {
	URL                string      `json:"url,omitempty"`
	BrowserDownloadURL string      `json:"browser_download_url,omitempty"`
	ID                 json.Number `json:"id,omitempty"`
	Name               string      `json:"name,omitempty"`
	Label              string      `json:"label,omitempty"`
	State              string      `json:"state,omitempty"`
	ContentType        string      `json:"content_type,omitempty"`
	Size               int64       `json:"size,omitempty"`
}

// Complete reports whether the asset represents a finished upload of a
// local file with the given size. Any other state/size combination means
// the asset is bad and must be deleted and re-uploaded.
func (a Asset) Complete(size int64) bool {
	return a.State == "uploaded" && a.Size == size
}

// ResourceError is one entry of a GitHub structured client error.
type ResourceError struct {
	Resource string `json:"resource,omitempty"`
	Field    string `json:"field,omitempty"`
	Code     string `json:"code,omitempty"`
}

// ClientError is the body GitHub returns for 4xx responses.
type ClientError struct {
	Message string          `json:"message,omitempty"`
	Errors  []ResourceError `json:"errors,omitempty"`
}

// AlreadyExists reports whether the error says the release for this tag
// has already been created, which happens when concurrent runs race on
// the same tag and is recoverable by fetching the existing release.
func (e ClientError) AlreadyExists() bool {
	if len(e.Errors) == 0 {
		return false
	}
	return e.Errors[0].Resource == "Release" && e.Errors[0].Code == "already_exists"
}
