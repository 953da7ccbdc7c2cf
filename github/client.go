// Package github is a thin client for the two GitHub API surfaces this
// tool needs: the REST v3 resource API and the v4 GraphQL query API.
// Each operation performs exactly one round trip and returns the raw
// response; interpreting status codes and bodies is left to the caller.
package github

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/releasekit/release-retry/models"
)

// ErrNoUploadURL is returned when an upload is attempted against a
// release object that carries no upload_url.
var ErrNoUploadURL = errors.New("release has no upload_url")

// Client issues requests against one repository. Every call sleeps for
// Pause first: we are unlikely to hit official rate limits, but repeated
// polling can look like abuse.
type Client struct {
	APIURL string
	User   string
	Repo   string
	Token  string

	HTTPClient *http.Client
	Pause      time.Duration
}

// NewClient returns a Client for the given repository with the default
// one-second pacing delay.
func NewClient(apiURL, user, repo, token string, c *http.Client) *Client {
	return &Client{
		APIURL:     strings.TrimSuffix(apiURL, "/"),
		User:       user,
		Repo:       repo,
		Token:      token,
		HTTPClient: c,
		Pause:      time.Second,
	}
}

// CreateRelease creates a release. The server assigns id and upload_url;
// a 201 response carries the resulting release object.
func (c *Client) CreateRelease(release models.Release) (*Response, error) {
	body, err := json.Marshal(release)
	if err != nil {
		return nil, fmt.Errorf("encoding release: %w", err)
	}

	u := fmt.Sprintf("%s/repos/%s/%s/releases", c.APIURL, c.User, c.Repo)
	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating release request: %w", err)
	}
	c.setHeadersV3(req)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// GetReleaseByTag fetches the release for a tag. Used both for the
// initial lookup and for forced refreshes of a possibly-stale snapshot.
func (c *Client) GetReleaseByTag(tag string) (*Response, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", c.APIURL, c.User, c.Repo, tag)
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating release request: %w", err)
	}
	c.setHeadersV3(req)

	return c.do(req)
}

// GetAssetByID fetches a single asset.
func (c *Client) GetAssetByID(assetID string) (*Response, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/releases/assets/%s", c.APIURL, c.User, c.Repo, assetID)
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating asset request: %w", err)
	}
	c.setHeadersV3(req)

	return c.do(req)
}

// DeleteAsset deletes an asset. A 204 response signals success.
func (c *Client) DeleteAsset(assetID string) (*Response, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/releases/assets/%s", c.APIURL, c.User, c.Repo, assetID)
	req, err := http.NewRequest(http.MethodDelete, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating delete request: %w", err)
	}
	c.setHeadersV3(req)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// UploadAsset streams the file at path to the release's upload URL as an
// octet-stream POST. The release must carry an upload_url; the templated
// suffix ("{?name,label}") is stripped and the file's base name is passed
// as the name parameter.
func (c *Client) UploadAsset(path string, release models.Release) (*Response, error) {
	if release.UploadURL == "" {
		return nil, ErrNoUploadURL
	}

	uploadURL := release.UploadURL
	if i := strings.Index(uploadURL, "{"); i != -1 {
		uploadURL = uploadURL[:i]
	}
	uploadURL = fmt.Sprintf("%s?name=%s", uploadURL, url.QueryEscape(filepath.Base(path)))

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("sizing file %q: %w", path, err)
	}

	req, err := http.NewRequest(http.MethodPost, uploadURL, f)
	if err != nil {
		return nil, fmt.Errorf("creating upload request: %w", err)
	}
	c.setHeadersV3(req)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = info.Size()

	return c.do(req)
}

// FindAssetIDByName resolves the REST id of the asset with the given file
// name via the GraphQL API, which lists assets more reliably than the
// REST API when an asset is in a bad state. A query that returns zero
// nodes means the asset does not exist; that is reported through found,
// not an error.
func (c *Client) FindAssetIDByName(name string, release models.Release) (id string, found bool, err error) {
	if release.TagName == "" {
		return "", false, errors.New("release has no tag_name")
	}

	query := fmt.Sprintf(`
query {
  repository(owner:%q, name:%q) {
    release(tagName:%q) {
      releaseAssets(first: 1, name:%q) {
        nodes {
          id
        }
      }
    }
  }
}
`, c.User, c.Repo, release.TagName, name)

	resp, err := c.graphQL(query)
	if err != nil {
		return "", false, err
	}

	// Even when the query itself fails, the transport status should be OK.
	if resp.StatusCode != http.StatusOK {
		return "", false, &UnexpectedResponseError{Response: resp}
	}

	var decoded struct {
		Data *struct {
			Repository *struct {
				Release *struct {
					ReleaseAssets *struct {
						Nodes []struct {
							ID *string `json:"id"`
						} `json:"nodes"`
					} `json:"releaseAssets"`
				} `json:"release"`
			} `json:"repository"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", false, &UnexpectedResponseError{Response: resp}
	}

	if decoded.Data == nil || decoded.Data.Repository == nil ||
		decoded.Data.Repository.Release == nil ||
		decoded.Data.Repository.Release.ReleaseAssets == nil {
		return "", false, &UnexpectedResponseError{Response: resp}
	}

	nodes := decoded.Data.Repository.Release.ReleaseAssets.Nodes
	if len(nodes) == 0 {
		return "", false, nil
	}
	if nodes[0].ID == nil {
		return "", false, &UnexpectedResponseError{Response: resp}
	}

	id, err = AssetIDFromNodeID(*nodes[0].ID)
	if err != nil {
		return "", false, err
	}

	return id, true, nil
}

func (c *Client) graphQL(query string) (*Response, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.APIURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating graphql request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+c.Token)
	req.Header.Set("User-Agent", c.userAgent())

	return c.do(req)
}

// do sleeps the pacing delay, performs the round trip and fully reads the
// body so the Response can be logged and re-decoded freely.
func (c *Client) do(req *http.Request) (*Response, error) {
	time.Sleep(c.Pause)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) setHeadersV3(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github.v3.text-match+json")
	req.Header.Set("Authorization", "token "+c.Token)
	req.Header.Set("User-Agent", c.userAgent())
}

func (c *Client) userAgent() string {
	return c.User + " " + c.Repo
}
