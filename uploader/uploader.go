// Package uploader drives a release and its assets to a converged state:
// the release exists for the tag and every file is attached with the
// correct size and an "uploaded" state, no matter how many attempts that
// takes within the retry budget.
package uploader

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/releasekit/release-retry/github"
	"github.com/releasekit/release-retry/models"
)

const initialBackoff = 2 * time.Second

// ErrRetryLimit is returned when creating the release or uploading a file
// could not converge within the configured number of attempts. It aborts
// the whole run; re-invoking the tool is safe because every operation is
// idempotent.
var ErrRetryLimit = errors.New("reached retry limit")

// MissingFilesError is returned when one or more input paths do not exist
// as regular files. It lists every missing path, not just the first.
type MissingFilesError struct {
	Paths []string
}

func (err *MissingFilesError) Error() string {
	return fmt.Sprintf("missing files: %s", strings.Join(err.Paths, ", "))
}

// Uploader reconciles one release and its assets through the API client.
type Uploader struct {
	API        *github.Client
	RetryLimit int

	sleep func(time.Duration)
}

// New returns an Uploader that will attempt each remote operation up to
// retryLimit times with exponential backoff.
func New(api *github.Client, retryLimit int) *Uploader {
	return &Uploader{
		API:        api,
		RetryLimit: retryLimit,
		sleep:      time.Sleep,
	}
}

// MakeRelease ensures the release exists (tolerating a create race
// against a concurrent run targeting the same tag) and then uploads every
// file to it, in the order given. Any unrecovered failure aborts the
// remaining files.
func (u *Uploader) MakeRelease(release models.Release, paths []string) error {
	var missing []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &MissingFilesError{Paths: missing}
	}

	if release.TagName == "" {
		return errors.New("release has no tag_name")
	}

	retries := 0
	wait := initialBackoff

	var resp *github.Response
	for {
		var err error
		resp, err = u.ensureRelease(release)
		if err == nil {
			break
		}

		// GitHub sometimes returns a custom Release error with the message
		// "Published releases must have a valid tag", most likely a race
		// between concurrent clients or within GitHub itself when the tag
		// is created as part of the release. Retrying resolves it.
		var unexpected *github.UnexpectedResponseError
		if !errors.As(err, &unexpected) {
			return err
		}
		log.Printf("unexpected response creating or fetching the release: %v", err)

		if retries >= u.RetryLimit {
			return fmt.Errorf("creating release %q: %w", release.TagName, ErrRetryLimit)
		}
		log.Printf("retrying in %s", wait)
		u.sleep(wait)
		retries++
		wait *= 2
	}

	log.Printf("decoding release info")
	var current models.Release
	if err := json.Unmarshal(resp.Body, &current); err != nil {
		return &github.UnexpectedResponseError{Response: resp}
	}

	for _, p := range paths {
		if err := u.uploadFile(current, p); err != nil {
			return err
		}
	}

	return nil
}

// ensureRelease attempts to create the release and returns the winning
// response body: the created release on 201, or the existing release
// fetched by tag when the server reports it already exists.
func (u *Uploader) ensureRelease(release models.Release) (*github.Response, error) {
	log.Printf("creating the release")
	resp, err := u.API.CreateRelease(release)
	if err != nil {
		return nil, fmt.Errorf("creating release: %w", err)
	}
	if resp.StatusCode == http.StatusCreated {
		return resp, nil
	}

	log.Printf("failed...")
	var clientErr models.ClientError
	if err := json.Unmarshal(resp.Body, &clientErr); err != nil {
		return nil, &github.UnexpectedResponseError{Response: resp}
	}
	if !clientErr.AlreadyExists() {
		return nil, &github.UnexpectedResponseError{Response: resp}
	}

	log.Printf("...but this is OK, because the release already exists")
	log.Printf("getting the current release")
	resp, err = u.API.GetReleaseByTag(release.TagName)
	if err != nil {
		return nil, fmt.Errorf("getting release: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &github.UnexpectedResponseError{Response: resp}
	}

	return resp, nil
}

// uploadFile drives one file to convergence. Only two things end the
// loop: verifying that the asset has the expected size and state, or
// exhausting the retry budget. Check failures along the way are logged
// and ignored so that the upload is always attempted regardless; an
// upload that errors client-side may still have succeeded server-side,
// and the next iteration's checks will find out.
func (u *Uploader) uploadFile(release models.Release, path string) error {
	name := filepath.Base(path)
	log.Printf("upload: %s", name)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("sizing file %q: %w", path, err)
	}
	size := info.Size()

	// Optimization: the v3 API does not always show assets in a bad state,
	// but if the asset does exist with the correct size and state then it
	// was uploaded successfully. Checking the release object already in
	// hand may let us skip any remote calls for this file.
	if listsCompleteAsset(release, name, size) {
		return nil
	}

	retries := 0
	wait := initialBackoff

	for {
		// Same check as above, but against a fresh fetch: the in-hand
		// snapshot may be stale.
		done, err := u.refreshedComplete(release.TagName, name, size)
		if err != nil {
			log.Printf("ignoring error checking asset status via the v3 api: %v", err)
		} else if done {
			return nil
		}

		// The v4 API lets us find and delete an asset in a bad state, but
		// relies on undocumented node-id behavior. If that behavior ever
		// changes, resolution degrades to "not found" and we re-upload,
		// which reconciliation makes safe.
		done, err = u.reconcileExistingAsset(name, size, release)
		if err != nil {
			var formatErr *github.NodeIDFormatError
			if errors.As(err, &formatErr) {
				return err
			}
			log.Printf("ignoring error checking asset status via the v4 api: %v", err)
		} else if done {
			return nil
		}

		if retries >= u.RetryLimit {
			return fmt.Errorf("uploading %q: %w", name, ErrRetryLimit)
		}

		if retries > 0 {
			log.Printf("waiting %s before retrying upload", wait)
			u.sleep(wait)
			wait *= 2
		}
		retries++

		log.Printf("uploading asset")
		resp, err := u.API.UploadAsset(path, release)
		if err != nil {
			if errors.Is(err, github.ErrNoUploadURL) {
				return err
			}
			log.Printf("ignoring upload error: %v", err)
		} else if resp.StatusCode != http.StatusCreated {
			log.Printf("ignoring failed upload")
			logResponse(resp)
		}
	}
}

// refreshedComplete fetches the release by tag, fully replacing any
// in-hand snapshot, and reports whether it lists a complete asset with
// this name.
func (u *Uploader) refreshedComplete(tag, name string, size int64) (bool, error) {
	log.Printf("getting the current release again to check asset status")
	resp, err := u.API.GetReleaseByTag(tag)
	if err != nil {
		return false, fmt.Errorf("getting release: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, &github.UnexpectedResponseError{Response: resp}
	}

	var fresh models.Release
	if err := json.Unmarshal(resp.Body, &fresh); err != nil {
		return false, &github.UnexpectedResponseError{Response: resp}
	}

	return listsCompleteAsset(fresh, name, size), nil
}

func listsCompleteAsset(release models.Release, name string, size int64) bool {
	for _, asset := range release.Assets {
		if asset.Name == name && asset.Complete(size) {
			log.Printf("the asset has the correct size and state, asset done")
			return true
		}
	}
	return false
}

// reconcileExistingAsset looks the asset up by name via the v4 API. A
// complete asset ends the file's loop; a bad one is deleted so the next
// upload starts clean. Deletion failures are tolerated because the
// subsequent upload attempt is the real fix.
func (u *Uploader) reconcileExistingAsset(name string, size int64, release models.Release) (bool, error) {
	log.Printf("finding asset id of %q via the v4 api", name)
	id, found, err := u.API.FindAssetIDByName(name, release)
	if err != nil {
		return false, err
	}
	if !found {
		log.Printf("asset does not exist")
		return false, nil
	}

	log.Printf("asset exists, getting asset info")
	resp, err := u.API.GetAssetByID(id)
	if err != nil {
		return false, fmt.Errorf("getting asset %q: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, &github.UnexpectedResponseError{Response: resp}
	}

	var asset models.Asset
	if err := json.Unmarshal(resp.Body, &asset); err != nil {
		return false, &github.UnexpectedResponseError{Response: resp}
	}

	if asset.Complete(size) {
		log.Printf("the asset has the correct size and state, asset done")
		return true, nil
	}

	log.Printf(`the asset looks bad (wrong size or state was not "uploaded")`)
	log.Printf("deleting asset")
	resp, err = u.API.DeleteAsset(id)
	if err != nil {
		return false, fmt.Errorf("deleting asset %q: %w", id, err)
	}
	if resp.StatusCode != http.StatusNoContent {
		log.Printf("ignoring failed deletion")
		logResponse(resp)
	}

	return false, nil
}

func logResponse(resp *github.Response) {
	log.Printf("status_code: %d", resp.StatusCode)
	if len(resp.Body) > 0 {
		log.Printf("content: %s", resp.Body)
	}
	if until, ok := models.RateLimitReset(resp.Header); ok {
		log.Printf("rate-limit exceeded, try again in %s", until)
	}
}
