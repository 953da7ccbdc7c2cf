package main

import (
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"

	"github.com/releasekit/release-retry/github"
	"github.com/releasekit/release-retry/models"
	"github.com/releasekit/release-retry/uploader"
	"github.com/spf13/cobra"
)

const tokenEnvVar = "GITHUB_TOKEN"

func main() {
	log.SetFlags(0)

	// No client timeout: asset uploads can legitimately run for minutes.
	c := &http.Client{}

	if err := rootCommand(c).Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCommand(c *http.Client) *cobra.Command {
	var (
		user            string
		repo            string
		tagName         string
		targetCommitish string
		releaseName     string
		bodyString      string
		bodyFile        string
		draft           bool
		prerelease      bool
		apiURL          string
		retryLimit      int
	)

	cmd := &cobra.Command{
		Use:   "release-retry [flags] [files...]",
		Short: "Creates a GitHub release (if it does not already exist) and uploads files to it",
		Example: `GITHUB_TOKEN=... release-retry --user paul --repo hello-world --tag_name v1.0 ` +
			`--target_commitish 448301eb --body_string "My first release." hello-world.zip RELEASE_NOTES.txt`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := os.Getenv(tokenEnvVar)
			if token == "" {
				return fmt.Errorf("please set the %s environment variable", tokenEnvVar)
			}

			if (bodyString == "") == (bodyFile == "") {
				return errors.New("exactly one of --body_string and --body_file is required")
			}

			body := bodyString
			if bodyFile != "" {
				contents, err := ioutil.ReadFile(bodyFile)
				if err != nil {
					return fmt.Errorf("reading body file %q: %w", bodyFile, err)
				}
				body = string(contents)
			}

			release := models.Release{
				TagName:         tagName,
				TargetCommitish: targetCommitish,
				Name:            releaseName,
				Body:            body,
				Draft:           draft,
				Prerelease:      prerelease,
			}

			api := github.NewClient(apiURL, user, repo, token, c)
			return uploader.New(api, retryLimit).MakeRelease(release, args)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "the GitHub username or organization name in which the repo resides")
	cmd.Flags().StringVar(&repo, "repo", "", "the GitHub repo name in which to make the release")
	cmd.Flags().StringVar(&tagName, "tag_name", "", "the name of the tag to create or use")
	cmd.Flags().StringVar(&targetCommitish, "target_commitish", "", "the commit-ish value where the tag will be created; unused if the tag already exists")
	cmd.Flags().StringVar(&releaseName, "release_name", "", "the name of the release; leave unset to use the tag_name (recommended)")
	cmd.Flags().StringVar(&bodyString, "body_string", "", "text describing the release; ignored if the release already exists")
	cmd.Flags().StringVar(&bodyFile, "body_file", "", "file containing text describing the release; ignored if the release already exists")
	cmd.Flags().BoolVar(&draft, "draft", false, "creates a draft (unpublished) release")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "marks the release as a prerelease")
	cmd.Flags().StringVar(&apiURL, "github_api_url", "https://api.github.com", "the GitHub API URL without a trailing slash")
	cmd.Flags().IntVar(&retryLimit, "retry_limit", 10, "the number of times to retry creating/getting the release and/or uploading each file")

	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("repo")
	cmd.MarkFlagRequired("tag_name")

	return cmd
}
