package hosting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Repository is the subset of repository metadata the pipeline uses.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Fork          bool   `json:"fork"`
	Size          int    `json:"size"`
}

// Branch is the subset of branch metadata the pipeline uses.
type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// Repository probes a mirror repository in the managed organization.
func (c *Client) Repository(ctx context.Context, name string) (Repository, error) {
	var repo Repository
	resp, err := c.do(ctx, http.MethodGet, c.apiURL("repos", c.cfg.Organization, name), nil)
	if err != nil {
		return repo, err
	}
	if err := json.Unmarshal(resp.Body, &repo); err != nil {
		return repo, fmt.Errorf("decode repository %s: %w", name, err)
	}
	return repo, nil
}

// Fork requests an asynchronous fork of the upstream repository into the
// managed organization under the same name. The host accepts the request
// before the fork is usable.
func (c *Client) Fork(ctx context.Context, name string) error {
	payload := map[string]any{
		"organization":        c.cfg.Organization,
		"name":                name,
		"default_branch_only": false,
	}
	_, err := c.do(ctx, http.MethodPost, c.apiURL("repos", c.cfg.UpstreamOwner, name, "forks"), payload)
	return err
}

// CreateRepository creates an empty, auto-initialised public repository in
// the managed organization.
func (c *Client) CreateRepository(ctx context.Context, name, defaultBranch, description string) error {
	payload := map[string]any{
		"name":           name,
		"private":        false,
		"default_branch": defaultBranch,
		"auto_init":      true,
		"description":    description,
		"has_issues":     false,
		"has_projects":   false,
		"has_wiki":       false,
	}
	_, err := c.do(ctx, http.MethodPost, c.apiURL("orgs", c.cfg.Organization, "repos"), payload)
	return err
}

// Branch fetches metadata for one branch of a mirror repository.
func (c *Client) Branch(ctx context.Context, name, branch string) (Branch, error) {
	var out Branch
	resp, err := c.do(ctx, http.MethodGet, c.apiURL("repos", c.cfg.Organization, name, "branches", branch), nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, fmt.Errorf("decode branch %s@%s: %w", name, branch, err)
	}
	return out, nil
}

// DeleteRepository removes a mirror repository. Only the reset command uses it.
func (c *Client) DeleteRepository(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodDelete, c.apiURL("repos", c.cfg.Organization, name), nil)
	return err
}

// RawFile downloads path at ref from a mirror repository through the raw
// content host.
func (c *Client) RawFile(ctx context.Context, repo, ref, path string) ([]byte, error) {
	segments := []string{c.cfg.Organization, repo}
	segments = append(segments, strings.Split(strings.Trim(ref, "/"), "/")...)
	segments = append(segments, strings.Split(strings.Trim(path, "/"), "/")...)
	resp, err := c.do(ctx, http.MethodGet, joinURL(c.cfg.RawURL, segments...), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Ping verifies the token can read the managed organization.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.apiURL("orgs", c.cfg.Organization), nil)
	return err
}

// CloneURL returns the HTTPS clone URL for a mirror repository with the
// token embedded for push access. The vcs layer redacts it from errors.
func (c *Client) CloneURL(name string) string {
	base := c.cfg.GitURL
	if c.cfg.Token != "" {
		if parsed, err := url.Parse(base); err == nil {
			parsed.User = url.UserPassword("x-access-token", c.cfg.Token)
			base = parsed.String()
		}
	}
	return joinURL(base, c.cfg.Organization, name+".git")
}

// PublicURL returns the credential-free web URL of a mirror repository.
func (c *Client) PublicURL(name string) string {
	return joinURL(c.cfg.GitURL, c.cfg.Organization, name)
}

// Token returns the configured credential so callers can redact it.
func (c *Client) Token() string { return c.cfg.Token }

func (c *Client) apiURL(segments ...string) string {
	return joinURL(c.cfg.APIURL, segments...)
}

func joinURL(base string, segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, seg := range segments {
		escaped = append(escaped, url.PathEscape(seg))
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/")
}
