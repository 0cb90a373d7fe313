package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
)

func runSync(apiURL string, out io.Writer) error {
	resp, err := http.Post(apiURL+"/api/sync", "application/json", nil)
	if err != nil {
		return err
	}
	return copyResponse(resp, out)
}

func runUpdates(apiURL, since string, out io.Writer) error {
	u := apiURL + "/api/updates"
	if since != "" {
		u += "?since=" + url.QueryEscape(since)
	}
	resp, err := http.Get(u)
	if err != nil {
		return err
	}
	return copyResponse(resp, out)
}

func runConversations(apiURL string, out io.Writer) error {
	resp, err := http.Get(apiURL + "/api/conversations")
	if err != nil {
		return err
	}
	return copyResponse(resp, out)
}

func runArchive(apiURL, conversationID string, out io.Writer) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}
	resp, err := http.Post(apiURL+"/api/archive/"+url.PathEscape(conversationID), "application/json", nil)
	if err != nil {
		return err
	}
	return copyResponse(resp, out)
}

func copyResponse(resp *http.Response, out io.Writer) error {
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	_, err := io.Copy(out, resp.Body)
	return err
}
