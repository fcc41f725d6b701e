package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"callingest/internal/credentials"
)

const (
	tusVersion        = "1.0.0"
	offsetContentType = "application/offset+octet-stream"
	maxErrorBody      = 4096
)

// tusClient issues the individual tus requests. It never retries.
type tusClient struct {
	http     *http.Client
	endpoint string
}

type createRequest struct {
	Length       int64
	Bucket       string
	Object       string
	ContentType  string
	CacheControl string
	Upsert       bool
}

func (c *tusClient) create(ctx context.Context, cred credentials.Credential, req createRequest) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, http.NoBody)
	if err != nil {
		return "", err
	}
	setAuth(httpReq, cred)
	httpReq.Header.Set("Tus-Resumable", tusVersion)
	httpReq.Header.Set("Upload-Length", strconv.FormatInt(req.Length, 10))
	httpReq.Header.Set("Upload-Metadata", encodeMetadata(
		"bucketName", req.Bucket,
		"objectName", req.Object,
		"contentType", req.ContentType,
		"cacheControl", req.CacheControl,
	))
	httpReq.Header.Set("x-upsert", strconv.FormatBool(req.Upsert))

	resp, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", newStatusError("create upload", resp)
	}
	location := strings.TrimSpace(resp.Header.Get("Location"))
	if location == "" {
		return "", fmt.Errorf("create upload: response missing Location header")
	}
	return c.resolve(location)
}

func (c *tusClient) head(ctx context.Context, cred credentials.Credential, uploadURL string) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, uploadURL, http.NoBody)
	if err != nil {
		return 0, err
	}
	setAuth(httpReq, cred)
	httpReq.Header.Set("Tus-Resumable", tusVersion)

	resp, err := c.do(httpReq)
	if err != nil {
		return 0, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return 0, newStatusError("query offset", resp)
	}
	return parseOffset(resp)
}

func (c *tusClient) patch(ctx context.Context, cred credentials.Credential, uploadURL string, offset int64, chunk []byte) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, uploadURL, bytes.NewReader(chunk))
	if err != nil {
		return 0, err
	}
	setAuth(httpReq, cred)
	httpReq.Header.Set("Tus-Resumable", tusVersion)
	httpReq.Header.Set("Upload-Offset", strconv.FormatInt(offset, 10))
	httpReq.Header.Set("Content-Type", offsetContentType)
	httpReq.ContentLength = int64(len(chunk))

	resp, err := c.do(httpReq)
	if err != nil {
		return 0, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return 0, newStatusError("upload chunk", resp)
	}
	return parseOffset(resp)
}

func (c *tusClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Redacted(), errTransport, err)
	}
	return resp, nil
}

func (c *tusClient) resolve(location string) (string, error) {
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse Location %q: %w", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func setAuth(req *http.Request, cred credentials.Credential) {
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if cred.APIKey != "" {
		req.Header.Set("apikey", cred.APIKey)
	}
}

func encodeMetadata(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		parts = append(parts, pairs[i]+" "+base64.StdEncoding.EncodeToString([]byte(pairs[i+1])))
	}
	return strings.Join(parts, ",")
}

func parseOffset(resp *http.Response) (int64, error) {
	raw := strings.TrimSpace(resp.Header.Get("Upload-Offset"))
	if raw == "" {
		return 0, fmt.Errorf("response missing Upload-Offset header")
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid Upload-Offset %q", raw)
	}
	return offset, nil
}

func newStatusError(op string, resp *http.Response) *statusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &statusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
