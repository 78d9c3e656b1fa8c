// Package channel talks to the external marketplace's report-style inventory
// API: request a report, poll it, download the rows when it finishes.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	internalhttp "github.com/channelsync/inventory-service/internal/http"
	"github.com/channelsync/inventory-service/internal/types"
)

// ReportHandle identifies one report job on the external side
type ReportHandle string

// ReportState is the external job's own lifecycle state
type ReportState string

const (
	ReportRequested  ReportState = "requested"
	ReportProcessing ReportState = "processing"
	ReportCompleted  ReportState = "completed"
	ReportFailed     ReportState = "failed"
)

// ReportParams describes the snapshot being requested
type ReportParams struct {
	Channel       string             `json:"channel"`
	MarketplaceID string             `json:"marketplaceId"`
	SnapshotKind  types.SnapshotKind `json:"snapshotKind"`
}

// ReportStatus is one observation of an external report job. Rows are present
// only when State is ReportCompleted. RawPayload is the status response body
// verbatim, kept for operator diagnostics and never parsed by core logic.
type ReportStatus struct {
	State      ReportState
	Message    string
	Rows       []types.RawRow
	RawPayload []byte
}

// ReportAPI is the contract the lifecycle manager depends on. Implementations
// must return transport errors as errors, never as a failed ReportState:
// only the external job itself decides that it failed.
type ReportAPI interface {
	RequestReport(ctx context.Context, params ReportParams) (ReportHandle, error)
	FetchReportStatus(ctx context.Context, handle ReportHandle) (*ReportStatus, error)
}

// Client implements ReportAPI against the channel's HTTP report endpoints
type Client struct {
	http    *internalhttp.Client
	baseURL string
}

// NewClient creates a report API client for the given base URL
func NewClient(http *internalhttp.Client, baseURL string) *Client {
	return &Client{http: http, baseURL: baseURL}
}

type requestReportResponse struct {
	Handle string `json:"reportHandle"`
}

// RequestReport asks the channel to start generating an inventory report
func (c *Client) RequestReport(ctx context.Context, params ReportParams) (ReportHandle, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode report request: %w", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "reports")
	if err != nil {
		return "", fmt.Errorf("invalid channel base URL: %w", err)
	}

	body, err := c.http.PostJSON(ctx, endpoint, payload)
	if err != nil {
		return "", fmt.Errorf("report API: request report: %w", err)
	}

	var resp requestReportResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("report API: failed to decode request response: %w", err)
	}
	if resp.Handle == "" {
		return "", fmt.Errorf("report API: empty report handle in response")
	}
	return ReportHandle(resp.Handle), nil
}

type reportStatusResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Rows    []types.RawRow `json:"rows"`
}

// FetchReportStatus polls the external job once. Returns the downloaded rows
// when the job has completed.
func (c *Client) FetchReportStatus(ctx context.Context, handle ReportHandle) (*ReportStatus, error) {
	endpoint, err := url.JoinPath(c.baseURL, "reports", string(handle))
	if err != nil {
		return nil, fmt.Errorf("invalid channel base URL: %w", err)
	}

	body, err := c.http.GetJSON(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("report API: fetch status for %s: %w", handle, err)
	}

	var resp reportStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("report API: failed to decode status response: %w", err)
	}

	status := &ReportStatus{
		Message:    resp.Message,
		RawPayload: body,
	}

	switch ReportState(resp.Status) {
	case ReportRequested, ReportProcessing:
		status.State = ReportProcessing
	case ReportCompleted:
		status.State = ReportCompleted
		status.Rows = resp.Rows
	case ReportFailed:
		status.State = ReportFailed
	default:
		return nil, fmt.Errorf("report API: unknown report status %q for %s", resp.Status, handle)
	}
	return status, nil
}
