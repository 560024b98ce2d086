package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/artshield/artshield/internal/domain/protection"
)

// Outcome classifies a successful submission.
type Outcome string

const (
	// OutcomeProcessing means the service accepted the upload and queued a
	// new protection job.
	OutcomeProcessing Outcome = "processing"

	// OutcomeExists means the service recognized the artwork and returned
	// the existing record instead of queueing new work.
	OutcomeExists Outcome = "exists"
)

// SubmitParams carries everything needed to submit an artwork for protection.
type SubmitParams struct {
	ArtistName   string `validate:"required,min=1,max=200"`
	ArtworkTitle string `validate:"required,min=1,max=200"`

	// FileName is sent as the multipart filename; it is informational only
	// and never used for content-type decisions.
	FileName string `validate:"required"`

	// File is the artwork content. It is read exactly once.
	File io.Reader `validate:"required"`
}

// Submission is the service's answer to a successful submit.
type Submission struct {
	JobID   string
	Status  protection.JobStatus
	Outcome Outcome

	// Artwork holds the existing record when Outcome is OutcomeExists.
	Artwork json.RawMessage
}

// submitResponse is the wire shape of the submit endpoint.
type submitResponse struct {
	JobID   string          `json:"job_id"`
	Status  string          `json:"status"`
	Artwork json.RawMessage `json:"artwork,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Submit validates the artwork and sends it to the protection service as a
// single multipart request. Validation failures surface before any network
// traffic. onProgress, when non-nil, receives monotonically non-decreasing
// upload percentages from 0 to 100.
func (c *Client) Submit(ctx context.Context, params SubmitParams, onProgress func(percent int)) (*Submission, error) {
	ctx, span := c.tracer.Start(ctx, "client.submit",
		trace.WithAttributes(attribute.String("artist", params.ArtistName)),
	)
	defer span.End()

	if err := checkParams(params); err != nil {
		return nil, err
	}

	body, contentType, err := c.buildMultipart(ctx, params)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("upload_bytes", body.Len()))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pr := &progressReader{r: body, total: int64(body.Len()), onProgress: onProgress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/protect", pr)
	if err != nil {
		return nil, fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = pr.total
	c.authorize(req)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return nil, protection.NetworkError{Op: "POST /protect", Err: err}
	}
	defer resp.Body.Close()

	return c.decodeSubmitResponse(resp)
}

// buildMultipart assembles the request body in memory. Files are bounded by
// the configured maximum, so buffering is cheaper than a pipe and gives an
// exact total for progress reporting.
func (c *Client) buildMultipart(ctx context.Context, params SubmitParams) (*bytes.Buffer, string, error) {
	content, err := io.ReadAll(io.LimitReader(params.File, c.upload.MaxFileSizeBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read artwork file: %w", err)
	}
	if int64(len(content)) > c.upload.MaxFileSizeBytes {
		return nil, "", protection.ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("file exceeds maximum size of %d bytes", c.upload.MaxFileSizeBytes),
		}
	}
	if len(content) == 0 {
		return nil, "", protection.ValidationError{Field: "file", Reason: "file is empty"}
	}

	mimeType, err := sniffMIME(content, c.upload.AcceptedMIMETypes)
	if err != nil {
		return nil, "", err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("artist_name", params.ArtistName); err != nil {
		return nil, "", fmt.Errorf("write artist field: %w", err)
	}
	if err := w.WriteField("artwork_title", params.ArtworkTitle); err != nil {
		return nil, "", fmt.Errorf("write title field: %w", err)
	}

	part, err := w.CreateFormFile("file", params.FileName)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}

	c.log.Debug(ctx, "artwork validated for upload",
		"mime_type", mimeType, "size_bytes", len(content))

	return &body, w.FormDataContentType(), nil
}

// decodeSubmitResponse folds the two success shapes into a Submission: a 202
// means a job was queued, a 200 with status "exists" means the artwork was
// already protected.
func (c *Client) decodeSubmitResponse(resp *http.Response) (*Submission, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload submitResponse
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			return nil, fmt.Errorf("submit rejected with status %d: %s", resp.StatusCode, payload.Error)
		}
		return nil, fmt.Errorf("submit rejected with status %d", resp.StatusCode)
	}

	var payload submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	if payload.JobID == "" {
		return nil, fmt.Errorf("submit response missing job_id")
	}

	sub := &Submission{
		JobID:   payload.JobID,
		Status:  protection.ParseJobStatus(payload.Status),
		Outcome: OutcomeProcessing,
		Artwork: payload.Artwork,
	}
	if payload.Status == string(OutcomeExists) {
		sub.Outcome = OutcomeExists
		sub.Status = protection.JobStatusCompleted
	}
	return sub, nil
}

// progressReader reports read progress as integer percentages. The transport
// pulls from it while streaming the request body, so each Read reflects bytes
// actually handed to the network stack.
type progressReader struct {
	r          io.Reader
	total      int64
	sent       int64
	lastPct    int
	started    bool
	onProgress func(percent int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	if !p.started {
		p.started = true
		p.report(0)
	}

	n, err := p.r.Read(b)
	p.sent += int64(n)

	pct := 100
	if p.total > 0 {
		pct = int(p.sent * 100 / p.total)
	}
	if pct > 100 {
		pct = 100
	}
	if pct > p.lastPct || (err == io.EOF && p.lastPct < 100) {
		if err == io.EOF {
			pct = 100
		}
		p.report(pct)
	}
	return n, err
}

func (p *progressReader) report(pct int) {
	if p.onProgress != nil && pct >= p.lastPct {
		p.lastPct = pct
		p.onProgress(pct)
	}
}
