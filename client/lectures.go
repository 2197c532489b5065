package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

// ListLectures returns every lecture visible to the signed-in user.
func (c *Client) ListLectures(ctx context.Context) ([]Lecture, error) {
	var lectures []Lecture
	if err := c.getJSON(ctx, "/lectures", &lectures); err != nil {
		return nil, fmt.Errorf("failed to list lectures: %w", err)
	}
	log.Debug().Int("count", len(lectures)).Msg("Fetched lectures")
	return lectures, nil
}

// GetLecture fetches one lecture record.
func (c *Client) GetLecture(ctx context.Context, id string) (*Lecture, error) {
	var lecture Lecture
	if err := c.getJSON(ctx, "/lectures/"+url.PathEscape(id), &lecture); err != nil {
		return nil, fmt.Errorf("failed to fetch lecture %s: %w", id, err)
	}
	return &lecture, nil
}

// GetAnalysis fetches the analysis of a lecture. The backend answers 404
// until processing has produced a result.
func (c *Client) GetAnalysis(ctx context.Context, lectureID string) (*Analysis, error) {
	var analysis Analysis
	if err := c.getJSON(ctx, "/lectures/"+url.PathEscape(lectureID)+"/analysis", &analysis); err != nil {
		return nil, fmt.Errorf("failed to fetch analysis for lecture %s: %w", lectureID, err)
	}
	return &analysis, nil
}

// Upload describes a lecture recording to upload.
type Upload struct {
	Title    string
	Subject  string
	Filename string
	Body     io.Reader
}

// UploadLecture streams a recording to the backend as multipart form data.
// Uploads are never retried.
func (c *Client) UploadLecture(ctx context.Context, up Upload) (*Lecture, error) {
	if up.Body == nil {
		return nil, fmt.Errorf("upload body cannot be nil")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, up, c.wrapUpload(ctx, up.Body)))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/lectures/upload", pr, mw.FormDataContentType())
	if err != nil {
		_ = pr.Close()
		return nil, err
	}

	log.Info().Str("title", up.Title).Str("file", up.Filename).Msg("Uploading lecture")
	resp, err := c.sendAuthorized(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, fmt.Errorf("failed to upload lecture: %w", err)
	}
	var lecture Lecture
	if err := decodeJSON(resp, &lecture); err != nil {
		return nil, err
	}
	log.Info().Str("lecture_id", lecture.ID).Msg("Lecture uploaded")
	return &lecture, nil
}

func writeUploadForm(mw *multipart.Writer, up Upload, body io.Reader) error {
	if err := mw.WriteField("title", up.Title); err != nil {
		return err
	}
	if up.Subject != "" {
		if err := mw.WriteField("subject", up.Subject); err != nil {
			return err
		}
	}
	filename := up.Filename
	if filename == "" {
		filename = "lecture.mp4"
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}
