package directus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// ImageOptions are the asset display parameters. Zero values are omitted.
type ImageOptions struct {
	Key                string
	Fit                string // cover, contain, inside, outside
	Width              int
	Height             int
	Quality            int    // 1-100
	Format             string // auto, jpg, png, webp, tiff
	WithoutEnlargement bool
	Download           bool

	// Transforms are sharp operations, e.g. {"blur", 45}.
	Transforms [][]any
}

// Values encodes o as asset query parameters.
func (o ImageOptions) Values() (url.Values, error) {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("key", o.Key)
	set("fit", o.Fit)
	set("format", o.Format)
	if o.Width > 0 {
		v.Set("width", strconv.Itoa(o.Width))
	}
	if o.Height > 0 {
		v.Set("height", strconv.Itoa(o.Height))
	}
	if o.Quality > 0 {
		v.Set("quality", strconv.Itoa(o.Quality))
	}
	if o.WithoutEnlargement {
		v.Set("withoutEnlargement", "true")
	}
	if o.Download {
		v.Set("download", "true")
	}
	if len(o.Transforms) > 0 {
		data, err := json.Marshal(o.Transforms)
		if err != nil {
			return nil, fmt.Errorf("encode transforms: %w", err)
		}
		v.Set("transforms", string(data))
	}
	return v, nil
}

// Files searches directus_files.
func (c *Client) Files(ctx context.Context, q query.Query) ([]File, error) {
	var files []File
	if err := c.Search(ctx, "/files", q, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// File returns the metadata of one file.
func (c *Client) File(ctx context.Context, id string) (*File, error) {
	var f File
	if err := c.Get(ctx, "/files/"+escape(id), query.Query{}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// UploadFile uploads r as name, then sets meta and the detected type on the
// new file.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader, meta map[string]any) (*File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req := request{
		method:      http.MethodPost,
		path:        "/files",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		expect:      []int{http.StatusOK},
	}
	var uploaded File
	if err := c.call(ctx, req, &uploaded); err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	if uploaded.ID == "" {
		return &uploaded, nil
	}

	patch := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		patch[k] = v
	}
	patch["type"] = ContentType(name)

	updated, err := c.UpdateFile(ctx, uploaded.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("update metadata of %s: %w", uploaded.ID, err)
	}
	if updated.ID == "" {
		return &uploaded, nil
	}
	return updated, nil
}

func (c *Client) UpdateFile(ctx context.Context, id string, patch map[string]any) (*File, error) {
	var f File
	if err := c.Patch(ctx, "/files/"+escape(id), patch, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.Delete(ctx, "/files/"+escape(id), nil)
}

// DownloadFile writes the original asset to w.
func (c *Client) DownloadFile(ctx context.Context, id string, w io.Writer) (int64, error) {
	return c.stream(ctx, "/assets/"+escape(id), nil, w)
}

// DownloadImage writes the asset rendered with opts to w.
func (c *Client) DownloadImage(ctx context.Context, id string, w io.Writer, opts ImageOptions) (int64, error) {
	params, err := opts.Values()
	if err != nil {
		return 0, err
	}
	return c.stream(ctx, "/assets/"+escape(id), params, w)
}

// FileURL returns the asset URL of id with opts applied.
func (c *Client) FileURL(id string, opts ImageOptions) (string, error) {
	params, err := opts.Values()
	if err != nil {
		return "", err
	}
	return c.URL("/assets/"+escape(id), params), nil
}

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/msword",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.ms-excel",
	"odt":  "application/vnd.oasis.opendocument.text",
	"ods":  "application/vnd.oasis.opendocument.spreadsheet",
}

// ContentType maps a file name to the type Directus stores. Unknown
// extensions are text/plain.
func ContentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if t, ok := contentTypes[ext]; ok {
		return t
	}
	return "text/plain"
}
