package gateway

import (
	"fmt"
	"net/http"
)

// PageData lists the stored files for the files page.
func (c *Client) PageData(r *http.Request) (map[string]interface{}, error) {
	files, err := c.ListFiles(r.Context())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"files": files,
		"count": len(files),
	}, nil
}

// SubmitForm handles the files page form: the posted file is converted when
// a format is chosen, uploaded as is otherwise.
func (c *Client) SubmitForm(r *http.Request) (string, error) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return "", fmt.Errorf("no file submitted: %w", err)
	}
	defer f.Close()

	if format := r.FormValue("format"); len(format) > 0 {
		return c.Convert(r.Context(), hdr.Filename, f, format)
	}
	return c.Upload(r.Context(), hdr.Filename, f)
}
