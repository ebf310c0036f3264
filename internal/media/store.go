package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Md-KamranQutub/chatify/internal/model"
)

var ErrUnsupportedMedia = errors.New("unsupported media type")

// Upload is a media file attached to a request.
type Upload struct {
	Filename string
	MIME     string
	Open     func() (io.ReadCloser, error)
}

// FromFileHeader adapts a multipart file part.
func FromFileHeader(fh *multipart.FileHeader) *Upload {
	return &Upload{
		Filename: fh.Filename,
		MIME:     fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// Store persists an upload and returns the URL it is reachable at. Remove
// deletes a file by that URL when the record referencing it was not kept.
type Store interface {
	Save(ctx context.Context, up *Upload) (url string, mimeType string, err error)
	Remove(ctx context.Context, url string) error
}

// ContentTypeFor maps a MIME type to a message content type.
func ContentTypeFor(mimeType string) (model.ContentType, error) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return model.ContentTypeImage, nil
	case strings.HasPrefix(mimeType, "video/"):
		return model.ContentTypeVideo, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, mimeType)
	}
}

// LocalStore writes uploads under Dir and serves them from BaseURL.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Save(ctx context.Context, up *Upload) (string, string, error) {
	src, err := up.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	mimeType := up.MIME
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(head)
	}
	if _, err := ContentTypeFor(mimeType); err != nil {
		return "", "", err
	}

	name := uuid.NewString() + extensionFor(up.Filename, mimeType)
	path := filepath.Join(s.Dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create media file: %w", err)
	}
	if err := writeUpload(dst, head, readerWithContext(ctx, src)); err != nil {
		_ = os.Remove(path)
		return "", "", fmt.Errorf("write media file: %w", err)
	}
	return s.BaseURL + "/" + name, mimeType, nil
}

// Remove deletes a file this store saved. A file that is already gone is
// not an error.
func (s *LocalStore) Remove(_ context.Context, url string) error {
	name, ok := strings.CutPrefix(url, s.BaseURL+"/")
	if !ok || name == "" || name != filepath.Base(name) {
		return fmt.Errorf("media url %q is not served by this store", url)
	}
	if err := os.Remove(filepath.Join(s.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

func writeUpload(dst *os.File, head []byte, rest io.Reader) error {
	if _, err := dst.Write(head); err != nil {
		_ = dst.Close()
		return err
	}
	if _, err := io.Copy(dst, rest); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func extensionFor(filename, mimeType string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
