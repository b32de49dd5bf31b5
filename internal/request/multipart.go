package request

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iTrooz/netkit/internal/errs"
)

// Field is a literal multipart form field
type Field struct {
	Name  string
	Value string
}

// FileField is a multipart file part read from Path.
type FileField struct {
	Name string
	Path string
}

var mediaTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"pdf":  "application/pdf",
	"txt":  "text/plain",
}

const defaultMediaType = "application/octet-stream"

// MediaTypeFor infers a media type from the file extension, case-insensitively.
func MediaTypeFor(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if mt, ok := mediaTypes[ext]; ok {
		return mt
	}
	return defaultMediaType
}

type filePart struct {
	field     string
	fileName  string
	mediaType string
	path      string
}

type multipartBody struct {
	boundary string
	fields   []Field
	files    []filePart
}

// MultipartPost builds a multipart/form-data POST. Literal fields are written
// first in slice order, then file parts in slice order. Each file is opened
// once here to fail early with UnreadableFile, and streamed on dispatch.
func MultipartPost(rawURL string, fields []Field, files []FileField, opts ...Option) (*Descriptor, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	body := &multipartBody{
		boundary: "netkit-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		fields:   append([]Field(nil), fields...),
	}
	for _, f := range files {
		if err := checkReadable(f.Path); err != nil {
			return nil, errs.UnreadableFile(f.Path, err)
		}
		name := filepath.Base(f.Path)
		body.files = append(body.files, filePart{
			field:     f.Name,
			fileName:  name,
			mediaType: MediaTypeFor(name),
			path:      f.Path,
		})
	}

	d, err := build(http.MethodPost, u, body, opts)
	if err != nil {
		return nil, err
	}
	// the multipart body is the point of this builder
	d.body = body
	return d, nil
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	return nil
}

func (b *multipartBody) Kind() BodyKind { return BodyMultipart }

func (b *multipartBody) ContentType() string {
	return "multipart/form-data; boundary=" + b.boundary
}

// Open checks every file is still readable, then returns a reader that only
// opens the files and starts encoding on its first Read. A body that is
// dropped or closed unread holds no file handles and no goroutine.
func (b *multipartBody) Open() (io.ReadCloser, int64, error) {
	for _, f := range b.files {
		if err := checkReadable(f.path); err != nil {
			return nil, 0, errs.UnreadableFile(f.path, err)
		}
	}
	return &multipartReader{body: b}, -1, nil
}

func (b *multipartBody) openFiles() ([]*os.File, error) {
	opened := make([]*os.File, 0, len(b.files))
	for _, f := range b.files {
		file, err := os.Open(f.path)
		if err != nil {
			for _, o := range opened {
				_ = o.Close()
			}
			return nil, errs.UnreadableFile(f.path, err)
		}
		opened = append(opened, file)
	}
	return opened, nil
}

var errBodyClosed = errors.New("multipart body closed")

type multipartReader struct {
	body *multipartBody
	once sync.Once
	pr   *io.PipeReader
	err  error
}

func (r *multipartReader) start() {
	opened, err := r.body.openFiles()
	if err != nil {
		r.err = err
		return
	}
	pr, pw := io.Pipe()
	r.pr = pr
	go func() {
		pw.CloseWithError(r.body.write(pw, opened))
	}()
}

func (r *multipartReader) Read(p []byte) (int, error) {
	r.once.Do(r.start)
	if r.err != nil {
		return 0, r.err
	}
	return r.pr.Read(p)
}

// Close stops the encoder, which then releases its files.
func (r *multipartReader) Close() error {
	r.once.Do(func() { r.err = errBodyClosed })
	if r.pr != nil {
		return r.pr.Close()
	}
	return nil
}

func (b *multipartBody) write(w io.Writer, opened []*os.File) error {
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(b.boundary); err != nil {
		return err
	}
	for _, field := range b.fields {
		if err := mw.WriteField(field.Name, field.Value); err != nil {
			return fmt.Errorf("writing field %q: %w", field.Name, err)
		}
	}
	for i, part := range b.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(part.field), escapeQuotes(part.fileName)))
		h.Set("Content-Type", part.mediaType)
		pw, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(pw, opened[i]); err != nil {
			return errs.UnreadableFile(part.path, err)
		}
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
