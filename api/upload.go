package api

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/nidscan/nid-ocr-service/internal/admission"
	"github.com/nidscan/nid-ocr-service/internal/extract"
)

// maxFieldBytes bounds each non-file form field
const maxFieldBytes = 1 << 10

// referenceFields lists accepted form field names in priority order
var referenceFields = []struct {
	name string
	kind extract.Kind
}{
	{"Name", extract.KindName},
	{"name", extract.KindName},
	{"Date of Birth", extract.KindDateOfBirth},
	{"date_of_birth", extract.KindDateOfBirth},
	{"dob", extract.KindDateOfBirth},
	{"ID Number", extract.KindIDNumber},
	{"id_number", extract.KindIDNumber},
}

func referenceKind(name string) (extract.Kind, bool) {
	for _, f := range referenceFields {
		if f.name == name {
			return f.kind, true
		}
	}
	return "", false
}

// httpUpload is the image part of a request. The body is not touched until
// admission calls Read, after the caller has authenticated. Multipart
// reference fields are added to refs as the body is parsed.
type httpUpload struct {
	r         *http.Request
	size      int64
	multipart bool
	refs      map[extract.Kind]string

	once sync.Once
	data []byte
	err  error
}

func (u *httpUpload) Size() int64 { return u.size }

func (u *httpUpload) Read(limit int64) ([]byte, error) {
	u.once.Do(func() {
		if u.multipart {
			u.data, u.err = readMultipart(u.r, limit, u.refs)
			return
		}
		u.data, u.err = admission.ReadLimited(u.r.Body, limit)
		u.err = bodyError(u.err)
	})
	if u.err != nil {
		return nil, u.err
	}
	if int64(len(u.data)) > limit {
		return nil, admission.ErrTooLarge
	}
	return u.data, nil
}

// parseUpload prepares the image and the reference fields of r. The image comes
// from the multipart field "image" (or "file"), or from a raw image/* body with
// references in the query string. A nil Upload means no image was sent.
func parseUpload(r *http.Request) (admission.Upload, map[extract.Kind]string) {
	refs := make(map[extract.Kind]string)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case mediaType == "multipart/form-data":
		return &httpUpload{r: r, size: -1, multipart: true, refs: refs}, refs
	case strings.HasPrefix(mediaType, "image/"), mediaType == "application/octet-stream":
		collectReferences(r.URL.Query(), refs)
		return &httpUpload{r: r, size: r.ContentLength, refs: refs}, refs
	}
	return nil, refs
}

// readMultipart walks every part of the form. A form without an image part
// reports admission.ErrMissing.
func readMultipart(r *http.Request, maxBytes int64, refs map[extract.Kind]string) ([]byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, admission.ErrMissing
	}

	var (
		data      []byte
		found     bool
		fromImage bool
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if found {
				break
			}
			return nil, bodyError(err)
		}

		name := part.FormName()
		switch {
		case name == "image" || (name == "file" && !fromImage):
			// "image" wins over "file"
			d, err := admission.ReadLimited(part, maxBytes)
			part.Close()
			if err != nil {
				return nil, bodyError(err)
			}
			data, found, fromImage = d, true, name == "image"
		default:
			readReference(part, refs)
			part.Close()
		}
	}

	if !found || len(data) == 0 {
		return nil, admission.ErrMissing
	}
	return data, nil
}

// readReference keeps the first non-empty value of each reference field
func readReference(part *multipart.Part, refs map[extract.Kind]string) {
	kind, ok := referenceKind(part.FormName())
	if !ok {
		return
	}
	if _, seen := refs[kind]; seen {
		return
	}
	if value, err := admission.ReadLimited(part, maxFieldBytes); err == nil {
		if v := strings.TrimSpace(string(value)); v != "" {
			refs[kind] = v
		}
	}
}

// bodyError maps the request body cap onto the admission size error
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return admission.ErrTooLarge
	}
	return err
}

func collectReferences(values map[string][]string, refs map[extract.Kind]string) {
	for _, f := range referenceFields {
		if _, seen := refs[f.kind]; seen {
			continue
		}
		if v := strings.TrimSpace(first(values[f.name])); v != "" {
			refs[f.kind] = v
		}
	}
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}
