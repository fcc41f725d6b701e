package testsupport

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	tusBasePath    = "/storage/v1/upload/resumable"
	objectBasePath = "/storage/v1/object/"
)

// TusUpload is the server-side state of one resumable upload.
type TusUpload struct {
	ID       string
	Length   int64
	Metadata map[string]string
	Upsert   string
	Data     []byte
}

// PatchFault decides the outcome of the n-th PATCH (1-based). A zero status
// lets the request through; commit keeps the chunk even when a failure status
// is returned, as when an acknowledgement is lost.
type PatchFault func(call int) (status int, commit bool)

// TusServer is an in-memory tus 1.0.0 endpoint with a direct object route,
// shaped like Supabase Storage.
type TusServer struct {
	Server *httptest.Server

	// Token, when set, is the only bearer accepted.
	Token string
	// CreateStatus overrides the creation response when non-zero.
	CreateStatus int
	// PatchFault injects PATCH failures.
	PatchFault PatchFault

	mu       sync.Mutex
	uploads  map[string]*TusUpload
	objects  map[string][]byte
	headers  map[string]http.Header
	counts   map[string]int
	patches  []int64
	sequence int
}

// NewTusServer starts a fake storage server and closes it on cleanup.
func NewTusServer(t testing.TB) *TusServer {
	t.Helper()
	s := &TusServer{
		uploads: make(map[string]*TusUpload),
		objects: make(map[string][]byte),
		headers: make(map[string]http.Header),
		counts:  make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Server.Close)
	return s
}

// Endpoint returns the resumable creation URL.
func (s *TusServer) Endpoint() string {
	return s.Server.URL + tusBasePath
}

// StorageBase returns the storage API base URL.
func (s *TusServer) StorageBase() string {
	return s.Server.URL + "/storage/v1"
}

// Count returns how many requests with method reached the server.
func (s *TusServer) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method]
}

// PatchOffsets returns the Upload-Offset of every PATCH in arrival order.
func (s *TusServer) PatchOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.patches...)
}

// Uploads returns a snapshot of every upload created so far.
func (s *TusServer) Uploads() []TusUpload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TusUpload, 0, len(s.uploads))
	for i := 1; i <= s.sequence; i++ {
		if up, ok := s.uploads[strconv.Itoa(i)]; ok {
			cp := *up
			cp.Data = append([]byte(nil), up.Data...)
			out = append(out, cp)
		}
	}
	return out
}

// Seed registers an upload that already holds data, as if an earlier process
// had sent it, and returns its URL.
func (s *TusServer) Seed(length int64, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	id := strconv.Itoa(s.sequence)
	s.uploads[id] = &TusUpload{ID: id, Length: length, Metadata: map[string]string{}, Data: append([]byte(nil), data...)}
	return s.Endpoint() + "/" + id
}

// Expire forgets every upload so subsequent HEAD and PATCH requests get 404.
func (s *TusServer) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = make(map[string]*TusUpload)
}

// Object returns the body stored by a direct upload.
func (s *TusServer) Object(bucket, object string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+object]
	return data, ok
}

// ObjectHeaders returns the request headers of a direct upload.
func (s *TusServer) ObjectHeaders(bucket, object string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[bucket+"/"+object]
}

func (s *TusServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.counts[r.Method]++
	s.mu.Unlock()

	if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, objectBasePath) && r.Method == http.MethodPost:
		s.handleObject(w, r)
	case r.URL.Path == tusBasePath && r.Method == http.MethodPost:
		s.handleCreate(w, r)
	case strings.HasPrefix(r.URL.Path, tusBasePath+"/"):
		id := strings.TrimPrefix(r.URL.Path, tusBasePath+"/")
		switch r.Method {
		case http.MethodHead:
			s.handleHead(w, id)
		case http.MethodPatch:
			s.handlePatch(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *TusServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Tus-Resumable") != "1.0.0" {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	if s.CreateStatus != 0 {
		http.Error(w, "create rejected", s.CreateStatus)
		return
	}
	length, err := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
	if err != nil || length < 0 {
		http.Error(w, "bad Upload-Length", http.StatusBadRequest)
		return
	}
	meta, err := parseMetadata(r.Header.Get("Upload-Metadata"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.sequence++
	id := strconv.Itoa(s.sequence)
	s.uploads[id] = &TusUpload{ID: id, Length: length, Metadata: meta, Upsert: r.Header.Get("x-upsert")}
	s.mu.Unlock()

	w.Header().Set("Tus-Resumable", "1.0.0")
	w.Header().Set("Location", tusBasePath+"/"+id)
	w.WriteHeader(http.StatusCreated)
}

func (s *TusServer) handleHead(w http.ResponseWriter, id string) {
	s.mu.Lock()
	up, ok := s.uploads[id]
	var offset, length int64
	if ok {
		offset, length = int64(len(up.Data)), up.Length
	}
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Tus-Resumable", "1.0.0")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Upload-Offset", strconv.FormatInt(offset, 10))
	w.Header().Set("Upload-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusOK)
}

func (s *TusServer) handlePatch(w http.ResponseWriter, r *http.Request, id string) {
	if r.Header.Get("Content-Type") != "application/offset+octet-stream" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	offset, err := strconv.ParseInt(r.Header.Get("Upload-Offset"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, offset)
	up, ok := s.uploads[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if offset != int64(len(up.Data)) {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if int64(len(up.Data))+int64(len(body)) > up.Length {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	status, commit := 0, true
	if s.PatchFault != nil {
		status, commit = s.PatchFault(len(s.patches))
		if status == 0 {
			commit = true
		}
	}
	if commit {
		up.Data = append(up.Data, body...)
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Tus-Resumable", "1.0.0")
	w.Header().Set("Upload-Offset", strconv.Itoa(len(up.Data)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *TusServer) handleObject(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, objectBasePath)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.objects[key] = body
	s.headers[key] = r.Header.Clone()
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"Key":%q}`, key)
}

func parseMetadata(raw string) (map[string]string, error) {
	meta := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return meta, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		key, encoded, _ := strings.Cut(strings.TrimSpace(pair), " ")
		value, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("metadata %s: %w", key, err)
		}
		meta[key] = string(value)
	}
	return meta, nil
}
