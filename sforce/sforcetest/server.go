// Package sforcetest provides an in-process fake of the sObject REST API for
// tests: an httptest server with seedable records, relationship traversal,
// and a token endpoint that accepts any well-formed JWT bearer grant.
package sforcetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AccessToken is the session token the fake token endpoint issues
const AccessToken = "00Dtest!fake.session.token"

// Server is a fake sObject API backed by in-memory maps
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	records map[string]map[string]map[string]interface{} // object type -> id -> record
	related map[string]map[string][]string               // "type/id" -> relationship -> child "type/id"

	// AuthCalls counts token endpoint hits
	AuthCalls int

	// RejectToken makes sObject endpoints answer INVALID_SESSION_ID once,
	// then accept again; used to exercise re-authentication
	RejectToken bool
}

// New starts a fake server
func New() *Server {
	s := &Server{
		records: make(map[string]map[string]map[string]interface{}),
		related: make(map[string]map[string][]string),
	}

	r := chi.NewRouter()
	r.Post("/services/oauth2/token", s.handleToken)
	r.Route("/services/data/v{version}/sobjects", func(r chi.Router) {
		r.Post("/{type}", s.handleCreate)
		r.Get("/{type}/describe", s.handleDescribe)
		r.Get("/{type}/{id}", s.handleGet)
		r.Patch("/{type}/{id}", s.handleUpdate)
		r.Delete("/{type}/{id}", s.handleDelete)
		r.Get("/{type}/{id}/{relationship}", s.handleRelated)
	})

	s.Server = httptest.NewServer(r)
	return s
}

// Seed stores a record and returns its id
func (s *Server) Seed(objectType, id string, record map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = newID()
	}
	if s.records[objectType] == nil {
		s.records[objectType] = make(map[string]map[string]interface{})
	}
	s.records[objectType][id] = copyRecord(record)
	return id
}

// SeedRelated links a child record under a parent's relationship name
func (s *Server) SeedRelated(parentType, parentID, relationship, childType, childID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := parentType + "/" + parentID
	if s.related[key] == nil {
		s.related[key] = make(map[string][]string)
	}
	s.related[key][relationship] = append(s.related[key][relationship], childType+"/"+childID)
}

// Record returns a copy of a stored record
func (s *Server) Record(objectType, id string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[objectType][id]
	if !ok {
		return nil, false
	}
	return copyRecord(record), true
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.AuthCalls++
	s.RejectToken = false
	s.mu.Unlock()

	if r.PostFormValue("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" ||
		r.PostFormValue("assertion") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "grant or assertion missing",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": AccessToken,
		"instance_url": s.URL,
		"token_type":   "Bearer",
		"issued_at":    "1725000000000",
	})
}

// authorized rejects the request when token rejection is armed or the bearer
// token is missing
func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	reject := s.RejectToken
	s.RejectToken = false
	s.mu.Unlock()

	if reject || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeError(w, http.StatusUnauthorized, "INVALID_SESSION_ID", "Session expired or invalid")
		return false
	}
	return true
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	objectType := chi.URLParam(r, "type")

	var record map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}

	id := s.Seed(objectType, "", record)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      id,
		"success": true,
		"errors":  []interface{}{},
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	objectType := chi.URLParam(r, "type")
	id := chi.URLParam(r, "id")

	record, ok := s.Record(objectType, id)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Provided external ID field does not exist or is not accessible: %s", id))
		return
	}

	if fields := r.URL.Query().Get("fields"); fields != "" {
		filtered := make(map[string]interface{})
		for _, name := range strings.Split(fields, ",") {
			if value, ok := record[name]; ok {
				filtered[name] = value
			}
		}
		record = filtered
	}

	record["attributes"] = map[string]interface{}{"type": objectType}
	record["Id"] = id
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	objectType := chi.URLParam(r, "type")
	id := chi.URLParam(r, "id")

	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[objectType][id]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "record not found")
		return
	}
	for k, v := range patch {
		record[k] = v
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	objectType := chi.URLParam(r, "type")
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[objectType][id]; !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "record not found")
		return
	}
	delete(s.records[objectType], id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	key := chi.URLParam(r, "type") + "/" + chi.URLParam(r, "id")
	relationship := chi.URLParam(r, "relationship")

	s.mu.Lock()
	refs := append([]string(nil), s.related[key][relationship]...)
	s.mu.Unlock()

	records := make([]map[string]interface{}, 0, len(refs))
	for _, ref := range refs {
		parts := strings.SplitN(ref, "/", 2)
		if record, ok := s.Record(parts[0], parts[1]); ok {
			record["Id"] = parts[1]
			record["attributes"] = map[string]interface{}{"type": parts[0]}
			records = append(records, record)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalSize": len(records),
		"done":      true,
		"records":   records,
	})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	objectType := chi.URLParam(r, "type")

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[objectType]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such object type")
		return
	}

	seen := make(map[string]bool)
	fields := []map[string]interface{}{
		{"name": "Id", "label": "Record ID", "type": "id", "nillable": false, "createable": false, "updateable": false},
	}
	for _, record := range stored {
		for name := range record {
			if name == "Id" || seen[name] {
				continue
			}
			seen[name] = true
			fields = append(fields, map[string]interface{}{
				"name": name, "label": name, "type": "string",
				"nillable": true, "createable": true, "updateable": true,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":       objectType,
		"label":      objectType,
		"custom":     strings.HasSuffix(objectType, "__c"),
		"createable": true,
		"updateable": true,
		"fields":     fields,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, []map[string]interface{}{
		{"errorCode": code, "message": message},
	})
}

func copyRecord(record map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}

func newID() string {
	return "001" + strings.ReplaceAll(uuid.NewString(), "-", "")[:15]
}
