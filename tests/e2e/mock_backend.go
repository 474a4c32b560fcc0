//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockBackend simulates the hosted REST backend for e2e testing. It serves
// JSON arrays under /rest/v1/{collection}, records every request, and
// supports per-collection failure injection.
type MockBackend struct {
	server *httptest.Server
	mu     sync.Mutex

	// records holds the raw JSON array served for each collection.
	records map[string]json.RawMessage

	// fetchCounts and saveCounts track requests per collection.
	fetchCounts map[string]int
	saveCounts  map[string]int

	// failing collections respond with 500 until cleared.
	failing map[string]bool

	// saved holds the last body POSTed for each collection.
	saved map[string]json.RawMessage
}

// NewMockBackend creates and starts a mock backend seeded with a small
// fixture set for every collection.
func NewMockBackend() *MockBackend {
	m := &MockBackend{
		records:     make(map[string]json.RawMessage),
		fetchCounts: make(map[string]int),
		saveCounts:  make(map[string]int),
		failing:     make(map[string]bool),
		saved:       make(map[string]json.RawMessage),
	}

	m.records["cocktails"] = json.RawMessage(`[
		{"id": "ct_1", "name": "Negroni", "instructions": ["Stir", "Strain"], "ingredients": [{"ingredient_id": "ing_1", "amount": "30ml"}], "category": "cat_1", "difficulty": "easy", "glass_type_id": "gl_1"},
		{"id": "ct_2", "name": "Daiquiri", "instructions": ["Shake", "Strain"], "ingredients": [{"ingredient_id": "ing_2", "amount": "60ml"}], "category": "cat_1", "difficulty": "medium", "glass_type_id": "gl_2"}
	]`)
	m.records["ingredients"] = json.RawMessage(`[
		{"id": "ing_1", "name": "Gin", "category": "spirit", "abv": 40.0},
		{"id": "ing_2", "name": "White Rum", "category": "spirit", "abv": 37.5},
		{"id": "ing_3", "name": "Lime Juice", "category": "juice"}
	]`)
	m.records["glass_types"] = json.RawMessage(`[
		{"id": "gl_1", "name": "Rocks"},
		{"id": "gl_2", "name": "Coupe"}
	]`)
	m.records["categories"] = json.RawMessage(`[
		{"id": "cat_1", "name": "Classics", "color": "#aa3333"}
	]`)

	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the backend's base URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the backend.
func (m *MockBackend) Close() {
	m.server.Close()
}

func (m *MockBackend) handle(w http.ResponseWriter, r *http.Request) {
	collection, ok := strings.CutPrefix(r.URL.Path, "/rest/v1/")
	if !ok || collection == "" {
		http.Error(w, `{"message": "not found"}`, http.StatusNotFound)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing[collection] {
		http.Error(w, `{"message": "service unavailable"}`, http.StatusInternalServerError)
		return
	}

	switch r.Method {
	case http.MethodGet:
		m.fetchCounts[collection]++
		data, ok := m.records[collection]
		if !ok {
			data = json.RawMessage(`[]`)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)

	case http.MethodPost:
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"message": "invalid body"}`, http.StatusBadRequest)
			return
		}
		m.saveCounts[collection]++
		m.saved[collection] = body
		m.records[collection] = body
		w.WriteHeader(http.StatusCreated)

	default:
		http.Error(w, `{"message": "method not allowed"}`, http.StatusMethodNotAllowed)
	}
}

// FetchCount returns how many GETs have hit the given collection.
func (m *MockBackend) FetchCount(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCounts[collection]
}

// SaveCount returns how many POSTs have hit the given collection.
func (m *MockBackend) SaveCount(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCounts[collection]
}

// SetFailing toggles failure injection for a collection.
func (m *MockBackend) SetFailing(collection string, failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[collection] = failing
}

// SetRecords replaces the served payload for a collection.
func (m *MockBackend) SetRecords(collection string, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[collection] = json.RawMessage(data)
}

// Saved returns the last body POSTed for a collection, or nil.
func (m *MockBackend) Saved(collection string) json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[collection]
}
