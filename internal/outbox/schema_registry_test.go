package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/events"
)

// fakeRegistry keeps subject -> schema -> id like the real registry's
// lookup and register endpoints.
type fakeRegistry struct {
	mu       sync.Mutex
	subjects map[string]map[string]int
	nextID   int
	paths    []string
}

func newFakeRegistry(t *testing.T) (*fakeRegistry, *httptest.Server) {
	t.Helper()
	f := &fakeRegistry{subjects: map[string]map[string]int{}, nextID: 100}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRegistry) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.EscapedPath())

	var body struct {
		Schema     string `json:"schema"`
		SchemaType string `json:"schemaType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SchemaType != "JSON" {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_code":42201,"message":"Invalid schema"}`))
		return
	}

	const prefix = "/subjects/"
	path := r.URL.Path[len(prefix):]
	register := false
	if n := len(path) - len("/versions"); n > 0 && path[n:] == "/versions" {
		path, register = path[:n], true
	}

	schemas := f.subjects[path]
	if id, ok := schemas[body.Schema]; ok {
		_ = json.NewEncoder(w).Encode(map[string]int{"id": id})
		return
	}
	if !register {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_code":40403,"message":"Schema not found"}`))
		return
	}
	if schemas == nil {
		schemas = map[string]int{}
		f.subjects[path] = schemas
	}
	f.nextID++
	schemas[body.Schema] = f.nextID
	_ = json.NewEncoder(w).Encode(map[string]int{"id": f.nextID})
}

func TestEnsureSchemaRegistersOnceAndReusesID(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeRegistry(t)
	client := NewSchemaRegistryClient(srv.URL + "/")

	schema := schemaCatalog[events.TypeWorkoutCreated].Schema
	first, err := client.EnsureSchema(ctx, "workout_events-value", schema)
	require.NoError(t, err)

	second, err := client.EnsureSchema(ctx, "workout_events-value", schema)
	require.NoError(t, err)
	require.Equal(t, first, second)

	changed, err := client.EnsureSchema(ctx, "workout_events-value", schemaCatalog[events.TypeWorkoutDeleted].Schema)
	require.NoError(t, err)
	require.NotEqual(t, first, changed)

	require.Equal(t, []string{
		"/subjects/workout_events-value",
		"/subjects/workout_events-value/versions",
		"/subjects/workout_events-value",
		"/subjects/workout_events-value",
		"/subjects/workout_events-value/versions",
	}, fake.paths)
}

func TestEnsureSchemaSurfacesRegistryErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error_code":50001,"message":"Error in the backend data store"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "workout_events-value", "{}")
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, http.StatusInternalServerError, regErr.Status)
	require.Equal(t, 50001, regErr.ErrorCode)
	require.Contains(t, err.Error(), "backend data store")
}
