package database

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sticker-studio-server/modules/common/config"
	"sticker-studio-server/modules/common/model"
)

type restCall struct {
	method string
	path   string
	query  map[string]string
	body   map[string]any
}

// fakeRest answers every PostgREST call with rows and records what it saw.
func fakeRest(t *testing.T, rows string) (*Client, *[]restCall) {
	t.Helper()
	var calls []restCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := restCall{method: r.Method, path: r.URL.Path, query: map[string]string{}}
		for k := range r.URL.Query() {
			call.query[k] = r.URL.Query().Get(k)
		}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &call.body))
		}
		calls = append(calls, call)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, rows)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(&config.Config{SupabaseURL: srv.URL, SupabaseServiceKey: "service"})
	require.NoError(t, err)
	return c, &calls
}

func TestFetchGeneration(t *testing.T) {
	c, calls := fakeRest(t, `[{"generation_id":"g1","user_id":"u1","subject":"Sci-Fi","style":"ghibli","status":"pending","created_at":"2026-01-02T03:04:05Z"}]`)

	gen, err := c.FetchGeneration(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", gen.GenerationID)
	assert.Equal(t, model.StatusPending, gen.Status)
	assert.Nil(t, gen.ResultImageID)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, "/rest/v1/"+tableGenerations, call.path)
	assert.Equal(t, "eq.g1", call.query["generation_id"])
}

func TestFetchGenerationNotFound(t *testing.T) {
	c, _ := fakeRest(t, `[]`)
	_, err := c.FetchGeneration(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransition(t *testing.T) {
	c, calls := fakeRest(t, `[{"generation_id":"g1","status":"completed"}]`)

	changed, err := c.Transition(context.Background(), "g1",
		[]string{model.StatusProcessing}, model.StatusCompleted,
		map[string]interface{}{"result_image_id": "img9"})
	require.NoError(t, err)
	assert.True(t, changed)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPatch, call.method)
	assert.Equal(t, "eq.g1", call.query["generation_id"])
	assert.Equal(t, "in.(processing)", call.query["status"])
	assert.Equal(t, "completed", call.body["status"])
	assert.Equal(t, "img9", call.body["result_image_id"])
	assert.Contains(t, call.body, "completed_at")
	assert.NotContains(t, call.body, "started_at")
}

func TestTransitionNoMatch(t *testing.T) {
	c, calls := fakeRest(t, `[]`)

	changed, err := c.Transition(context.Background(), "g1",
		[]string{model.StatusPending}, model.StatusProcessing, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Contains(t, (*calls)[0].body, "started_at")
}

func TestCreateUserConflict(t *testing.T) {
	c, calls := fakeRest(t, `[{"user_id":"u1","username":"momo"}]`)

	_, err := c.CreateUser(context.Background(), "momo", "hash")
	assert.ErrorIs(t, err, ErrConflict)
	require.Len(t, *calls, 1, "no insert after the username lookup hits")
	assert.Equal(t, "eq.momo", (*calls)[0].query["username"])
}

func TestListImagesIncludesShared(t *testing.T) {
	c, calls := fakeRest(t, `[{"image_id":"a","kind":"background","owner_id":null},{"image_id":"b","kind":"background","owner_id":"u1"}]`)

	images, err := c.ListImages(context.Background(), "u1", model.KindBackground)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.True(t, images[0].Shared())
	assert.False(t, images[1].Shared())

	call := (*calls)[0]
	assert.Equal(t, "eq.background", call.query["kind"])
	assert.Contains(t, call.query["or"], "owner_id.eq.u1")
	assert.Contains(t, call.query["or"], "owner_id.is.null")
}

func TestRestErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"42P01","message":"relation does not exist"}`)
	}))
	defer srv.Close()

	c, err := NewClient(&config.Config{SupabaseURL: srv.URL, SupabaseServiceKey: "service"})
	require.NoError(t, err)

	_, err = c.FetchImage(context.Background(), "img1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
