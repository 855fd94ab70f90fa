package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanban/api/internal/engine"
	"kanban/api/internal/search"
	"kanban/api/internal/store"
)

const (
	ownerID    = "user-owner"
	strangerID = "user-stranger"
)

type testServer struct {
	handler http.Handler
	store   *store.MemoryStore
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts HTTPOptions) *testServer {
	t.Helper()
	memory := store.NewMemoryStore()
	return &testServer{handler: newHandler(memory, opts), store: memory}
}

func newHandler(dataStore store.Store, opts HTTPOptions) http.Handler {
	logger := quietLogger()
	eng := engine.New(dataStore, engine.Options{
		Logger: logger,
		Retry: engine.RetryPolicy{
			MaxAttempts: 5,
			BaseDelay:   time.Millisecond,
			Multiplier:  2,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
	})
	searchService := search.NewService(nil, search.NewScan(dataStore), nil, logger)
	service := New(dataStore, eng, searchService, logger)
	opts.Logger = logger
	return NewHTTPServer(service, HeaderResolver{}, opts).Handler()
}

func (ts *testServer) do(t *testing.T, method, path, actor string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != "" {
		req.Header.Set(headerActorID, actor)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

type boardResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	IsPublic bool   `json:"isPublic"`
	Columns  []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Order int    `json:"order"`
		Cards []struct {
			ID       string `json:"id"`
			ColumnID string `json:"columnId"`
			Title    string `json:"title"`
			Order    int    `json:"order"`
		} `json:"cards"`
	} `json:"columns"`
}

func decodeBoard(t *testing.T, raw []byte) boardResponse {
	t.Helper()
	var board boardResponse
	require.NoError(t, json.Unmarshal(raw, &board), string(raw))
	return board
}

func (ts *testServer) createBoard(t *testing.T, body string) boardResponse {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/boards", ownerID, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBoard(t, rr.Body.Bytes())
}

func (ts *testServer) getBoard(t *testing.T, boardID string) boardResponse {
	t.Helper()
	rr := ts.do(t, http.MethodGet, "/api/boards/"+boardID, ownerID, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeBoard(t, rr.Body.Bytes())
}

func (ts *testServer) patch(t *testing.T, boardID, body string) boardResponse {
	t.Helper()
	rr := ts.do(t, http.MethodPatch, "/api/boards/"+boardID, ownerID, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out struct {
		Board json.RawMessage `json:"board"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return decodeBoard(t, out.Board)
}

func cardTitles(board boardResponse, column int) []string {
	titles := []string{}
	for i, card := range board.Columns[column].Cards {
		if card.Order != i {
			return nil
		}
		titles = append(titles, card.Title)
	}
	return titles
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})

	rr := ts.do(t, http.MethodGet, "/api/health", "", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeMap(t, rr)["ok"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
}

type pingStore struct {
	store.Store
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		ts := newTestServer(t, HTTPOptions{})

		rr := ts.do(t, http.MethodGet, "/api/ready", "", "")

		require.Equal(t, http.StatusOK, rr.Code)
		body := decodeMap(t, rr)
		assert.Equal(t, "ready", body["status"])
		checks := body["checks"].(map[string]any)
		assert.Equal(t, "ok", checks["database"].(map[string]any)["status"])
		assert.Equal(t, "ok", checks["search"].(map[string]any)["status"])
	})

	t.Run("database down", func(t *testing.T) {
		handler := newHandler(pingStore{Store: store.NewMemoryStore(), err: errors.New("connection refused")}, HTTPOptions{})
		req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		body := decodeMap(t, rr)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, "not_ready", body["status"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine.NewMetrics(reg)
	ts := newTestServer(t, HTTPOptions{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	rr := ts.do(t, http.MethodGet, "/metrics", "", "")

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})

	rr := ts.do(t, http.MethodGet, "/api/nope", ownerID, "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", decodeMap(t, rr)["code"])
}

func TestBoardRoutesRequireActor(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	board := ts.createBoard(t, `{"title":"Roadmap"}`)

	for _, tc := range []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/boards", `{"title":"x"}`},
		{http.MethodGet, "/api/boards/" + board.ID, ""},
		{http.MethodPatch, "/api/boards/" + board.ID, `{"title":"x"}`},
		{http.MethodPost, "/api/boards/" + board.ID + "/cards/move", `{}`},
		{http.MethodGet, "/api/boards/" + board.ID + "/activity", ""},
		{http.MethodGet, "/api/boards/" + board.ID + "/search?q=x", ""},
	} {
		rr := ts.do(t, tc.method, tc.path, "", tc.body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, "UNAUTHORIZED", decodeMap(t, rr)["code"])
	}
}

func TestCreateAndGetBoard(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})

	created := ts.createBoard(t, `{"title":"Roadmap","columns":["Todo","Doing","Done"]}`)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Roadmap", created.Title)

	board := ts.getBoard(t, created.ID)
	require.Len(t, board.Columns, 3)
	for i, title := range []string{"Todo", "Doing", "Done"} {
		assert.Equal(t, title, board.Columns[i].Title)
		assert.Equal(t, i, board.Columns[i].Order)
		assert.Empty(t, board.Columns[i].Cards)
	}
}

func TestCreateBoardValidation(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})

	for _, body := range []string{`{"title":"  "}`, `{"title":"x","theme":"blue"}`, `{"title":"x","columns":[""]}`, `{"title":`} {
		rr := ts.do(t, http.MethodPost, "/api/boards", ownerID, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, "VALIDATION_FAILED", decodeMap(t, rr)["code"], body)
	}
}

func TestGetMissingBoard(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})

	rr := ts.do(t, http.MethodGet, "/api/boards/missing", ownerID, "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	body := decodeMap(t, rr)
	assert.Equal(t, "NOT_FOUND", body["code"])
	assert.Equal(t, "Board not found", body["error"])
}

func TestPatchBoardBothFormats(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap","columns":["Todo","Doing","Done"]}`)
	todo := created.Columns[0].ID

	board := ts.patch(t, created.ID, `{"cards":[
		{"columnId":"`+todo+`","title":"Write docs"},
		{"columnId":"`+todo+`","title":"Ship it"}
	]}`)
	assert.Equal(t, []string{"Write docs", "Ship it"}, cardTitles(board, 0))

	board = ts.patch(t, created.ID, `[{"op":"replace","path":"/title","value":"Renamed"}]`)
	assert.Equal(t, "Renamed", board.Title)

	board = ts.patch(t, created.ID, `[{"op":"remove","path":"/columns/1"}]`)
	require.Len(t, board.Columns, 2)
	assert.Equal(t, "Todo", board.Columns[0].Title)
	assert.Equal(t, "Done", board.Columns[1].Title)
	assert.Equal(t, 1, board.Columns[1].Order)
}

func TestPatchBoardReportsApplied(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap","columns":["Todo"]}`)

	rr := ts.do(t, http.MethodPatch, "/api/boards/"+created.ID, ownerID,
		`{"title":"Next","cards":[{"columnId":"`+created.Columns[0].ID+`","title":"One"}]}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	applied := decodeMap(t, rr)["applied"].(map[string]any)
	assert.Equal(t, true, applied["boardChanged"])
	assert.Len(t, applied["cards"], 1)
	assert.Equal(t, float64(1), applied["activity"])
}

func TestPatchBoardRejections(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap","columns":["Todo"]}`)
	path := "/api/boards/" + created.ID

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"schema violation", `{"theme":"blue"}`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"unknown op", `[{"op":"frobnicate","path":"/title"}]`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"not json", `{"title":`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"unknown card", `{"cards":[{"id":"nope","title":"x"}]}`, http.StatusNotFound, "NOT_FOUND"},
		{"unknown column", `{"cards":[{"columnId":"nope","title":"x"}]}`, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPatch, path, ownerID, tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, tc.code, decodeMap(t, rr)["code"])
		})
	}

	board := ts.getBoard(t, created.ID)
	assert.Equal(t, "Roadmap", board.Title)
	assert.Empty(t, board.Columns[0].Cards)
}

func TestPatchBoardValidationDetails(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap"}`)

	rr := ts.do(t, http.MethodPatch, "/api/boards/"+created.ID, ownerID, `{"theme":"blue"}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	details := decodeMap(t, rr)["details"].(map[string]any)
	errs := details["errors"].([]any)
	require.NotEmpty(t, errs)
	assert.Contains(t, rr.Body.String(), "/theme")
}

func TestPatchBodyTooLarge(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap"}`)

	body := `{"title":"` + strings.Repeat("x", maxPatchBytes) + `"}`
	rr := ts.do(t, http.MethodPatch, "/api/boards/"+created.ID, ownerID, body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestMoveCard(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap","columns":["Todo","Done"]}`)
	todo, done := created.Columns[0].ID, created.Columns[1].ID
	board := ts.patch(t, created.ID, `{"cards":[
		{"columnId":"`+todo+`","title":"A"},
		{"columnId":"`+todo+`","title":"B"},
		{"columnId":"`+todo+`","title":"C"}
	]}`)
	moving := board.Columns[0].Cards[0].ID

	rr := ts.do(t, http.MethodPost, "/api/boards/"+created.ID+"/cards/move", ownerID,
		`{"cardId":"`+moving+`","targetColumnId":"`+done+`","order":0}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeMap(t, rr)
	assert.Equal(t, moving, body["cardId"])
	assert.Equal(t, todo, body["fromColumnId"])
	assert.Equal(t, float64(0), body["fromOrder"])
	assert.Equal(t, done, body["toColumnId"])
	assert.Equal(t, float64(0), body["toOrder"])
	assert.Equal(t, float64(1), body["attempts"])

	board = ts.getBoard(t, created.ID)
	assert.Equal(t, []string{"B", "C"}, cardTitles(board, 0))
	assert.Equal(t, []string{"A"}, cardTitles(board, 1))
}

func TestMoveCardClampsOrder(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap","columns":["Todo"]}`)
	todo := created.Columns[0].ID
	board := ts.patch(t, created.ID, `{"cards":[
		{"columnId":"`+todo+`","title":"A"},
		{"columnId":"`+todo+`","title":"B"}
	]}`)

	rr := ts.do(t, http.MethodPost, "/api/boards/"+created.ID+"/cards/move", ownerID,
		`{"cardId":"`+board.Columns[0].Cards[0].ID+`","targetColumnId":"`+todo+`","order":99}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, float64(1), decodeMap(t, rr)["toOrder"])
	assert.Equal(t, []string{"B", "A"}, cardTitles(ts.getBoard(t, created.ID), 0))
}

func TestMoveCardRejections(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap","columns":["Todo"]}`)
	todo := created.Columns[0].ID
	board := ts.patch(t, created.ID, `{"cards":[{"columnId":"`+todo+`","title":"A"}]}`)
	card := board.Columns[0].Cards[0].ID
	path := "/api/boards/" + created.ID + "/cards/move"

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"missing order", `{"cardId":"` + card + `","targetColumnId":"` + todo + `"}`, http.StatusBadRequest},
		{"negative order", `{"cardId":"` + card + `","targetColumnId":"` + todo + `","order":-1}`, http.StatusBadRequest},
		{"missing card id", `{"targetColumnId":"` + todo + `","order":0}`, http.StatusBadRequest},
		{"unknown card", `{"cardId":"nope","targetColumnId":"` + todo + `","order":0}`, http.StatusNotFound},
		{"bad json", `{"cardId":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, path, ownerID, tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestBoardAccess(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	private := ts.createBoard(t, `{"title":"Private"}`)
	public := ts.createBoard(t, `{"title":"Public","isPublic":true}`)

	rr := ts.do(t, http.MethodGet, "/api/boards/"+private.ID, strangerID, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "FORBIDDEN", decodeMap(t, rr)["code"])

	rr = ts.do(t, http.MethodGet, "/api/boards/"+public.ID, strangerID, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodPatch, "/api/boards/"+public.ID, strangerID, `{"title":"Mine"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/boards/"+public.ID+"/activity", strangerID, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAddMember(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap"}`)
	path := "/api/boards/" + created.ID

	rr := ts.do(t, http.MethodPatch, path, strangerID, `{"title":"Mine"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, http.MethodPost, path+"/members", ownerID, `{"userId":"`+strangerID+`","displayName":"Sam"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Len(t, decodeMap(t, rr)["members"], 2)

	rr = ts.do(t, http.MethodPatch, path, strangerID, `{"title":"Ours"}`)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(t, http.MethodPost, path+"/members", strangerID, `{"userId":"user-3"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, http.MethodPost, path+"/members", ownerID, `{"userId":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAssigneesMustBeMembers(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap","columns":["Todo"]}`)
	todo := created.Columns[0].ID

	rr := ts.do(t, http.MethodPatch, "/api/boards/"+created.ID, ownerID,
		`{"cards":[{"columnId":"`+todo+`","title":"A","assignees":["`+strangerID+`"]}]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	rr = ts.do(t, http.MethodPatch, "/api/boards/"+created.ID, ownerID,
		`{"cards":[{"columnId":"`+todo+`","title":"A","assignees":["`+ownerID+`"]}]}`)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestActivityFeed(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap","columns":["Todo","Done"]}`)
	todo, done := created.Columns[0].ID, created.Columns[1].ID
	board := ts.patch(t, created.ID, `{"cards":[{"columnId":"`+todo+`","title":"A"},{"columnId":"`+todo+`","title":"B"}]}`)
	cardA := board.Columns[0].Cards[0].ID

	rr := ts.do(t, http.MethodPost, "/api/boards/"+created.ID+"/cards/move", ownerID,
		`{"cardId":"`+cardA+`","targetColumnId":"`+done+`","order":0}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(t, http.MethodGet, "/api/boards/"+created.ID+"/activity", ownerID, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	items := decodeMap(t, rr)["items"].([]any)
	require.Len(t, items, 3)
	newest := items[0].(map[string]any)
	assert.Equal(t, engine.ActionCardMoved, newest["action"])
	assert.Equal(t, cardA, newest["cardId"])
	assert.Equal(t, ownerID, newest["actorId"])
	details := newest["details"].(map[string]any)
	assert.Equal(t, "Todo", details["fromColumnTitle"])
	assert.Equal(t, "Done", details["toColumnTitle"])

	rr = ts.do(t, http.MethodGet, "/api/boards/"+created.ID+"/activity?cardId="+cardA, ownerID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeMap(t, rr)["items"], 2)

	rr = ts.do(t, http.MethodGet, "/api/boards/"+created.ID+"/activity?limit=1", ownerID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	page := decodeMap(t, rr)
	assert.Len(t, page["items"], 1)
	cursor, ok := page["nextBefore"].(string)
	require.True(t, ok)

	rr = ts.do(t, http.MethodGet, "/api/boards/"+created.ID+"/activity?limit=5&before="+cursor, ownerID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeMap(t, rr)["items"], 2)

	rr = ts.do(t, http.MethodGet, "/api/boards/"+created.ID+"/activity?limit=lots", ownerID, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSearchCards(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{})
	created := ts.createBoard(t, `{"title":"Roadmap","columns":["Todo"]}`)
	todo := created.Columns[0].ID
	board := ts.patch(t, created.ID, `{"cards":[
		{"columnId":"`+todo+`","title":"Write docs"},
		{"columnId":"`+todo+`","title":"Fix login bug","description":"users see a blank page"}
	]}`)

	rr := ts.do(t, http.MethodGet, "/api/boards/"+created.ID+"/search?q=login", ownerID, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var response search.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	require.Len(t, response.Results, 1)
	assert.Equal(t, board.Columns[0].Cards[1].ID, response.Results[0].CardID)
	assert.Equal(t, 1, response.Total)
	assert.Equal(t, "login", response.Query)

	rr = ts.do(t, http.MethodGet, "/api/boards/"+created.ID+"/search?q=", ownerID, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/boards/"+created.ID+"/search?q=docs&offset=x", ownerID, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, HTTPOptions{CORSOrigin: "https://app.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/api/boards/b1", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Less(t, rr.Code, 300)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestEngineErrorMapping(t *testing.T) {
	cases := []struct {
		category engine.Category
		status   int
		code     string
	}{
		{engine.CategoryValidation, http.StatusBadRequest, "VALIDATION_FAILED"},
		{engine.CategoryNotFound, http.StatusNotFound, "NOT_FOUND"},
		{engine.CategoryConflict, http.StatusConflict, "WRITE_CONFLICT"},
		{engine.CategoryInternal, http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tc := range cases {
		err := engineError(&engine.Error{Category: tc.category, Entity: "card", ID: "k1", Op: "update", Err: errors.New("boom")})
		status, code, _, details := mapError(err)
		assert.Equal(t, tc.status, status, string(tc.category))
		assert.Equal(t, tc.code, code)
		assert.Equal(t, map[string]any{"entity": "card", "id": "k1", "op": "update"}, details)
	}

	status, code, message, _ := mapError(errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "SERVER_ERROR", code)
	assert.Equal(t, "Server error", message)

	// duplicate keys from the database must not leak constraint names
	pgErr := &pgconn.PgError{Code: "23505", Message: `duplicate key value violates unique constraint "board_columns_pkey"`}
	cause := fmt.Errorf("insert column: %w", errors.Join(store.ErrDuplicate, pgErr))
	status, code, message, details := mapError(engineError(&engine.Error{
		Category: engine.CategoryOf(cause), Entity: "column", ID: "c1", Op: "create", Err: cause,
	}))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", code)
	assert.Equal(t, "column c1 already exists", message)
	assert.NotContains(t, message, "board_columns_pkey")
	assert.NotContains(t, message, "23505")
	assert.Equal(t, map[string]any{"entity": "column", "id": "c1", "op": "create"}, details)

	_, _, message, _ = mapError(engineError(&engine.Error{Category: engine.CategoryValidation, Entity: "card", Op: "update", Err: errors.New("raw")}))
	assert.Equal(t, "Invalid request", message)

	_, _, message, _ = mapError(engineError(&engine.Error{Category: engine.CategoryValidation, Entity: "label", Op: "attach", Reason: "label belongs to another board", Err: errors.New("raw")}))
	assert.Equal(t, "label belongs to another board", message)
}

func TestWriteErrorShape(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusConflict, "WRITE_CONFLICT", "try again", nil)

	var body map[string]any
	require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&body))
	assert.Equal(t, map[string]any{"code": "WRITE_CONFLICT", "error": "try again"}, body)
}
