package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testAnonKey = "anon-key"

var testSession = catalog.Session{AccessToken: "user-token", UserID: "user-1", Role: catalog.RoleEditor}

type capturedRequest struct {
	method string
	path   string
	query  map[string][]string
	header http.Header
	body   string
}

// fakeServer serves recipe_seasons from memory and answers every other table from a
// scripted response.
type fakeServer struct {
	mu        sync.Mutex
	requests  []capturedRequest
	seasons   []seasonRow
	responses map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeServer(t *testing.T) (*fakeServer, *Client) {
	t.Helper()
	fake := &fakeServer{responses: map[string]func(http.ResponseWriter, *http.Request){}}
	server := httptest.NewServer(http.HandlerFunc(fake.serveHTTP))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL + "/", AnonKey: testAnonKey, Timeout: time.Second})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return fake, client
}

func (f *fakeServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, capturedRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.Query(),
		header: r.Header.Clone(),
		body:   string(body),
	})
	f.mu.Unlock()

	table := strings.TrimPrefix(r.URL.Path, restPath+"/")
	if table == tableRecipeSeasons {
		f.serveSeasons(w, r, body)
		return
	}
	f.mu.Lock()
	respond, ok := f.responses[r.Method+" "+table]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	respond(w, r)
}

func (f *fakeServer) serveSeasons(w http.ResponseWriter, r *http.Request, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.seasons)
	case http.MethodDelete:
		recipeID := strings.TrimPrefix(r.URL.Query().Get("recipe_id"), "eq.")
		kept := f.seasons[:0]
		for _, row := range f.seasons {
			if row.RecipeID != recipeID {
				kept = append(kept, row)
			}
		}
		f.seasons = kept
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		var rows []seasonRow
		if err := json.Unmarshal(body, &rows); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.seasons = append(f.seasons, rows...)
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeServer) respond(method, table string, status int, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+table] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, payload)
	}
}

func (f *fakeServer) last() capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(Config{AnonKey: testAnonKey}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config for missing url, got %v", err)
	}
	if _, err := NewClient(Config{BaseURL: "http://localhost"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config for missing anon key, got %v", err)
	}
	client, err := NewClient(Config{BaseURL: "http://localhost/", AnonKey: testAnonKey})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.restURL != "http://localhost/rest/v1" || client.timeout != defaultTimeout {
		t.Fatalf("unexpected defaults: %q %v", client.restURL, client.timeout)
	}
	if client.transport != http.DefaultTransport {
		t.Fatalf("expected the default transport")
	}
}

type countingTransport struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return http.DefaultTransport.RoundTrip(req)
}

func TestConfiguredTransportCarriesRequests(t *testing.T) {
	fake := &fakeServer{responses: map[string]func(http.ResponseWriter, *http.Request){}}
	server := httptest.NewServer(http.HandlerFunc(fake.serveHTTP))
	t.Cleanup(server.Close)
	fake.respond(http.MethodGet, tableIngredients, http.StatusOK, `[]`)

	transport := &countingTransport{}
	client, err := NewClient(Config{BaseURL: server.URL, AnonKey: testAnonKey, Transport: transport})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	if _, err := client.ListIngredients(context.Background(), testSession); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transport.calls != 1 {
		t.Fatalf("expected the request to go through the configured transport, got %d calls", transport.calls)
	}
	if got := fake.last().query["order"]; len(got) != 1 || got[0] != "name.asc.nullslast" {
		t.Fatalf("expected alphabetical order, got %v", got)
	}
}

func TestSetRecipeSeasonsRoundTrip(t *testing.T) {
	fake, client := newFakeServer(t)
	ctx := context.Background()
	fake.seasons = []seasonRow{{RecipeID: "r1", Season: "summer"}, {RecipeID: "r2", Season: "fall"}}

	err := client.SetRecipeSeasons(ctx, testSession, "r1", []catalog.Season{catalog.SeasonWinter, catalog.SeasonSpring})
	if err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}

	links, err := client.ListRecipeSeasons(ctx, testSession)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	got := map[catalog.Season]bool{}
	for _, link := range links {
		if link.RecipeID == "r1" {
			got[link.Season] = true
		}
	}
	if len(got) != 2 || !got[catalog.SeasonWinter] || !got[catalog.SeasonSpring] {
		t.Fatalf("expected exactly winter and spring for r1, got %v", links)
	}
	if len(links) != 3 {
		t.Fatalf("expected other recipes to keep their seasons, got %v", links)
	}

	fake.mu.Lock()
	methods := []string{fake.requests[0].method, fake.requests[1].method}
	fake.mu.Unlock()
	if methods[0] != http.MethodDelete || methods[1] != http.MethodPost {
		t.Fatalf("expected delete then insert, got %v", methods)
	}
}

func TestSetRecipeSeasonsWithEmptySetOnlyDeletes(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.seasons = []seasonRow{{RecipeID: "r1", Season: "summer"}}

	if err := client.SetRecipeSeasons(context.Background(), testSession, "r1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.requests) != 1 || len(fake.seasons) != 0 {
		t.Fatalf("expected a single delete, got %d requests and %v", len(fake.requests), fake.seasons)
	}
}

func TestRequestsCarryHeadersAndFilters(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.respond(http.MethodGet, tableRecipes, http.StatusOK, `[]`)

	if _, err := client.ListMyRecipes(context.Background(), testSession); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	request := fake.last()
	if request.path != "/rest/v1/recipes" {
		t.Fatalf("unexpected path %q", request.path)
	}
	if request.header.Get("apikey") != testAnonKey {
		t.Fatalf("expected apikey header, got %q", request.header.Get("apikey"))
	}
	if request.header.Get("Authorization") != "Bearer user-token" {
		t.Fatalf("expected bearer access token, got %q", request.header.Get("Authorization"))
	}
	if got := request.query["created_by"]; len(got) != 1 || got[0] != "eq.user-1" {
		t.Fatalf("expected creator filter, got %v", got)
	}
	if got := request.query["order"]; len(got) != 1 || got[0] != "created_at.desc.nullslast" {
		t.Fatalf("expected newest-first order, got %v", got)
	}
}

func TestAnonymousRequestsFallBackToAnonKey(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.respond(http.MethodGet, tableIngredients, http.StatusOK, `[{"id":"i1","name":"Carrot"}]`)

	ingredients, err := client.ListIngredients(context.Background(), catalog.Session{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ingredients) != 1 || ingredients[0].Name != "Carrot" {
		t.Fatalf("unexpected ingredients %v", ingredients)
	}
	if fake.last().header.Get("Authorization") != "Bearer "+testAnonKey {
		t.Fatalf("expected anon key bearer")
	}
}

func TestListRecipeIngredientsFlattensEmbeddedName(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.respond(http.MethodGet, tableRecipeIngredients, http.StatusOK, `[
		{"recipe_id":"r1","ingredient_id":"i1","quantity":"2","unit":null,"comment":null,"ingredients":{"name":"Carrot"}},
		{"recipe_id":"r1","ingredient_id":"i9","quantity":null,"unit":"g","comment":"fresh","ingredients":null}
	]`)

	links, err := client.ListRecipeIngredients(context.Background(), testSession)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected two links, got %d", len(links))
	}
	if links[0].IngredientName != "Carrot" || links[0].Quantity != "2" || links[0].Unit != "" {
		t.Fatalf("unexpected first link %+v", links[0])
	}
	if links[1].IngredientName != "" || links[1].Comment != "fresh" {
		t.Fatalf("unexpected second link %+v", links[1])
	}
	if got := fake.last().query["select"]; len(got) != 1 || got[0] != linkColumns {
		t.Fatalf("expected embedded select, got %v", got)
	}
}

func TestListRecipesDecodesNullableColumns(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.respond(http.MethodGet, tableRecipes, http.StatusOK, `[
		{"id":"r1","name":"Soup","servings":4,"prep_minutes":5,"cook_minutes":15,"total_minutes":20,
		 "created_by":"user-1","instructions":null,"notes":null,
		 "created_at":"2024-05-01T10:00:00.123456+00:00","updated_at":null},
		{"id":"r2","name":null,"servings":null,"prep_minutes":10,"cook_minutes":null,"total_minutes":null,
		 "created_by":null,"instructions":"Mix","notes":"","created_at":"2024-05-02T08:30:00","updated_at":null}
	]`)

	recipes, err := client.ListRecipes(context.Background(), testSession)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recipes[0].TotalMinutes != 20 || recipes[0].CreatedAt.IsZero() || recipes[0].Instructions != "" {
		t.Fatalf("unexpected first recipe %+v", recipes[0])
	}
	if recipes[1].TotalMinutes != 10 || recipes[1].Name != "" || recipes[1].CreatedAt.Day() != 2 {
		t.Fatalf("unexpected second recipe %+v", recipes[1])
	}
}

func TestCreateRecipeSendsRepresentationPreference(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.respond(http.MethodPost, tableRecipes, http.StatusCreated, `[{"id":"r1","name":"Soup","servings":1,"prep_minutes":0,"cook_minutes":0,"total_minutes":0,"created_by":"user-1"}]`)

	recipe, err := client.CreateRecipe(context.Background(), testSession, catalog.NewRecipe{Name: "Soup", Servings: 1, CreatedBy: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recipe.ID != "r1" {
		t.Fatalf("unexpected recipe %+v", recipe)
	}
	request := fake.last()
	if request.header.Get("Prefer") != "return=representation" {
		t.Fatalf("expected representation preference, got %q", request.header.Get("Prefer"))
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(request.body), &payload); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if payload["name"] != "Soup" || payload["created_by"] != "user-1" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := payload["total_minutes"]; ok {
		t.Fatalf("total_minutes is computed by the store and must not be sent")
	}
}

func TestUpdateRecipeSendsOnlyAllowedColumns(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.respond(http.MethodPatch, tableRecipes, http.StatusOK, `[]`)

	name := "Stew"
	_, err := client.UpdateRecipe(context.Background(), testSession, "r1", catalog.RecipePatch{Name: &name})
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected not found for an empty representation, got %v", err)
	}
	request := fake.last()
	if request.body != `{"name":"Stew"}` {
		t.Fatalf("unexpected patch body %s", request.body)
	}
	if got := request.query["id"]; len(got) != 1 || got[0] != "eq.r1" {
		t.Fatalf("unexpected id filter %v", got)
	}
}

func TestLinkMutationsMatchRecipeAndIngredient(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.respond(http.MethodDelete, tableRecipeIngredients, http.StatusNoContent, ``)

	if err := client.DeleteRecipeIngredient(context.Background(), testSession, "r1", "i1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	request := fake.last()
	if request.query["recipe_id"][0] != "eq.r1" || request.query["ingredient_id"][0] != "eq.i1" {
		t.Fatalf("unexpected filters %v", request.query)
	}
}

func TestProfileLookups(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.respond(http.MethodGet, tableProfiles, http.StatusOK, `[]`)
	ctx := context.Background()

	profile, err := client.GetProfile(ctx, testSession, "user-1")
	if err != nil || profile != nil {
		t.Fatalf("expected absent profile, got %v %v", profile, err)
	}

	profiles, err := client.ListProfilesByIDs(ctx, testSession, nil)
	if err != nil || len(profiles) != 0 {
		t.Fatalf("expected empty result without ids, got %v %v", profiles, err)
	}
	requestCount := len(fake.requests)

	fake.respond(http.MethodGet, tableProfiles, http.StatusOK, `[{"id":"u1","first_name":"Jo","last_name":null,"role":"editor"}]`)
	profiles, err = client.ListProfilesByIDs(ctx, testSession, []string{"u1", "u2"})
	if err != nil || len(profiles) != 1 || profiles[0].Role != catalog.RoleEditor || profiles[0].LastName != "" {
		t.Fatalf("unexpected profiles %v %v", profiles, err)
	}
	if len(fake.requests) != requestCount+1 {
		t.Fatalf("expected one request for the id lookup")
	}
	if got := fake.last().query["id"]; len(got) != 1 || got[0] != "in.(u1,u2)" {
		t.Fatalf("unexpected in filter %v", got)
	}
}

func TestCreateProfileIgnoresDuplicates(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.respond(http.MethodPost, tableProfiles, http.StatusCreated, ``)

	err := client.CreateProfile(context.Background(), testSession, catalog.Profile{ID: "user-1", Role: catalog.RoleReader})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	request := fake.last()
	prefer := strings.Join(request.header.Values("Prefer"), ",")
	if !strings.Contains(prefer, "resolution=ignore-duplicates") || !strings.Contains(prefer, "return=minimal") {
		t.Fatalf("expected minimal return with duplicate resolution, got %q", prefer)
	}
	if request.body != `{"id":"user-1","role":"reader"}` {
		t.Fatalf("unexpected body %s", request.body)
	}

	fake.respond(http.MethodPost, tableProfiles, http.StatusConflict, `{"code":"23505","message":"duplicate key value"}`)
	if err := client.CreateProfile(context.Background(), testSession, catalog.Profile{ID: "user-1"}); err != nil {
		t.Fatalf("expected a conflict to count as success, got %v", err)
	}

	fake.respond(http.MethodPost, tableProfiles, http.StatusForbidden, `{"code":"42501","message":"denied"}`)
	err = client.CreateProfile(context.Background(), testSession, catalog.Profile{ID: "user-1"})
	if !errors.Is(err, catalog.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestAddRecipeIngredientKeepsCallerName(t *testing.T) {
	fake, client := newFakeServer(t)
	fake.respond(http.MethodPost, tableRecipeIngredients, http.StatusCreated,
		`[{"recipe_id":"r1","ingredient_id":"i1","quantity":"2","unit":"pcs","comment":null}]`)

	link, err := client.AddRecipeIngredient(context.Background(), testSession, catalog.RecipeIngredientLink{
		RecipeID: "r1", IngredientID: "i1", IngredientName: "Carrot", Quantity: "2", Unit: "pcs",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.IngredientName != "Carrot" || link.Quantity != "2" {
		t.Fatalf("unexpected link %+v", link)
	}
	if fake.last().header.Get("Prefer") != "return=representation" {
		t.Fatalf("expected representation preference, got %q", fake.last().header.Get("Prefer"))
	}
}

func TestRemoteErrorsCarryStatusAndMessage(t *testing.T) {
	fake, client := newFakeServer(t)
	core, logs := observer.New(zapcore.WarnLevel)
	client.logger = zap.New(core)
	fake.respond(http.MethodPost, tableRecipes, http.StatusForbidden,
		`{"code":"42501","message":"new row violates row-level security policy for table \"recipes\""}`)
	fake.respond(http.MethodGet, tableRecipes, http.StatusInternalServerError, `upstream exploded`)

	_, err := client.CreateRecipe(context.Background(), testSession, catalog.NewRecipe{Name: "Soup"})
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected remote error, got %T", err)
	}
	if remoteErr.StatusCode != http.StatusForbidden || remoteErr.Code != "42501" || remoteErr.Operation != "create_recipe" {
		t.Fatalf("unexpected remote error %+v", remoteErr)
	}
	if !strings.Contains(remoteErr.Message, "row-level security") {
		t.Fatalf("expected message from body, got %q", remoteErr.Message)
	}
	if !errors.Is(err, catalog.ErrPermissionDenied) {
		t.Fatalf("expected permission denial to be recognized")
	}

	_, err = client.ListRecipes(context.Background(), testSession)
	if !errors.As(err, &remoteErr) || remoteErr.Message != "upstream exploded" {
		t.Fatalf("expected raw body message, got %v", err)
	}
	if errors.Is(err, catalog.ErrPermissionDenied) {
		t.Fatalf("server errors are not permission denials")
	}
	if logs.FilterMessage("postgrest request failed").Len() != 2 {
		t.Fatalf("expected both failures to be logged")
	}
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	client, err := NewClient(Config{BaseURL: server.URL, AnonKey: testAnonKey, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	_, err = client.ListIngredients(context.Background(), testSession)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.StatusCode != 0 {
		t.Fatalf("expected transport remote error, got %v", err)
	}
}
