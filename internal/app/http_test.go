package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) (*httptest.Server, *fixture) {
	t.Helper()
	f := newFixture()
	server := httptest.NewServer(NewHTTPServer(f.service, "*", 1<<20).Handler())
	t.Cleanup(server.Close)
	return server, f
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func signUpHTTP(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]any{
		"email":       "avery@example.com",
		"password":    "longenough",
		"displayName": "Avery",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup returned %d: %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("signup response missing token")
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned %d", resp.StatusCode)
	}
	if ok, _ := body["ok"].(bool); !ok {
		t.Fatal("expected ok: true")
	}
}

func TestRoutesRequireSession(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/categories/tree", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %v", resp.StatusCode, body)
	}
}

func TestCategoryFlowOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token := signUpHTTP(t, server)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/categories", token, map[string]any{
		"name": "Finance", "icon": "bank", "color": "blue",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category returned %d: %v", resp.StatusCode, body)
	}
	finance := body["category"].(map[string]any)["id"].(string)

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/categories", token, map[string]any{
		"name": "Invoices", "icon": "receipt", "color": "green", "parentId": finance,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create child returned %d: %v", resp.StatusCode, body)
	}
	invoices := body["category"].(map[string]any)["id"].(string)

	// Moving the parent under its own child must be rejected before any
	// write.
	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/categories/"+finance+"/move", token, map[string]any{
		"parentId": invoices,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("cyclic move returned %d: %v", resp.StatusCode, body)
	}
	if body["code"] != "CYCLE" {
		t.Errorf("expected CYCLE code, got %v", body["code"])
	}

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/categories/tree", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tree returned %d: %v", resp.StatusCode, body)
	}
	tree := body["tree"].([]any)
	if len(tree) != 1 {
		t.Fatalf("expected one root, got %d", len(tree))
	}
	root := tree[0].(map[string]any)
	if root["id"] != finance {
		t.Errorf("expected finance at root, got %v", root["id"])
	}
	children := root["children"].([]any)
	if len(children) != 1 || children[0].(map[string]any)["id"] != invoices {
		t.Errorf("expected invoices under finance, got %v", children)
	}
}

func TestValidationErrorShapeOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token := signUpHTTP(t, server)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/categories", token, map[string]any{
		"name": "   ", "icon": "bank", "color": "blue",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", resp.StatusCode, body)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR code, got %v", body["code"])
	}
	details := body["details"].(map[string]any)
	if details["field"] != "name" {
		t.Errorf("expected field name in details, got %v", details)
	}
}

func TestDocumentUploadOverHTTP(t *testing.T) {
	server, f := newTestServer(t)
	token := signUpHTTP(t, server)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fmt.Fprint(part, "hello")
	_ = form.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/documents", &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload returned %d: %v", resp.StatusCode, body)
	}
	doc := body["document"].(map[string]any)
	if doc["name"] != "notes.txt" {
		t.Errorf("expected filename fallback for name, got %v", doc["name"])
	}
	if doc["version"].(float64) != 1 {
		t.Errorf("expected version 1, got %v", doc["version"])
	}

	found := false
	for _, data := range f.blobs.objects {
		if string(data) == "hello" {
			found = true
		}
	}
	if !found {
		t.Error("uploaded bytes not present in object storage")
	}

	// Public share round trip: create a link, resolve it without a token.
	docID := doc["id"].(string)
	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/documents/"+docID+"/share", token, map[string]any{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("share returned %d: %v", resp.StatusCode, body)
	}
	shareToken := body["share"].(map[string]any)["token"].(string)

	resp, body = doJSON(t, http.MethodGet, server.URL+"/share/"+shareToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public share returned %d: %v", resp.StatusCode, body)
	}
	if !strings.Contains(body["url"].(string), "documents/") {
		t.Errorf("expected presigned URL, got %v", body["url"])
	}
}
