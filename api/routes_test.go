package api_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"

	"github.com/reviewboard/rb-browser/api"
	"github.com/reviewboard/rb-browser/config"
	"github.com/reviewboard/rb-browser/helpers"
)

// Common data for routes tests.
type routeTestSetup struct {
	root   string
	config *config.Config
	api    *api.API
}

// Do common setup for a routes test.
//
// The root holds one seeded repository named "repo" with a second branch and
// a tag.
func setupRoutesTest(t *testing.T) routeTestSetup {
	t.Helper()
	assert := assert.New(t)

	root := helpers.CreateTestRoot(t)
	rawRepo := helpers.CreateTestRepo(t, root, "repo")
	head := helpers.SeedTestRepo(t, rawRepo)
	helpers.CreateTestBranch(t, rawRepo)
	helpers.CreateTestTag(t, rawRepo, "v1.0", head, true)

	cfg := helpers.CreateTestConfig(t, root)

	handler, err := api.New(&cfg, nil)
	assert.Nil(err)

	return routeTestSetup{
		root:   root,
		config: &cfg,
		api:    handler,
	}
}

// Make a request to the given URL against the API.
func testRoute(t *testing.T, handler http.Handler, method, url string) *httptest.ResponseRecorder {
	t.Helper()
	assert := assert.New(t)

	request, err := http.NewRequest(method, url, nil)
	assert.Nil(err)

	response := httptest.NewRecorder()
	handler.ServeHTTP(response, request)

	return response
}

func TestGetRepositories(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)
	helpers.SeedTestRepo(t, helpers.CreateTestRepo(t, setup.root, "other"))

	rsp := testRoute(t, setup.api, "GET", "/")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Equal("text/html; charset=utf-8", rsp.Header().Get("Content-Type"))
	assert.Contains(rsp.Body.String(), `href="/repo"`)
	assert.Contains(rsp.Body.String(), `href="/other"`)
}

func TestGetIndex(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	for _, url := range []string{"/repo", "/repo/"} {
		rsp := testRoute(t, setup.api, "GET", url)
		assert.Equalf(http.StatusOK, rsp.Code, "unexpected status for %s", url)

		body := rsp.Body.String()
		assert.Contains(body, "<title>Test Repository - repo</title>")
		assert.Contains(body, "git clone")
		assert.Contains(body, `href="/repo/branch/test-branch/"`)
		assert.Contains(body, `href="/repo/branch/v1.0/"`)
		assert.Contains(body, "Initial commit")
		assert.Contains(body, `href="/repo/branch/master/docs/guide.md"`)
	}
}

func TestGetIndexNotFound(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	for _, url := range []string{"/missing", "/.hidden"} {
		rsp := testRoute(t, setup.api, "GET", url)
		assert.Equalf(http.StatusNotFound, rsp.Code, "unexpected status for %s", url)
		assert.Contains(rsp.Body.String(), "repository not found")
	}
}

func TestGetPath(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	rsp := testRoute(t, setup.api, "GET", "/repo/branch/master/docs/guide.md")
	assert.Equal(http.StatusOK, rsp.Code)

	body := rsp.Body.String()
	assert.Contains(body, "<h1>Guide</h1>")
	assert.Contains(body, `href="/repo/branch/master/docs/api/reference.txt"`)
	assert.Contains(body, `href="/repo/raw/master/docs/guide.md"`)
	assert.Contains(body, `href="/css/file.css"`)

	rsp = testRoute(t, setup.api, "GET", "/repo/branch/test-branch/AUTHORS")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Contains(rsp.Body.String(), "AUTHORS\n</pre>")

	rsp = testRoute(t, setup.api, "GET", "/repo/branch/master/image.bin")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Contains(rsp.Body.String(), "binary")
}

func TestGetPathDirectory(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	for _, url := range []string{"/repo/branch/master", "/repo/branch/master/"} {
		rsp := testRoute(t, setup.api, "GET", url)
		assert.Equalf(http.StatusOK, rsp.Code, "unexpected status for %s", url)

		body := rsp.Body.String()
		assert.Contains(body, `<li class="tree"><a href="/repo/branch/master/docs">docs/</a></li>`)
		assert.Contains(body, `<li class="blob"><a href="/repo/branch/master/COPYING">COPYING</a></li>`)
		assert.Contains(body, "README.md")
	}

	rsp := testRoute(t, setup.api, "GET", "/repo/branch/v1.0/docs")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Contains(rsp.Body.String(), `href="/repo/branch/v1.0/docs/api"`)
	assert.Contains(rsp.Body.String(), `class="parent" href="/repo/branch/v1.0/"`)
}

func TestGetPathNotFound(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	testCases := []struct {
		url     string
		message string
	}{
		{"/missing/branch/master/README.md", "repository not found"},
		{"/repo/branch/no-such-branch/README.md", "reference not found"},
		{"/repo/branch/master/missing.txt", "path not found"},
		{"/repo/branch/master/README.md/extra", "path not found"},
	}

	for _, tc := range testCases {
		rsp := testRoute(t, setup.api, "GET", tc.url)
		assert.Equalf(http.StatusNotFound, rsp.Code, "unexpected status for %s", tc.url)
		assert.Containsf(rsp.Body.String(), tc.message, "unexpected body for %s", tc.url)
	}
}

func TestGetRaw(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)
	files := helpers.GetRepoFiles()

	rsp := testRoute(t, setup.api, "GET", "/repo/raw/master/image.bin")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Equal("application/octet-stream", rsp.Header().Get("Content-Type"))
	assert.Equal(files["image.bin"], rsp.Body.Bytes())

	rsp = testRoute(t, setup.api, "GET", "/repo/raw/master/docs/api/reference.txt")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Equal(files["docs/api/reference.txt"], rsp.Body.Bytes())

	rsp = testRoute(t, setup.api, "HEAD", "/repo/raw/master/README.md")
	assert.Equal(http.StatusOK, rsp.Code)

	rsp = testRoute(t, setup.api, "GET", "/repo/raw/master/docs")
	assert.Equal(http.StatusNotFound, rsp.Code)

	rsp = testRoute(t, setup.api, "GET", "/repo/raw/master/missing")
	assert.Equal(http.StatusNotFound, rsp.Code)
}

func TestGetPathSlashedReference(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	rawRepo, err := git.PlainOpen(filepath.Join(setup.root, "repo"))
	assert.Nil(err)

	head := helpers.GetRepoHead(t, rawRepo)
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName("feature/x"), head)
	assert.Nil(rawRepo.Storer.SetReference(ref))

	rsp := testRoute(t, setup.api, "GET", "/repo")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Contains(rsp.Body.String(), `href="/repo/branch/feature%2Fx/"`)

	for _, url := range []string{
		"/repo/branch/feature%2Fx",
		"/repo/branch/feature%2Fx/",
		"/repo/branch/feature%2Fx/README.md",
		"/repo/branch/refs%2Fheads%2Fmaster/README.md",
		"/repo/raw/feature%2Fx/docs/guide.md",
	} {
		rsp := testRoute(t, setup.api, "GET", url)
		assert.Equalf(http.StatusOK, rsp.Code, "unexpected status for %s", url)
	}

	rsp = testRoute(t, setup.api, "GET", "/repo/branch/feature%2Fx/docs")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Contains(rsp.Body.String(), `href="/repo/branch/feature%2Fx/docs/guide.md"`)

	rsp = testRoute(t, setup.api, "GET", "/repo/branch/feature/x/README.md")
	assert.Equal(http.StatusNotFound, rsp.Code)
}

func TestRepositoryRoutesRequireRepository(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	for _, url := range []string{
		"/missing/",
		"/missing/branch/master",
		"/missing/raw/master/README.md",
		"/..%2Frepo/branch/master/README.md",
	} {
		rsp := testRoute(t, setup.api, "GET", url)
		assert.Equalf(http.StatusNotFound, rsp.Code, "unexpected status for %s", url)
		assert.Containsf(rsp.Body.String(), "repository not found", "unexpected body for %s", url)
	}

	rsp := testRoute(t, setup.api, "GET", "/repo/raw/master/docs%2Fguide.md")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Equal(helpers.GetRepoFiles()["docs/guide.md"], rsp.Body.Bytes())
}

func TestGetStylesheet(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	for _, name := range []string{"index.css", "file.css"} {
		rsp := testRoute(t, setup.api, "GET", "/css/"+name)
		assert.Equalf(http.StatusOK, rsp.Code, "unexpected status for %s", name)
		assert.Equal("text/css; charset=utf-8", rsp.Header().Get("Content-Type"))
		assert.NotEmpty(rsp.Body.String())
	}

	rsp := testRoute(t, setup.api, "GET", "/css/missing.css")
	assert.Equal(http.StatusNotFound, rsp.Code)
}

func TestGetMetrics(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	testRoute(t, setup.api, "GET", "/repo")
	testRoute(t, setup.api, "GET", "/repo/branch/master/missing")

	rsp := testRoute(t, setup.api, "GET", "/metrics")
	assert.Equal(http.StatusOK, rsp.Code)

	body := rsp.Body.String()
	assert.Contains(body, `rb_browser_http_requests_total{code="200",route="/{repo}"} 1`)
	assert.Contains(body, `rb_browser_http_requests_total{code="404",route="/{repo}/branch/{ref}/{path:.*}"} 1`)
	assert.Contains(body, "rb_browser_http_request_duration_seconds")
}

func TestSingleRepositoryMode(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	cfg := helpers.CreateTestConfig(t, filepath.Join(setup.root, "repo"))
	cfg.SingleRepository = true

	assert.Nil(setup.api.SetConfig(&cfg))
	assert.Same(&cfg, setup.api.Config())

	rsp := testRoute(t, setup.api, "GET", "/")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Contains(rsp.Body.String(), `href="/branch/master/docs/guide.md"`)

	rsp = testRoute(t, setup.api, "GET", "/branch/master/docs")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Contains(rsp.Body.String(), `href="/branch/master/docs/guide.md"`)

	rsp = testRoute(t, setup.api, "GET", "/raw/master/COPYING")
	assert.Equal(http.StatusOK, rsp.Code)
	assert.Equal("COPYING\n", rsp.Body.String())

	// Repository-prefixed URLs no longer exist.
	rsp = testRoute(t, setup.api, "GET", "/repo/branch/master/COPYING")
	assert.Equal(http.StatusNotFound, rsp.Code)
}

func TestSetConfigInvalidKeepsPrevious(t *testing.T) {
	assert := assert.New(t)

	setup := setupRoutesTest(t)

	cfg := helpers.CreateTestConfig(t, setup.root)
	cfg.HighlightStyle = "no-such-style"

	assert.NotNil(setup.api.SetConfig(&cfg))
	assert.Same(setup.config, setup.api.Config())

	rsp := testRoute(t, setup.api, "GET", "/repo")
	assert.Equal(http.StatusOK, rsp.Code)
}
