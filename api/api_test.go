package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/akinalpfdn/dlsupervisor/classifier"
	"github.com/akinalpfdn/dlsupervisor/config"
	"github.com/akinalpfdn/dlsupervisor/moderation"
	"github.com/akinalpfdn/dlsupervisor/oplist"
	"github.com/akinalpfdn/dlsupervisor/proc"
	"github.com/akinalpfdn/dlsupervisor/supervisor"
)

type APISuite struct {
	suite.Suite
	dir     string
	handler http.Handler
	sup     *supervisor.Supervisor
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	s.dir = s.T().TempDir()

	dataDir := filepath.Join(s.dir, "data")
	serverDir := filepath.Join(s.dir, "server")
	webRoot := filepath.Join(s.dir, "web")
	s.Require().NoError(os.MkdirAll(dataDir, 0o755))
	s.Require().NoError(os.MkdirAll(serverDir, 0o755))
	s.Require().NoError(os.MkdirAll(webRoot, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(serverDir, "ops.json"), []byte(`[]`), 0o644))

	forbiddenPath := filepath.Join(dataDir, "forbidden_commands.list")
	s.Require().NoError(moderation.SaveForbiddenRules(forbiddenPath, nil))

	reg, err := moderation.New(
		filepath.Join(dataDir, "players.list"),
		filepath.Join(dataDir, "banned.list"),
		forbiddenPath,
		nil,
	)
	s.Require().NoError(err)
	reg.OnEvent(classifier.Event{Kind: classifier.Join, Player: "Alice", ClientInfo: "fabric", Timestamp: time.Now()})

	child := proc.New("cat", 0)

	sup, err := supervisor.New(child, reg, filepath.Join(dataDir, "requests.dat"), filepath.Join(dataDir, "uploads"), 2, 0)
	s.Require().NoError(err)
	s.sup = sup

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	s.T().Cleanup(cancel)
	s.Require().NoError(sup.Run(ctx))

	ops, err := oplist.Load(filepath.Join(serverDir, "ops.json"))
	s.Require().NoError(err)

	cfg := &config.Config{
		Data:   config.DataConfig{Dir: dataDir, ServeDir: serverDir, WebRoot: webRoot},
		Upload: config.UploadConfig{Dir: filepath.Join(dataDir, "uploads"), MaxSize: 10 << 20},
	}

	s.handler = New(sup, ops, cfg, nil)
}

func (s *APISuite) TestGetPlayersReturnsKnownNames() {
	req := httptest.NewRequest(http.MethodGet, "/api/players", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)

	var body map[string][]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Contains(body["players"], "Alice")
}

func (s *APISuite) TestGetOnlineReturnsClientInfo() {
	req := httptest.NewRequest(http.MethodGet, "/api/online", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var body struct {
		Players []onlinePlayerView `json:"players"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().Len(body.Players, 1)
	s.Equal("Alice", body.Players[0].Name)
	s.Equal("fabric", body.Players[0].Client)
}

func (s *APISuite) TestPostRequestUrlEncodedCreatesRequest() {
	form := url.Values{"applicant": {"Alice"}, "command": {"/op Alice"}, "reason": {"trusted"}}
	req := httptest.NewRequest(http.MethodPost, "/api/requests", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)

	var body map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.NotEmpty(body["id"])
}

func (s *APISuite) TestPostRequestMissingFieldReturns400() {
	form := url.Values{"applicant": {"Alice"}}
	req := httptest.NewRequest(http.MethodPost, "/api/requests", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APISuite) TestPostRequestUnknownApplicantReturns400() {
	form := url.Values{"applicant": {"Ghost"}, "command": {"/op Ghost"}, "reason": {"trusted"}}
	req := httptest.NewRequest(http.MethodPost, "/api/requests", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APISuite) TestPostRequestSelfPardonWithoutImageReturns400() {
	form := url.Values{"applicant": {"Alice"}, "command": {"/pardon Alice"}, "reason": {"mistake"}}
	req := httptest.NewRequest(http.MethodPost, "/api/requests", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APISuite) TestPostRequestSelfPardonWithMultipartImageSucceeds() {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	s.Require().NoError(w.WriteField("applicant", "Alice"))
	s.Require().NoError(w.WriteField("command", "/pardon Alice"))
	s.Require().NoError(w.WriteField("reason", "confession"))
	part, err := w.CreateFormFile("image", "proof.png")
	s.Require().NoError(err)
	_, err = part.Write([]byte("fake-png-bytes"))
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/requests", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
}

func (s *APISuite) TestPostVoteSequenceMatchesStatusCodes() {
	id, err := s.sup.Engine().Create("Alice", "/op alice", "trusted", nil, "")
	s.Require().NoError(err)

	vote := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/requests/"+id+"/vote", nil)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := vote("1.2.3.4")
	s.Equal(http.StatusOK, rec.Code)

	rec = vote("1.2.3.4")
	s.Equal(http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/requests/no-such-id/vote", nil)
	req.RemoteAddr = "9.9.9.9:1"
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *APISuite) TestGetLogsReturnsSortedMergedEntries() {
	_, err := s.sup.Engine().Create("Alice", "/op alice", "trusted", nil, "")
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)

	var body struct {
		Logs []logLine `json:"logs"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))

	for i := 1; i < len(body.Logs); i++ {
		s.LessOrEqual(body.Logs[i-1].Timestamp, body.Logs[i].Timestamp)
	}

	// second call within the cache TTL must be served from cache
	rec2 := httptest.NewRecorder()
	s.handler.ServeHTTP(rec2, req)
	s.Equal(rec.Body.String(), rec2.Body.String())
}

func (s *APISuite) TestClientIPPrefersForwardedForOverRemoteAddr() {
	req := httptest.NewRequest(http.MethodGet, "/api/online", nil)
	req.Header.Set("X-Forwarded-For", "5.6.7.8, 9.9.9.9")
	req.RemoteAddr = "127.0.0.1:9999"

	s.Equal("5.6.7.8", clientIP(req))
}
