// Package api, operatör paneli için HTTP API'sini barındırır.
//
// Thin handler pattern: isteği parse et → supervisor.Supervisor'ı çağır →
// yanıtı döndür. İş mantığı moderation/voting/classifier paketlerindedir,
// burada yalnızca HTTP sözleşmesi ile iç domain arasında çeviri yapılır.
package api

import (
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"

	"github.com/akinalpfdn/dlsupervisor/classifier"
	"github.com/akinalpfdn/dlsupervisor/config"
	"github.com/akinalpfdn/dlsupervisor/metrics"
	"github.com/akinalpfdn/dlsupervisor/oplist"
	"github.com/akinalpfdn/dlsupervisor/pkg"
	"github.com/akinalpfdn/dlsupervisor/pkg/cache"
	"github.com/akinalpfdn/dlsupervisor/pkg/ratelimit"
	"github.com/akinalpfdn/dlsupervisor/supervisor"
	"github.com/akinalpfdn/dlsupervisor/voting"
)

// logsCacheTTL/logsCacheSweep bound the GET /api/logs response cache — the
// operator panel tends to poll this endpoint on a short interval, and
// merging+sorting the audit and system rings on every poll is wasted work
// between supervisor log-pump ticks.
const (
	logsCacheTTL   = 500 * time.Millisecond
	logsCacheSweep = time.Minute
	logsCacheKey   = "logs"
)

// requestRateWindow/requestRateCooldown bound POST /api/requests: an IP may
// file at most requestRateMax requests per window before a cooldown kicks in.
const (
	requestRateMax      = 5
	requestRateWindow   = time.Minute
	requestRateCooldown = 2 * time.Minute
)

// voteRateMax/voteRateWindow bound POST /api/requests/{id}/vote — votes are
// cheap and frequent, so the window is short with no cooldown escalation.
const (
	voteRateMax    = 20
	voteRateWindow = time.Minute
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Server, operatör HTTP API'sini kurar ve sunar.
type Server struct {
	sup          *supervisor.Supervisor
	ops          *oplist.List
	cfg          *config.Config
	metrics      *metrics.Metrics
	requestLimit *ratelimit.RequestRateLimiter
	voteLimit    *ratelimit.IPRateLimiter
	logsCache    *cache.TTLCache[string, []logLine]
}

// New, tüm route'ları bağlı bir *http.Server inşa eder. CORS, rs/cors ile
// sarmalanır — operatör panelinin ayrı bir origin'den (dev sunucusu)
// çalışabilmesi için. Yazma uç noktaları (POST /api/requests, POST
// /api/requests/{id}/vote) kimlik doğrulaması taşımadığından IP bazlı hız
// sınırlaması tek savunma hattıdır.
func New(sup *supervisor.Supervisor, ops *oplist.List, cfg *config.Config, m *metrics.Metrics) http.Handler {
	s := &Server{
		sup:          sup,
		ops:          ops,
		cfg:          cfg,
		metrics:      m,
		requestLimit: ratelimit.NewRequestRateLimiter(requestRateMax, requestRateWindow, requestRateCooldown),
		voteLimit:    ratelimit.NewIPRateLimiter(voteRateMax, voteRateWindow),
		logsCache:    cache.New[string, []logLine](logsCacheTTL, logsCacheSweep),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/logs", s.getLogs)
	mux.HandleFunc("GET /api/online", s.getOnline)
	mux.HandleFunc("GET /api/ops", s.getOps)
	mux.HandleFunc("GET /api/banned", s.getBanned)
	mux.HandleFunc("GET /api/players", s.getPlayers)
	mux.HandleFunc("GET /api/requests", s.getRequests)
	mux.HandleFunc("POST /api/requests", s.rateLimitRequest(s.postRequest))
	mux.HandleFunc("POST /api/requests/{id}/vote", s.rateLimitVote(s.postVote))

	mux.Handle("GET /metrics", metrics.Handler())

	uploadsHandler := http.StripPrefix("/uploads/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/") || strings.Contains(r.URL.Path, "..") {
			http.NotFound(w, r)
			return
		}
		http.FileServer(http.Dir(cfg.Upload.Dir)).ServeHTTP(w, r)
	}))
	mux.Handle("GET /uploads/", uploadsHandler)

	mux.Handle("/", http.FileServer(http.Dir(cfg.Data.WebRoot)))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})

	return corsHandler.Handler(mux)
}

// logLine, AuditEntry/SystemEntry'nin ortak JSON izdüşümüdür — GET /api/logs
// her iki kaynağı da aynı şekilde karıştırıp zaman sırasına göre döner.
type logLine struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Player    string `json:"player"`
	Content   string `json:"content"`
}

const logTimeLayout = "2006-01-02 15:04:05"

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	if lines, ok := s.logsCache.Get(logsCacheKey); ok {
		pkg.JSON(w, http.StatusOK, map[string]any{"logs": lines})
		return
	}

	entries := s.sup.AuditEntries()
	sysEntries := s.sup.SystemEntries()

	lines := make([]logLine, 0, len(entries)+len(sysEntries))
	for _, e := range entries {
		lines = append(lines, logLine{
			Timestamp: e.Timestamp.Format(logTimeLayout),
			Type:      auditKindLabel(e.Kind),
			Player:    e.Player,
			Content:   e.Content,
		})
	}
	for _, e := range sysEntries {
		lines = append(lines, logLine{
			Timestamp: e.Timestamp.Format(logTimeLayout),
			Type:      "system",
			Content:   e.Message,
		})
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Timestamp < lines[j].Timestamp })

	s.logsCache.Set(logsCacheKey, lines)

	pkg.JSON(w, http.StatusOK, map[string]any{"logs": lines})
}

func auditKindLabel(k classifier.Kind) string {
	switch k {
	case classifier.Join:
		return "join"
	case classifier.Leave:
		return "leave"
	case classifier.Command:
		return "command"
	case classifier.Chat:
		return "chat"
	default:
		return "other"
	}
}

type onlinePlayerView struct {
	Name   string `json:"name"`
	Client string `json:"client"`
}

func (s *Server) getOnline(w http.ResponseWriter, r *http.Request) {
	online := s.sup.Registry().ListOnline()
	out := make([]onlinePlayerView, 0, len(online))
	for _, p := range online {
		out = append(out, onlinePlayerView{Name: p.Name, Client: p.ClientInfo})
	}
	pkg.JSON(w, http.StatusOK, map[string]any{"players": out})
}

func (s *Server) getOps(w http.ResponseWriter, r *http.Request) {
	pkg.JSON(w, http.StatusOK, map[string]any{"ops": s.ops.Names()})
}

type bannedPlayerView struct {
	Name      string `json:"name"`
	Reason    string `json:"reason"`
	BanTime   string `json:"ban_time"`
	UnbanTime string `json:"unban_time"`
	Permanent bool   `json:"permanent"`
}

func (s *Server) getBanned(w http.ResponseWriter, r *http.Request) {
	banned := s.sup.Registry().ListBanned()
	out := make([]bannedPlayerView, 0, len(banned))
	for _, b := range banned {
		unban := ""
		if !b.Permanent {
			unban = b.UnbansAt.Format(logTimeLayout)
		}
		out = append(out, bannedPlayerView{
			Name:      b.Name,
			Reason:    b.Reason,
			BanTime:   b.BannedAt.Format(logTimeLayout),
			UnbanTime: unban,
			Permanent: b.Permanent,
		})
	}
	pkg.JSON(w, http.StatusOK, map[string]any{"players": out})
}

func (s *Server) getPlayers(w http.ResponseWriter, r *http.Request) {
	pkg.JSON(w, http.StatusOK, map[string]any{"players": s.sup.Registry().ListPlayers()})
}

type requestView struct {
	ID        string `json:"id"`
	Applicant string `json:"applicant"`
	Command   string `json:"command"`
	Reason    string `json:"reason"`
	Image     string `json:"image"`
	Votes     int    `json:"votes"`
	Executed  bool   `json:"executed"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) getRequests(w http.ResponseWriter, r *http.Request) {
	reqs := s.sup.Engine().List()
	out := make([]requestView, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, requestView{
			ID:        req.ID,
			Applicant: req.Applicant,
			Command:   req.Command,
			Reason:    req.Reason,
			Image:     req.ImageRef,
			Votes:     req.VoteCount(),
			Executed:  req.Executed,
			CreatedAt: req.CreatedAt.Format(logTimeLayout),
		})
	}
	pkg.JSON(w, http.StatusOK, map[string]any{
		"threshold": s.sup.Engine().Threshold(),
		"requests":  out,
	})
}

// postRequestForm, POST /api/requests'in doğrulanan alanlarıdır — hem
// multipart hem url-encoded gövdelerden doldurulur.
type postRequestForm struct {
	Applicant string `validate:"required"`
	Command   string `validate:"required"`
	Reason    string `validate:"required"`
}

// rateLimitRequest, POST /api/requests'i istemci IP'si başına pencere+cooldown
// ile sınırlar — aşıldığında 429 ve Retry-After döner.
func (s *Server) rateLimitRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.requestLimit.Allow(ip) {
			retryAfter := s.requestLimit.CooldownSeconds(ip)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			pkg.ErrorWithMessage(w, http.StatusTooManyRequests, "too many requests, retry in "+ratelimit.FormatRetryMessage(retryAfter))
			return
		}
		next(w, r)
	}
}

// rateLimitVote, POST /api/requests/{id}/vote'u istemci IP'si başına sabit
// pencere ile sınırlar.
func (s *Server) rateLimitVote(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.voteLimit.Allow(ip) {
			retryAfter := s.voteLimit.RetryAfterSeconds(ip)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			pkg.ErrorWithMessage(w, http.StatusTooManyRequests, "too many votes, retry in "+ratelimit.FormatRetryMessage(retryAfter))
			return
		}
		next(w, r)
	}
}

func (s *Server) postRequest(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")

	var form postRequestForm
	var imageBytes []byte
	var imageExt string

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(s.cfg.Upload.MaxSize); err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "failed to parse multipart form")
			return
		}
		form.Applicant = strings.TrimSpace(r.FormValue("applicant"))
		form.Command = strings.TrimSpace(r.FormValue("command"))
		form.Reason = strings.TrimSpace(r.FormValue("reason"))

		if file, header, err := r.FormFile("image"); err == nil {
			defer file.Close()
			data, readErr := readAllLimited(file, s.cfg.Upload.MaxSize)
			if readErr == nil && len(data) > 0 {
				imageBytes = data
				imageExt = imageExtension(header.Filename, header.Header.Get("Content-Type"))
			}
		}
	} else {
		if err := r.ParseForm(); err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "failed to parse form")
			return
		}
		form.Applicant = strings.TrimSpace(r.FormValue("applicant"))
		form.Command = strings.TrimSpace(r.FormValue("command"))
		form.Reason = strings.TrimSpace(r.FormValue("reason"))
	}

	if err := validate.Struct(form); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "missing required fields")
		return
	}

	if !contains(s.sup.Registry().ListPlayers(), form.Applicant) {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "player not found")
		return
	}

	if voting.IsSelfPardon(form.Applicant, form.Command) && len(imageBytes) == 0 {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "self-pardon requires confession image")
		return
	}

	id, err := s.sup.Engine().Create(form.Applicant, form.Command, form.Reason, imageBytes, imageExt)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	s.sup.NoteRequestFiled(form.Applicant, form.Command)

	pkg.JSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) postVote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ip := clientIP(r)

	status := s.sup.Engine().Vote(id, ip)

	switch status {
	case voting.VoteOK:
		s.sup.NoteVoteRecorded(id, ip)
		pkg.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Vote recorded"})
	case voting.VoteDuplicateIP:
		pkg.JSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Already voted"})
	case voting.VoteNoSuchRequest:
		pkg.JSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "Request not found"})
	case voting.VoteAlreadyExecuted:
		pkg.JSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Request already executed"})
	default:
		pkg.JSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Unknown error"})
	}
}

// clientIP, X-Forwarded-For'un ilk girdisini, yoksa X-Real-IP'yi, yoksa
// soket eşinin IP'sini (port olmadan) tercih eder.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if comma := strings.IndexByte(xff, ','); comma >= 0 {
			return strings.TrimSpace(xff[:comma])
		}
		return strings.TrimSpace(xff)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func imageExtension(filename, contentType string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	default:
		return ".png"
	}
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// readAllLimited, verilen dosyadan en fazla limit byte okur — yüklenen
// görsel upload limitini aşarsa fazlası sessizce kesilir.
func readAllLimited(f multipart.File, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(f, limit))
}
