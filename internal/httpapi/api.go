package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"schooladmin.org/internal/account"
	"schooladmin.org/internal/activity"
	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/media"
	"schooladmin.org/internal/obs"
	"schooladmin.org/internal/school"
	"schooladmin.org/internal/session"
	"schooladmin.org/internal/throttle"
	"schooladmin.org/internal/token"
)

// ReadyProbe pings the backing stores that are configured.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// StudentService is the tenant-scoped student API the handlers need.
type StudentService interface {
	List(ctx context.Context, f school.ListFilter) ([]school.Student, error)
	Get(ctx context.Context, id string) (school.Student, error)
	Create(ctx context.Context, in school.StudentInput) (school.Student, error)
	Update(ctx context.Context, id string, in school.StudentInput) (school.Student, error)
}

// ActivityFeed lists recent activity within the request's tenant scope.
type ActivityFeed interface {
	Recent(ctx context.Context, limit int) ([]activity.Entry, error)
}

type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
}

// LoginThrottle bounds failed logins per email and client IP.
type LoginThrottle struct {
	Limiter     throttle.Limiter
	MaxAttempts int
	Decay       time.Duration
}

type Deps struct {
	Version     string
	Ready       ReadyProbe
	Accounts    *account.Service
	Tenants     auth.TenantStore
	Sessions    *session.Manager
	Tokens      *token.Manager
	Students    StudentService
	Activity    ActivityFeed
	Media       *media.URLer
	Cookie      CookieConfig
	Throttle    LoginThrottle
	RateBurst   int
	RatePerSec  int
	CORSOrigins []string
	MaxBody     int64
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	deps     Deps
	accounts *account.Service
	sessions *session.Manager
	tokens   *token.Manager
	media    *media.URLer
}

func New(d Deps) *API {
	if d.Cookie.Name == "" {
		d.Cookie.Name = "schooladmin_session"
	}
	if d.RateBurst <= 0 {
		d.RateBurst = 20
	}
	if d.RatePerSec <= 0 {
		d.RatePerSec = 10
	}
	if d.MaxBody <= 0 {
		d.MaxBody = 1 << 20
	}
	a := &API{
		mux:      http.NewServeMux(),
		deps:     d,
		accounts: d.Accounts,
		sessions: d.Sessions,
		tokens:   d.Tokens,
		media:    d.Media,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	// cookie flavor
	a.mux.HandleFunc("GET /csrf-cookie", a.csrfCookie)
	a.mux.HandleFunc("POST /login", a.webLogin)
	a.mux.Handle("POST /logout", a.webAuth(http.HandlerFunc(a.webLogout)))
	a.mux.Handle("GET /me", a.webAuth(http.HandlerFunc(a.me)))
	a.mux.Handle("GET /sessions", a.webAuth(a.listCredentials(a.sessions)))
	a.mux.Handle("POST /logout-all", a.webAuth(a.logoutOthers(a.sessions)))
	a.mux.Handle("DELETE /sessions/{id}", a.webAuth(a.revokeCredential(a.sessions)))
	a.mux.Handle("POST /change-password", a.webAuth(a.changePassword(a.sessions)))

	// bearer flavor
	a.mux.HandleFunc("POST /mobile/login", a.mobileLogin)
	a.mux.Handle("POST /mobile/logout", a.bearerAuth(http.HandlerFunc(a.mobileLogout)))
	a.mux.Handle("POST /mobile/refresh", a.bearerAuth(http.HandlerFunc(a.mobileRefresh)))
	a.mux.Handle("GET /mobile/me", a.bearerAuth(http.HandlerFunc(a.me)))
	a.mux.Handle("GET /mobile/sessions", a.bearerAuth(a.listCredentials(a.tokens)))
	a.mux.Handle("POST /mobile/logout-all", a.bearerAuth(http.HandlerFunc(a.mobileLogoutAll)))
	a.mux.Handle("DELETE /mobile/sessions/{id}", a.bearerAuth(a.revokeCredential(a.tokens)))
	a.mux.Handle("POST /mobile/change-password", a.bearerAuth(a.changePassword(a.tokens)))

	// tenant-scoped resources, reachable with either credential
	a.mux.Handle("GET /students", a.anyAuth(http.HandlerFunc(a.listStudents)))
	a.mux.Handle("POST /students", a.anyAuth(http.HandlerFunc(a.createStudent)))
	a.mux.Handle("GET /students/{id}", a.anyAuth(http.HandlerFunc(a.getStudent)))
	a.mux.Handle("PATCH /students/{id}", a.anyAuth(http.HandlerFunc(a.updateStudent)))
	a.mux.Handle("GET /activity", a.anyAuth(a.requireRole(http.HandlerFunc(a.listActivity),
		auth.RoleAdmin, auth.RoleDirector)))

	// platform administration
	a.mux.Handle("GET /admin/tenants", a.anyAuth(a.requireRole(http.HandlerFunc(a.listTenants))))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, message(r, "resource.not_found"))
	})
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.deps.MaxBody)
	h = RateLimit(h, a.deps.RateBurst, a.deps.RatePerSec)
	h = CORS(h, a.deps.CORSOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "schooladmin-api",
		"version": a.deps.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "schooladmin-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}
