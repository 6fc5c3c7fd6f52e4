package listener

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const dnsMessageContentType = "application/dns-message"

// DefaultDoHPort is the DoH HTTP listener's default bind port.
const DefaultDoHPort = 8125

// DoHListener exposes GET/POST /dns-query per RFC 8484, handing the decoded
// request body to a Forwarder and writing its response back with the
// correct status code and Content-Type.
type DoHListener struct {
	Logger     *slog.Logger
	Forwarder  Forwarder
	engine     *gin.Engine
	httpServer *http.Server
}

// RegisterRoutes mounts GET/POST /dns-query on an existing gin engine — used
// to share one HTTP server (and port) with the admin surface, per the
// single-listening-port requirement.
func RegisterRoutes(engine *gin.Engine, logger *slog.Logger, fwd Forwarder) *DoHListener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &DoHListener{Logger: logger, Forwarder: fwd, engine: engine}
	engine.GET("/dns-query", l.handleGet)
	engine.POST("/dns-query", l.handlePost)
	return l
}

// NewDoHListener builds a standalone gin engine and http.Server for addr
// (e.g. ":8125"); call ListenAndServe to start serving. Used for tests and
// for running the DoH surface on its own port.
func NewDoHListener(logger *slog.Logger, fwd Forwarder, addr string) *DoHListener {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	l := RegisterRoutes(engine, logger, fwd)

	l.httpServer = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return l
}

func (l *DoHListener) handleGet(c *gin.Context) {
	if !acceptsDNSMessage(c) {
		c.Status(http.StatusBadRequest)
		return
	}

	encoded := c.Query("dns")
	if encoded == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	reqBytes, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	l.respond(c, reqBytes)
}

func (l *DoHListener) handlePost(c *gin.Context) {
	if c.ContentType() != dnsMessageContentType {
		c.Status(http.StatusUnsupportedMediaType)
		return
	}
	reqBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, 65535))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	l.respond(c, reqBytes)
}

func (l *DoHListener) respond(c *gin.Context, reqBytes []byte) {
	if len(reqBytes) == 0 {
		c.Status(http.StatusBadRequest)
		return
	}
	respBytes := l.Forwarder.Forward(c.Request.Context(), reqBytes)
	if respBytes == nil {
		c.Status(http.StatusBadRequest)
		return
	}
	c.Data(http.StatusOK, dnsMessageContentType, respBytes)
}

// acceptsDNSMessage reports whether the GET request's Accept header, if
// present, includes application/dns-message among its (possibly
// comma-separated, possibly parameterized) media ranges; an absent header
// is treated as acceptance.
func acceptsDNSMessage(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mediaType == dnsMessageContentType {
			return true
		}
	}
	return false
}

// ListenAndServe starts the DoH HTTP server; it blocks until the server
// stops (Shutdown is called or a fatal listen error occurs).
func (l *DoHListener) ListenAndServe() error {
	err := l.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the DoH HTTP server.
func (l *DoHListener) Shutdown(ctx context.Context) error {
	return l.httpServer.Shutdown(ctx)
}
