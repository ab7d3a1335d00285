package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"keyverify/internal/config"
	"keyverify/internal/http-server/handlers/errors"
	"keyverify/internal/http-server/handlers/health"
	"keyverify/internal/http-server/handlers/license"
	"keyverify/internal/http-server/handlers/products"
	"keyverify/internal/http-server/middleware/authenticate"
	"keyverify/internal/http-server/middleware/timeout"
	"keyverify/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	license.Core
	products.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(15))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Get("/health", health.Check())

	router.Route("/v1", func(rootApi chi.Router) {
		rootApi.Use(authenticate.New(log, handler))
		rootApi.Route("/license", func(lc chi.Router) {
			lc.Post("/reset", license.Reset(log, handler))
			lc.Post("/blacklist", license.Blacklist(log, handler))
		})
		rootApi.Get("/products/{guild}", products.List(log, handler))
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      router,
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
