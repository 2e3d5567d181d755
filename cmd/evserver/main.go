// Command evserver is the single-process event-driven application server
// of spec.md: one reactor terminating HTTP/1.1 and HTTP/2 on a shared port,
// SMTP/IMAP on their own ports, and Gopher on its own port.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nullbyte-dev/evreactor/pkg/config"
	"github.com/nullbyte-dev/evreactor/pkg/filecache"
	"github.com/nullbyte-dev/evreactor/pkg/logging"
	"github.com/nullbyte-dev/evreactor/pkg/reactor"
	"github.com/nullbyte-dev/evreactor/pkg/response"
	"github.com/nullbyte-dev/evreactor/pkg/router"
)

func main() {
	cfg := config.Load()
	log := logging.New(os.Stdout, logrus.InfoLevel)

	rt := router.New()
	registerRoutes(rt, cfg)

	r, err := reactor.New(cfg, rt, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create reactor")
	}

	httpAddr := fmt.Sprintf(":%d", cfg.ServerPort)
	if err := r.Listen(httpAddr, reactor.KindUnknown); err != nil {
		log.WithError(err).Fatal("failed to listen on HTTP port")
	}
	log.WithField("addr", httpAddr).Info("serving HTTP/1.1 and h2c")

	if cfg.TLSConfig != nil {
		if err := r.ListenTLS(httpAddr); err != nil {
			log.WithError(err).Fatal("failed to listen on TLS port")
		}
		log.Info("serving HTTPS with ALPN h2/http1.1")
	}

	if cfg.SMTPPort != 0 {
		smtpAddr := fmt.Sprintf(":%d", cfg.SMTPPort)
		if err := r.Listen(smtpAddr, reactor.KindSMTP); err != nil {
			log.WithError(err).Fatal("failed to listen on SMTP port")
		}
		log.WithField("addr", smtpAddr).Info("serving SMTP")
	}

	if cfg.IMAPPort != 0 {
		imapAddr := fmt.Sprintf(":%d", cfg.IMAPPort)
		if err := r.Listen(imapAddr, reactor.KindIMAP); err != nil {
			log.WithError(err).Fatal("failed to listen on IMAP port")
		}
		log.WithField("addr", imapAddr).Info("serving IMAP4rev1")
	}

	if cfg.GopherPort != 0 {
		gopherAddr := fmt.Sprintf(":%d", cfg.GopherPort)
		if err := r.Listen(gopherAddr, reactor.KindGopher); err != nil {
			log.WithError(err).Fatal("failed to listen on Gopher port")
		}
		log.WithField("addr", gopherAddr).Info("serving Gopher")
	}

	if err := r.Run(); err != nil {
		log.WithError(err).Fatal("reactor stopped")
	}
}

// registerRoutes wires the demonstration routes a fresh checkout needs to
// answer a request out of the box: a health check and a static file handler
// backed by the reactor's marker-algorithm file cache.
func registerRoutes(rt *router.Router, cfg *config.Config) {
	cache := filecache.New(cfg.MaxCacheFiles, cfg.MaxCacheFileSize)

	rt.Handle(router.GET, "/healthz", false, func(req interface{}, _ map[string]string) {
		b := builderOf(req)
		b.SetStatus(200, "OK")
		b.Write([]byte("ok"))
	})

	rt.Handle(router.GET, "/{path}", false, func(req interface{}, captures map[string]string) {
		b := builderOf(req)
		data, err := cache.Get(cfg.DocumentRoot + "/" + captures["path"])
		if err != nil {
			b.SetStatus(404, "Not Found")
			return
		}
		b.Write(data)
	})

	rt.Handle(router.REQUEST, "/{path}", false, func(req interface{}, captures map[string]string) {
		g, ok := req.(*reactor.GopherContext)
		if !ok {
			return
		}
		data, err := cache.Get(cfg.DocumentRoot + "/" + captures["path"])
		if err != nil {
			g.NotFound = true
			return
		}
		g.Write(data)
	})
}

// builderOf recovers the *response.Builder a protocol layer attached to an
// opaque router request value. Both pkg/reactor's HTTP/1.1 and HTTP/2 paths
// pass a *reactor.HTTPContext.
func builderOf(req interface{}) *response.Builder {
	ctx, ok := req.(*reactor.HTTPContext)
	if !ok {
		panic("evserver: route handler received a request value with no response.Builder")
	}
	return ctx.Builder
}
