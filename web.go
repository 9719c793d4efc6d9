package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
)

// StatusV1 is the JSON body of GET /status.
type StatusV1 struct {
	Song      int    `json:"song"`
	Paused    bool   `json:"paused"`
	LastFetch string `json:"lastfetch,omitempty"`
	Cycle     string `json:"cycle,omitempty"`
	Error     string `json:"error,omitempty"`
	Backend   string `json:"backend"`
	Version   string `json:"version"`
} // type StatusV1 struct

// wsRequestV1 is a JSON frame received on /ws.
type wsRequestV1 struct {
	Cmd  string `json:"cmd"`
	Args string `json:"args,omitempty"`
}

type wsResponseV1 struct {
	Cmd      string   `json:"cmd"`
	Response []string `json:"response"`
}

// NewHTTPRouter wires /health, /status and /ws.
func NewHTTPRouter(s *Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}\n",
		Output: s.logger,
	}))
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/status", s.statusHandler)
	e.GET("/ws", s.wsHandler)
	return e
} // func NewHTTPRouter

func (s *Server) status() StatusV1 {
	ds := s.state.snapshot()
	return StatusV1{
		Song:      ds.LastApplied,
		Paused:    ds.Paused == 1,
		LastFetch: ds.LastFetch,
		Cycle:     ds.Cycle,
		Error:     ds.LastError,
		Backend:   s.backend,
		Version:   version,
	}
} // func status

func (s *Server) statusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.status())
}

// wsHandler accepts verbs over a websocket until the client goes away.
// Text frames are verb lines; a JSON object {"cmd":..,"args":..} gets a
// single JSON response frame.
func (s *Server) wsHandler(c echo.Context) error {
	conn, err := websocket.Accept(c.Response().Writer, c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("ws accept failed")
		return nil
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx := c.Request().Context()
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.logger.Debug().Err(err).Msg("ws read error")
			}
			return nil
		}

		var req wsRequestV1
		if err := json.Unmarshal(msg, &req); err == nil && req.Cmd != "" {
			line := strings.TrimSpace(req.Cmd + " " + req.Args)
			out, _ := json.Marshal(wsResponseV1{Cmd: req.Cmd, Response: s.verbProcessor(ctx, line)})
			if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
				return nil
			}
			continue
		}

		for _, line := range s.verbProcessor(ctx, string(msg)) {
			if line == "" {
				continue
			}
			s.logger.Debug().Msgf("ws send frame: %q", line)
			if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
				return nil
			}
		}
	}
} // func wsHandler

// RunHTTP runs the router on addr until ctx is done.
func (s *Server) RunHTTP(ctx context.Context, e *echo.Echo, addr string) {
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			s.logger.Warn().Err(err).Msg("http shutdown")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("http listening (/status, /ws)")
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("http server failed")
	}
} // func RunHTTP
