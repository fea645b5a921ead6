// Package api exposes generation over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/loom/internal/beam"
	"github.com/samcharles93/loom/internal/engine"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/version"
)

// Generator runs generation requests. *engine.Engine implements it.
type Generator interface {
	Generate(ctx context.Context, req engine.Request) (*engine.Result, error)
}

type Server struct {
	gen   Generator
	log   logger.Logger
	clock func() time.Time
}

func NewServer(gen Generator, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{gen: gen, log: log, clock: time.Now}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/healthz", s.handleHealthz)
	e.GET("/v1/version", s.handleVersion)
}

// GenerateRequest is the POST /v1/generate body.
type GenerateRequest struct {
	Seed        string   `json:"seed"`
	Strategy    string   `json:"strategy,omitempty"`
	BeamWidth   *int     `json:"beam_width,omitempty"`
	MaxLen      *int     `json:"max_len,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	RNGSeed     *int64   `json:"rng_seed,omitempty"`
}

type GeneratedSequence struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type GenerateResponse struct {
	ID         string              `json:"id"`
	Object     string              `json:"object"`
	Created    int64               `json:"created"`
	Strategy   string              `json:"strategy"`
	Sequences  []GeneratedSequence `json:"sequences"`
	DurationMS int64               `json:"duration_ms"`
}

const (
	defaultStrategy  = engine.StrategyBeam
	defaultBeamWidth = 4
	defaultMaxLen    = 64
)

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.gen == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "generator not configured")
	}
	body, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	req := engine.Request{
		Seed:      body.Seed,
		Strategy:  defaultStrategy,
		BeamWidth: defaultBeamWidth,
		MaxLen:    defaultMaxLen,
	}
	if body.Strategy != "" {
		strategy, err := engine.ParseStrategy(body.Strategy)
		if err != nil {
			return writeBadRequest(c, err.Error())
		}
		req.Strategy = strategy
	}
	if body.BeamWidth != nil {
		req.BeamWidth = *body.BeamWidth
	}
	if body.MaxLen != nil {
		req.MaxLen = *body.MaxLen
	}
	if body.Temperature != nil {
		req.Temperature = float32(*body.Temperature)
	}
	if body.TopK != nil {
		req.TopK = *body.TopK
	}
	if body.TopP != nil {
		req.TopP = float32(*body.TopP)
	}
	if body.RNGSeed != nil {
		req.RNGSeed = *body.RNGSeed
	}

	res, err := s.gen.Generate(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, beam.ErrInvalidInput) {
			return writeBadRequest(c, err.Error())
		}
		s.log.Error("generation failed", "err", err)
		return writeError(c, http.StatusInternalServerError, "server_error", "generation failed")
	}

	resp := GenerateResponse{
		ID:         "gen_" + uuid.NewString(),
		Object:     "generation",
		Created:    s.clock().Unix(),
		Strategy:   string(req.Strategy),
		Sequences:  make([]GeneratedSequence, len(res.Sequences)),
		DurationMS: res.Duration.Milliseconds(),
	}
	for i, seq := range res.Sequences {
		resp.Sequences[i] = GeneratedSequence{Text: seq.Text, Score: seq.Score}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": version.String()})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]string{
			"message": msg,
			"type":    errType,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
