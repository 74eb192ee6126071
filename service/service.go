package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-disttest/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = 8080
)

// Config holds the listen addresses of the service endpoints
type Config struct {
	HealthzHost string
	HealthzPort int
	MetricsHost string
	MetricsPort int
	Log         log.Logger
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	cfg Config
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.HealthzHost == "" {
		cfg.HealthzHost = HealthzHost
	}
	if cfg.HealthzPort == 0 {
		cfg.HealthzPort = HealthzPort
	}
	return &Service{
		Healthz: NewHealthzServer(cfg.Log),
		Metrics: &MetricsServer{},
		cfg:     cfg,
	}
}

func (s *Service) HealthzAddr() string {
	return net.JoinHostPort(s.cfg.HealthzHost, strconv.Itoa(s.cfg.HealthzPort))
}

func (s *Service) MetricsAddr() string {
	return net.JoinHostPort(s.cfg.MetricsHost, strconv.Itoa(s.cfg.MetricsPort))
}

func (s *Service) Start(ctx context.Context) {
	s.cfg.Log.Info("service starting")

	go func() {
		addr := s.HealthzAddr()
		s.cfg.Log.Info("starting healthz server", "addr", addr)
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}()

	go func() {
		addr := s.MetricsAddr()
		s.cfg.Log.Info("starting metrics server", "addr", addr)
		if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Log.Error("error starting metrics server", "err", err)
			metrics.RecordErrorDetails("error starting metrics server", err)
		}
	}()

	s.cfg.Log.Info("service started")
}

func (s *Service) Shutdown(ctx context.Context) {
	s.cfg.Log.Info("service shutting down")

	_ = s.Healthz.Shutdown(ctx)
	s.cfg.Log.Info("healthz stopped")

	_ = s.Metrics.Shutdown(ctx)
	s.cfg.Log.Info("metrics stopped")

	s.cfg.Log.Info("service stopped")
}
