package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kardianos/service"

	"github.com/conticomp/xprotect-export/internal/auth"
	"github.com/conticomp/xprotect-export/internal/config"
	"github.com/conticomp/xprotect-export/internal/exporter"
	"github.com/conticomp/xprotect-export/internal/httpapi"
	"github.com/conticomp/xprotect-export/internal/msconfig"
	"github.com/conticomp/xprotect-export/internal/registry"
	"github.com/conticomp/xprotect-export/internal/servicelog"
)

// program wires every component together and owns the HTTP listener,
// following the teacher's cmd/driver/main.go wiring shape generalized
// into a kardianos/service.Interface so exportd can run as a daemon or
// a Windows/systemd service interchangeably.
type program struct {
	cfg    config.Config
	logger servicelog.Logger
	srv    *http.Server
}

func (p *program) Start(s service.Service) error {
	go p.run()
	return nil
}

func (p *program) Stop(s service.Service) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.srv.Shutdown(ctx)
}

func (p *program) run() {
	broker := auth.New(p.logger, http.DefaultClient, p.cfg.MilestoneServerURL, p.cfg.MilestoneUsername, p.cfg.MilestonePassword)
	configClient := msconfig.New(p.logger, broker, p.cfg.MilestoneServerURL, p.cfg.TLSVerify, time.Duration(p.cfg.ApiTimeoutSec)*time.Second)
	reg := registry.New()

	exp := exporter.New(p.logger, broker, configClient, reg, exporter.Options{
		ExportDir:       p.cfg.ExportDir,
		PipelineDepth:   p.cfg.PipelineDepth,
		ConnectTimeout:  time.Duration(p.cfg.ConnectTimeoutSec) * time.Second,
		ReadTimeout:     time.Duration(p.cfg.ReadTimeoutSec) * time.Second,
		EncoderBinary:   p.cfg.EncoderBinary,
		JPEGFallbackFPS: p.cfg.JpegFramerate,
		MaxRangeSeconds: p.cfg.MaxRangeSeconds,
	})

	api := httpapi.New(p.logger, exp, configClient)
	p.srv = &http.Server{
		Addr:           fmt.Sprintf(":%d", p.cfg.HTTPPort),
		Handler:        api,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   0, // MP4 downloads can run long; bounded by the client instead
		MaxHeaderBytes: 1 << 20,
	}

	p.logger.Info("exportd listening", servicelog.Int("port", p.cfg.HTTPPort))
	if err := p.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		p.logger.Fatal("http server failed", servicelog.Error(err))
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	svcConfig := &service.Config{
		Name:        "xprotect-exportd",
		DisplayName: "XProtect Export Service",
		Description: "Exports Milestone XProtect recordings to MP4 over the ImageServer protocol.",
	}

	p := &program{cfg: cfg}
	svc, err := service.New(p, svcConfig)
	if err != nil {
		log.Fatalf("initializing service wrapper: %v", err)
	}

	svcLogger, err := svc.Logger(nil)
	if err != nil {
		log.Fatalf("initializing service logger: %v", err)
	}

	p.logger = servicelog.New(servicelog.Options{
		Debug:   cfg.Debug,
		LogFile: cfg.LogFile,
		Service: svcLogger,
	})

	if err := svc.Run(); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
