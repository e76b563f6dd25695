// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Command htserve runs an htcore.Server hosting a plain echo handler, wired for manual
// exercise and as a worked example of loading httpServer.* configuration through viper
// and cobra flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hexinfra/htcore/contrib/metrics"
	"github.com/hexinfra/htcore/contrib/tracing"
	"github.com/hexinfra/htcore/htcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "htserve",
		Short: "run an htcore HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, configFile)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "path to a YAML/JSON/TOML config file")
	cmd.Flags().String("host", "0.0.0.0", "httpServer.bindTarget.host")
	cmd.Flags().Int("port", 8080, "httpServer.bindTarget.port")
	cmd.Flags().String("security", "plaintext", "httpServer.transportSecurity.security")
	cmd.Flags().Bool("debug", false, "enable debug logging")
	cmd.Flags().String("metricsAddr", ":9090", "address to serve /metrics on, empty disables it")

	return cmd
}

func run(cmd *cobra.Command, configFile string) error {
	v := viper.New()
	v.SetEnvPrefix("HTSERVE")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			htcore.UseExitln("reading config file: " + err.Error())
			return nil
		}
	}

	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	security, _ := cmd.Flags().GetString("security")
	debug, _ := cmd.Flags().GetBool("debug")

	if !cmd.Flags().Changed("host") || !v.IsSet("httpServer.bindTarget.host") {
		v.Set("httpServer.bindTarget.host", host)
	}
	if !cmd.Flags().Changed("port") || !v.IsSet("httpServer.bindTarget.port") {
		v.Set("httpServer.bindTarget.port", port)
	}
	if !v.IsSet("httpServer.transportSecurity.security") {
		v.Set("httpServer.transportSecurity.security", security)
	}

	config, err := htcore.LoadConfig(v)
	if err != nil {
		// Bad or missing httpServer.* keys are operator error, not a runtime condition:
		// this mirrors the OnConfigure()-time UseExitln calls throughout this codebase's
		// own configuration layer.
		htcore.UseExitln(err.Error())
		return nil
	}

	level := "info"
	if debug {
		level = "debug"
		htcore.SetDebugLevel(2)
	}
	logger, err := htcore.NewLogger(htcore.LogConfig{Target: "stderr", Level: level})
	if err != nil {
		// Only NewLogger's log-file-open path can fail, and that's an OS resource
		// unavailable at startup, not a bad configuration value.
		htcore.EnvExitln(err.Error())
		return nil
	}

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	defer tracerProvider.Shutdown(context.Background())

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	handler := htcore.NewBuilder().
		Use(collector.Middleware()).
		Use(tracing.Middleware(tracing.Tracer(), "")).
		Build(echoHandler())

	server, err := htcore.New(config, handler, logger)
	if err != nil {
		htcore.UseExitln(err.Error())
		return nil
	}

	metricsAddr, _ := cmd.Flags().GetString("metricsAddr")
	if metricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:    metricsAddr,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer metricsSrv.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("htserve starting", "bindAddress", config.BindAddress())
	err = server.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		// A listener that fails to bind or a shutdown that doesn't complete in time is
		// an environment condition (port taken, resource exhausted), the same class
		// EnvExitln covers at the srv.go Serve() boundary in this codebase's own
		// listener-open paths.
		htcore.EnvExitln(err.Error())
		return nil
	}
	logger.Info("htserve stopped")
	return nil
}

// echoHandler streams the request body back as the response body, carrying the
// request's trailers over to the response, unchanged.
func echoHandler() htcore.Handler {
	return func(head htcore.RequestHead, ctx *htcore.RequestContext, body *htcore.RequestConcludingReader, sender *htcore.ResponseSender) error {
		var echoed []byte
		trailers, err := body.ConsumeAndConclude(func(r *htcore.AsyncReader[byte]) error {
			for {
				var chunk []byte
				readErr := r.Read(-1, func(c []byte) error {
					chunk = append([]byte(nil), c...)
					return nil
				})
				if readErr != nil {
					return readErr
				}
				if len(chunk) == 0 {
					return nil
				}
				echoed = append(echoed, chunk...)
			}
		})
		if err != nil {
			return err
		}

		writer, err := sender.Send(htcore.ResponseHead{StatusCode: 200})
		if err != nil {
			return err
		}
		return writer.WriteAndConclude(echoed, trailers)
	}
}
