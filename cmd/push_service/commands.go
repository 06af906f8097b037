package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/streadway/amqp"
	"github.com/urfave/cli/v2"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/consumer"
	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
	"github.com/CyberwizD/fcm-push-dispatcher/internal/routes"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP push endpoint",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := startHTTPServer(rt, time.Now())
			<-ctx.Done()
			shutdownHTTP(srv, rt.logger)
			rt.logger.Info("push service stopped")
			return nil
		},
	}
}

func consumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "consume",
		Usage: "consume push requests from RabbitMQ, serving health and metrics over HTTP",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.cfg.RequireQueue(); err != nil {
				return err
			}

			conn, err := amqp.Dial(rt.cfg.RabbitURL)
			if err != nil {
				return fmt.Errorf("failed to connect rabbitmq: %w", err)
			}
			defer conn.Close()

			base := consumer.NewBaseConsumer(
				conn,
				rt.cfg.PushQueue,
				rt.cfg.DeadLetterQueue,
				rt.cfg.PrefetchCount,
				rt.cfg.WorkerCount,
				rt.logger,
			)
			pushConsumer := consumer.NewPushConsumer(base, rt.processor, rt.logger)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := startHTTPServer(rt, time.Now())
			if err := pushConsumer.Start(ctx); err != nil {
				rt.logger.Error("push consumer exited", slog.Any("error", err))
			}
			shutdownHTTP(srv, rt.logger)
			rt.logger.Info("push service stopped")
			return nil
		},
	}
}

var requestFlags = []cli.Flag{
	&cli.StringFlag{Name: "user", Usage: "user id whose devices receive the push", Required: true},
	&cli.StringFlag{Name: "title", Usage: "notification title", Required: true},
	&cli.StringFlag{Name: "body", Usage: "notification body", Required: true},
	&cli.StringSliceFlag{Name: "data", Usage: "data entry as key=value, repeatable"},
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "send one notification and print the delivery report",
		Flags: requestFlags,
		Action: func(c *cli.Context) error {
			req, err := requestFromFlags(c)
			if err != nil {
				return err
			}
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(c.Context, rt.cfg.RequestTimeout)
			defer cancel()

			result, err := rt.processor.Process(ctx, req)
			if err != nil {
				return err
			}

			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")
			if result.NoTargets() {
				return out.Encode(map[string]interface{}{
					"message": "no device tokens found for user",
					"userId":  result.UserID,
				})
			}
			return out.Encode(result.Report)
		},
	}
}

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "enqueue",
		Usage: "publish a push request to the RabbitMQ push queue",
		Flags: requestFlags,
		Action: func(c *cli.Context) error {
			req, err := requestFromFlags(c)
			if err != nil {
				return err
			}
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.cfg.RequireQueue(); err != nil {
				return err
			}

			conn, err := amqp.Dial(rt.cfg.RabbitURL)
			if err != nil {
				return fmt.Errorf("failed to connect rabbitmq: %w", err)
			}
			defer conn.Close()

			topology := consumer.Topology{
				Exchange:        consumer.DefaultExchange,
				Queue:           rt.cfg.PushQueue,
				DeadLetterQueue: rt.cfg.DeadLetterQueue,
			}
			if err := consumer.Publish(c.Context, conn, topology, req); err != nil {
				return err
			}
			rt.logger.Info("push request enqueued", slog.String("user_id", req.UserID))
			return nil
		},
	}
}

func requestFromFlags(c *cli.Context) (*models.SendRequest, error) {
	req := &models.SendRequest{
		UserID: c.String("user"),
		Title:  c.String("title"),
		Body:   c.String("body"),
	}
	for _, entry := range c.StringSlice("data") {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --data entry %q, expected key=value", entry)
		}
		if req.Data == nil {
			req.Data = map[string]interface{}{}
		}
		req.Data[key] = value
	}
	return req, nil
}

func startHTTPServer(rt *runtime, started time.Time) *http.Server {
	port := rt.cfg.HTTPPort
	if port == "" {
		port = "8082"
	}
	opts := routes.Options{
		Processor:      rt.processor,
		Registrar:      rt.tokens,
		Metrics:        rt.metrics,
		Logger:         rt.logger,
		Started:        started,
		RequestTimeout: rt.cfg.RequestTimeout,
	}
	if rt.redis != nil {
		opts.Releaser = rt.redis
	}
	handler := routes.NewRouter(opts)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		rt.logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rt.logger.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
