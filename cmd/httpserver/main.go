package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/docsig/signature-service/api/signhandler"
	"github.com/docsig/signature-service/common"
	"github.com/docsig/signature-service/directory"
	"github.com/docsig/signature-service/httpserver"
	"github.com/docsig/signature-service/signing"
	"github.com/docsig/signature-service/storage"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "storage-uri",
		Value: "file://./keydir",
		Usage: "directory storage backend: memory://, file://<path> or s3://<bucket>/<prefix>",
	},
	&cli.Int64Flag{
		Name:  "max-upload-bytes",
		Value: 32 << 20,
		Usage: "maximum accepted request body size in bytes",
	},
	&cli.IntFlag{
		Name:  "min-container-password-len",
		Value: 1,
		Usage: "minimum password length for new certificate containers",
	},
	&cli.StringFlag{
		Name:  "sign-reason",
		Value: "Document approval",
		Usage: "reason recorded in PDF signature dictionaries",
	},
	&cli.StringFlag{
		Name:  "sign-location",
		Value: "",
		Usage: "location recorded in PDF signature dictionaries",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: "signature-service",
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func main() {
	app := &cli.App{
		Name:  "signature-server",
		Usage: "Serve the document signature API",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			storageURI := cCtx.String("storage-uri")
			logJSON := cCtx.Bool("log-json")
			logDebug := cCtx.Bool("log-debug")
			logUID := cCtx.Bool("log-uid")
			logService := cCtx.String("log-service")
			enablePprof := cCtx.Bool("pprof")
			drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   logDebug,
				JSON:    logJSON,
				Service: logService,
				Version: common.Version,
			})

			if logUID {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			store, err := storage.NewFactory(logger).BackendFor(storageURI)
			if err != nil {
				logger.Error("Failed to create storage backend", "err", err, "uri", storageURI)
				return err
			}
			logger.Info("Using storage backend", "backend", store.Name())

			dir, err := directory.New(store, logger)
			if err != nil {
				logger.Error("Failed to load key directory", "err", err)
				return err
			}
			svc := signing.New(dir, logger)

			handler := signhandler.NewHandler(svc, dir, signhandler.Config{
				MaxUploadBytes:          cCtx.Int64("max-upload-bytes"),
				MinContainerPasswordLen: cCtx.Int("min-container-password-len"),
				SignReason:              cCtx.String("sign-reason"),
				SignLocation:            cCtx.String("sign-location"),
			}, logger)

			cfg := &httpserver.HTTPServerConfig{
				ListenAddr:               listenAddr,
				Log:                      logger,
				EnablePprof:              enablePprof,
				DrainDuration:            drainDuration,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}

			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
