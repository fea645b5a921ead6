package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/logger"
)

var (
	modelPath     string
	tokenizerPath string
	logLevel      string
	logFormat     string
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to .lcf checkpoint",
			Value:       "model.lcf",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "tokenizer",
			Usage:       "path to tokenizer.json",
			Value:       "tokenizer.json",
			Destination: &tokenizerPath,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Pretty(os.Stderr, level)
}
