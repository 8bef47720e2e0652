package logger

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init configures the standard logrus logger. When file is set, output is teed to a rotated log file.
func Init(level string, file string) error {
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}

	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if file == "" {
		log.SetOutput(os.Stdout)
		return nil
	}

	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}))

	return nil
}
