package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	memcache "github.com/pior/memcache-text"
	"github.com/pior/memcache-text/codec"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	// Wrap is the number of characters to wrap the help text at
	Wrap int = 50
)

// app holds the configuration and the client shared by all commands.
type app struct {
	config *viper.Viper
	client *memcache.Client
	logger *zap.Logger
}

func newApp() *app {
	return &app{config: viper.New()}
}

// wrapString wraps a string at Wrap characters
func wrapString(text string) string {
	var lines []string
	var line strings.Builder

	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}

	return strings.Join(lines, "\n")
}

// setupClientFlags adds the connection and session flags to a command
func setupClientFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("servers", "localhost:11211", wrapString("Comma-separated list of servers as host[:port[:weight]]. The first one is the default server"))
	flags.String("server", "", wrapString("Server key (host:port) to send item commands to instead of the default server"))
	flags.String("serializer", "cbor", wrapString("Serializer for structured values (cbor, msgpack, json, json-array)"))
	flags.String("compression", "zlib", wrapString("Compression algorithm for large values (zlib, lz4, zstd, none)"))
	flags.Int("compression-threshold", codec.DefaultCompressionThreshold, wrapString("Values larger than this many bytes are compressed"))
	flags.String("prefix", "", wrapString("Prefix added to every key"))
	flags.Duration("timeout", 5*time.Second, wrapString("Timeout of each request"))
	flags.String("log-level", "warn", wrapString("Log level (debug, info, warn, error)"))
}

// initConfig loads env files and binds environment variables
func (a *app) initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	a.config.SetEnvPrefix("memcache")
	a.config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.config.AutomaticEnv()
}

// setup builds the logger and the client from flags and environment.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.client != nil {
		return nil
	}

	a.initConfig()
	if err := a.config.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	logger, err := newLogger(a.config.GetString("log-level"))
	if err != nil {
		return err
	}
	a.logger = logger

	servers, err := memcache.ParseServers(a.config.GetString("servers"))
	if err != nil {
		return err
	}

	client, err := memcache.New(memcache.Config{
		Timeout: a.config.GetDuration("timeout"),
		Logger:  logger,
	}, servers...)
	if err != nil {
		return err
	}

	opts, err := a.sessionOptions()
	if err == nil {
		err = client.SetOptions(opts)
	}
	if err != nil {
		client.Close()
		return err
	}

	a.client = client
	return nil
}

func (a *app) sessionOptions() (map[memcache.Option]any, error) {
	kind, err := codec.ParseSerializer(a.config.GetString("serializer"))
	if err != nil {
		return nil, err
	}

	opts := map[memcache.Option]any{
		memcache.OptPrefixKey:            a.config.GetString("prefix"),
		memcache.OptSerializer:           kind,
		memcache.OptCompressionThreshold: a.config.GetInt("compression-threshold"),
	}

	switch name := a.config.GetString("compression"); name {
	case "none", "":
		opts[memcache.OptCompression] = false
	default:
		c, err := codec.ParseCompression(name)
		if err != nil {
			return nil, err
		}
		opts[memcache.OptCompression] = true
		opts[memcache.OptCompressionType] = c
	}

	return opts, nil
}

func (a *app) teardown(*cobra.Command, []string) {
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// serverKey is the server item commands are sent to, empty for the default.
func (a *app) serverKey() string {
	return a.config.GetString("server")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	config := zap.NewDevelopmentConfig()
	config.Level = lvl
	config.OutputPaths = []string{"stderr"}
	return config.Build()
}
