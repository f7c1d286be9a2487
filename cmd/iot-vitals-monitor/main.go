package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/alerts"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/dashboard"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/events"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/ingestion"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/retention"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/thresholds"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/alertstore"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/cache"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/mqtt"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/notification"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/router"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/timeseries"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/presentation/api"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/presentation/api/auth"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/presentation/live"
	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const serviceName string = "iot-vitals-monitor"

type flagType int
type flagMap map[flagType]string

const (
	listenAddress flagType = iota
	servicePort

	policiesFile
	configurationFile
	devicesFile

	jwtSecret

	redisAddr
	redisPassword
	redisDB

	telegramToken
	telegramChatID
	rabbitHost

	mqttBroker
	mqttTopic
	mqttClientID
	mqttUsername
	mqttPassword

	retentionInterval
	deviceInactivity

	devmode
)

func defaultFlags() flagMap {
	return flagMap{
		listenAddress: "0.0.0.0",
		servicePort:   "8080",

		policiesFile:      "/opt/diwise/config/authz.rego",
		configurationFile: "/opt/diwise/config/config.yaml",
		devicesFile:       "/opt/diwise/config/devices.csv",

		redisDB: "0",

		mqttTopic:    mqtt.DefaultTopic,
		mqttClientID: serviceName,

		retentionInterval: retention.DefaultInterval.String(),
		deviceInactivity:  "0s",

		devmode: "false",
	}
}

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, logger, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion)
	defer cleanup()

	ctx, flags := parseExternalConfig(ctx, defaultFlags())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := os.ReadFile(flags[configurationFile])
	exitIf(err, logger, "could not read configuration file")

	policies, err := os.Open(flags[policiesFile])
	exitIf(err, logger, "unable to open opa policy file")
	defer policies.Close()

	devices, err := os.Open(flags[devicesFile])
	exitIf(err, logger, "could not open devices file")
	defer devices.Close()

	var messenger messaging.MsgContext
	if flags[rabbitHost] != "" {
		messenger, err = messaging.Initialize(messaging.LoadConfiguration(serviceName, logger))
		exitIf(err, logger, "failed to init messenger")
	}

	svc, err := initialize(ctx, flags, cfg, policies, devices, messenger)
	exitIf(err, logger, "failed to initialize service")

	svc.start(ctx)

	server := &http.Server{
		Addr:              net.JoinHostPort(flags[listenAddress], flags[servicePort]),
		Handler:           svc.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("starting to listen for connections")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("failed to start request router")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down ...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shut down http server")
	}

	svc.stop()
}

type service struct {
	router   *chi.Mux
	sink     alerts.Sink
	sweeper  retention.Sweeper
	registry *live.Registry
	mqtt     *mqtt.Client
	closers  []func()
}

func (s *service) start(ctx context.Context) {
	s.sink.Start(ctx)
	s.sweeper.Start(ctx)
}

func (s *service) stop() {
	ctx := context.Background()
	log := logging.GetFromContext(ctx)

	if n, err := s.registry.Broadcast(ctx, types.NewSystemNotice("server shutting down")); err != nil {
		log.Warn().Err(err).Msg("failed to broadcast shutdown notice")
	} else if n > 0 {
		log.Info().Int("connections", n).Msg("notified live connections of shutdown")
	}

	s.sweeper.Stop()

	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}

	s.sink.Stop()

	for _, closer := range s.closers {
		closer()
	}
}

// initialize wires the service. A nil messenger disables alert events and AMQP ingestion.
func initialize(ctx context.Context, flags flagMap, cfg []byte, policies, devices io.Reader, messenger messaging.MsgContext) (*service, error) {
	log := logging.GetFromContext(ctx)

	svc := &service{}

	table, err := thresholds.LoadConfiguration(bytes.NewReader(cfg))
	if err != nil {
		return nil, err
	}

	repo, err := database.NewDeviceRepository(connector(ctx, flags))
	if err != nil {
		return nil, err
	}

	if err = database.Seed(ctx, repo, devices); err != nil {
		return nil, err
	}

	client := redisClient(ctx, flags)
	if client != nil {
		svc.closers = append(svc.closers, func() { client.Close() })
	}

	series := timeseries.NewMemoryStore()
	if client != nil {
		series = timeseries.NewTieredStore(timeseries.NewRedisStore(client), series)
	}

	notifiers, closers, err := newNotifiers(ctx, flags, cfg, messenger)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, closers...)

	svc.sink = alerts.NewSink(alertstore.New(client), alerts.DefaultConfig(), notifiers...)

	if flags[jwtSecret] == "" {
		log.Warn().Msg("JWT_SECRET is not set, all tokens will be rejected")
	}

	validator := auth.NewTokenValidator(flags[jwtSecret])
	svc.registry = live.New(validator, log)

	ingester := ingestion.New(repo, series, thresholds.NewEvaluator(table), svc.sink, svc.registry)

	if messenger != nil {
		messenger.RegisterTopicMessageHandler(ingestion.VitalsReceivedTopic, ingestion.NewVitalsReceivedHandler(ingester))
	}
	dash := dashboard.New(series, svc.sink, cache.New(client))

	inactivity := durationOrDefault(flags[deviceInactivity], 0)
	svc.sweeper = retention.New(series, durationOrDefault(flags[retentionInterval], retention.DefaultInterval), timeseries.Retention,
		retention.WithInactiveDevices(repo, inactivity))

	if flags[mqttBroker] != "" {
		svc.mqtt, err = mqtt.NewClient(mqtt.Config{
			Broker:   flags[mqttBroker],
			ClientID: flags[mqttClientID],
			Username: flags[mqttUsername],
			Password: flags[mqttPassword],
			Topic:    flags[mqttTopic],
		}, log)
		if err != nil {
			return nil, err
		}

		if err = svc.mqtt.Subscribe(mqtt.NewMessageHandler(ctx, ingester)); err != nil {
			return nil, err
		}
	}

	svc.router, err = api.RegisterHandlers(ctx, router.New(serviceName), policies, validator, ingester, series, svc.sink, dash, svc.registry, repo)
	if err != nil {
		return nil, err
	}

	return svc, nil
}

func connector(ctx context.Context, flags flagMap) database.ConnectorFunc {
	log := logging.GetFromContext(ctx)

	dbCfg := database.LoadConfigFromEnv(ctx)

	if flags[devmode] == "true" || dbCfg.Host == "" {
		log.Warn().Msg("no database host configured, using in-memory sqlite")
		return database.NewSQLiteConnector(ctx)
	}

	return database.NewPostgreSQLConnector(ctx, dbCfg)
}

// redisClient returns nil when no redis is configured or reachable, leaving the memory tiers in charge.
func redisClient(ctx context.Context, flags flagMap) *redis.Client {
	log := logging.GetFromContext(ctx)

	if flags[redisAddr] == "" {
		log.Info().Msg("no redis configured, using in-memory stores")
		return nil
	}

	db, _ := strconv.Atoi(flags[redisDB])

	client := cache.NewRedisClient(cache.Config{
		Addr:     flags[redisAddr],
		Password: flags[redisPassword],
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := cache.Ping(pingCtx, client); err != nil {
		log.Warn().Err(err).Str("addr", flags[redisAddr]).Msg("redis not reachable at startup, will keep retrying on use")
	}

	return client
}

func newNotifiers(ctx context.Context, flags flagMap, cfg []byte, messenger messaging.MsgContext) ([]alerts.Notifier, []func(), error) {
	log := logging.GetFromContext(ctx)

	notifiers := []alerts.Notifier{}
	closers := []func(){}

	if flags[telegramToken] != "" && flags[telegramChatID] != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: flags[telegramToken],
			ChatID:   flags[telegramChatID],
		}))
		log.Info().Msg("telegram notifications enabled")
	}

	if messenger != nil {
		notifiers = append(notifiers, notification.NewRabbitMQNotifier(messenger))
		closers = append(closers, messenger.Close)
		log.Info().Msg("rabbitmq alert events enabled")
	}

	eventsCfg, err := events.LoadConfiguration(bytes.NewReader(cfg))
	if err != nil {
		return nil, nil, err
	}

	if len(eventsCfg.Notifications) > 0 {
		sender, err := events.New(eventsCfg)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, sender)
		log.Info().Msg("cloudevents notifications enabled")
	}

	return notifiers, closers, nil
}

func durationOrDefault(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func parseExternalConfig(ctx context.Context, flags flagMap) (context.Context, flagMap) {
	log := logging.GetFromContext(ctx)

	// Allow environment variables to override certain defaults
	envOrDef := func(name string, def string) string {
		return env.GetVariableOrDefault(log, name, def)
	}

	flags[listenAddress] = envOrDef("LISTEN_ADDRESS", flags[listenAddress])
	flags[servicePort] = envOrDef("SERVICE_PORT", flags[servicePort])

	flags[policiesFile] = envOrDef("POLICIES_FILE", flags[policiesFile])
	flags[configurationFile] = envOrDef("CONFIG_FILE", flags[configurationFile])
	flags[devicesFile] = envOrDef("DEVICES_FILE", flags[devicesFile])

	flags[jwtSecret] = envOrDef("JWT_SECRET", flags[jwtSecret])

	flags[redisAddr] = envOrDef("REDIS_ADDR", flags[redisAddr])
	flags[redisPassword] = envOrDef("REDIS_PASSWORD", flags[redisPassword])
	flags[redisDB] = envOrDef("REDIS_DB", flags[redisDB])

	flags[telegramToken] = envOrDef("TELEGRAM_BOT_TOKEN", flags[telegramToken])
	flags[telegramChatID] = envOrDef("TELEGRAM_CHAT_ID", flags[telegramChatID])
	flags[rabbitHost] = envOrDef("RABBITMQ_HOST", flags[rabbitHost])

	flags[mqttBroker] = envOrDef("MQTT_BROKER", flags[mqttBroker])
	flags[mqttTopic] = envOrDef("MQTT_TOPIC", flags[mqttTopic])
	flags[mqttClientID] = envOrDef("MQTT_CLIENT_ID", flags[mqttClientID])
	flags[mqttUsername] = envOrDef("MQTT_USERNAME", flags[mqttUsername])
	flags[mqttPassword] = envOrDef("MQTT_PASSWORD", flags[mqttPassword])

	flags[retentionInterval] = envOrDef("RETENTION_INTERVAL", flags[retentionInterval])
	flags[deviceInactivity] = envOrDef("DEVICE_INACTIVITY", flags[deviceInactivity])

	flags[devmode] = envOrDef("DEV_MODE", flags[devmode])

	apply := func(f flagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("policies", "an authorization policy file", apply(policiesFile))
	flag.Func("devices", "list of known devices", apply(devicesFile))
	flag.Func("config", "thresholds and notifications configuration file", apply(configurationFile))
	flag.Func("devmode", "enable dev mode", apply(devmode))
	flag.Parse()

	return ctx, flags
}

func exitIf(err error, logger zerolog.Logger, msg string) {
	if err != nil {
		logger.Fatal().Err(err).Msg(msg)
	}
}
