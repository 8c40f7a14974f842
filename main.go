package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/uvcbridge/cmd"
	"github.com/smazurov/uvcbridge/internal/api"
	"github.com/smazurov/uvcbridge/internal/bridge"
	"github.com/smazurov/uvcbridge/internal/command"
	"github.com/smazurov/uvcbridge/internal/config"
	"github.com/smazurov/uvcbridge/internal/events"
	"github.com/smazurov/uvcbridge/internal/gadget"
	"github.com/smazurov/uvcbridge/internal/led"
	"github.com/smazurov/uvcbridge/internal/logging"
	"github.com/smazurov/uvcbridge/internal/metrics/exporters"
	"github.com/smazurov/uvcbridge/internal/preview"
	"github.com/smazurov/uvcbridge/internal/serial"
	"github.com/smazurov/uvcbridge/internal/source"
	"github.com/smazurov/uvcbridge/internal/state"
	"github.com/smazurov/uvcbridge/internal/systemd"
	"github.com/smazurov/uvcbridge/internal/transport/loopback"
	"github.com/smazurov/uvcbridge/internal/updater"
	"github.com/smazurov/uvcbridge/internal/uvc"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Device settings
	ProfilesFile string `help:"Stream profile file" default:"profiles.toml" toml:"device.profiles_file" env:"DEVICE_PROFILES_FILE"`
	StateFile    string `help:"Persisted device state file" default:"state.toml" toml:"device.state_file" env:"DEVICE_STATE_FILE"`

	// Gadget settings
	GadgetEnabled bool   `help:"Assemble and bind the configfs gadget" default:"false" toml:"gadget.enabled" env:"GADGET_ENABLED"`
	GadgetName    string `help:"Gadget name under configfs" default:"uvcbridge" toml:"gadget.name" env:"GADGET_NAME"`
	GadgetUDC     string `help:"UDC name to bind, empty picks the first" default:"" toml:"gadget.udc" env:"GADGET_UDC"`

	// Serial settings
	SerialPort string `help:"CDC ACM tty path, empty disables the command port" default:"" toml:"serial.port" env:"SERIAL_PORT"`

	// Preview settings
	PreviewRTPTarget string `help:"RTP target address for the wifi preview" default:"" toml:"preview.rtp_target" env:"PREVIEW_RTP_TARGET"`

	// Update settings
	UpdateRepository string `help:"GitHub repository for self-updates" default:"smazurov/uvcbridge" toml:"update.repository" env:"UPDATE_REPOSITORY"`
	UpdatePrerelease bool   `help:"Include prereleases when checking for updates" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Features settings
	FeaturesLEDControl bool `help:"Enable LED control" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingUVC     string `help:"UVC pacer logging level" default:"info" toml:"logging.uvc" env:"LOGGING_UVC"`
	LoggingBridge  string `help:"Bridge logging level" default:"info" toml:"logging.bridge" env:"LOGGING_BRIDGE"`
	LoggingSerial  string `help:"Serial port logging level" default:"info" toml:"logging.serial" env:"LOGGING_SERIAL"`
	LoggingCommand string `help:"Command registry logging level" default:"info" toml:"logging.command" env:"LOGGING_COMMAND"`
	LoggingPreview string `help:"Preview logging level" default:"info" toml:"logging.preview" env:"LOGGING_PREVIEW"`
	LoggingGadget  string `help:"Gadget builder logging level" default:"info" toml:"logging.gadget" env:"LOGGING_GADGET"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingUpdater string `help:"Updater logging level" default:"info" toml:"logging.updater" env:"LOGGING_UPDATER"`
}

// newSource builds the frame source a profile names.
func newSource(sp config.StreamProfile) source.FrameSource {
	if sp.Source == config.SourceSpool {
		return source.NewSpool(sp.SpoolDir, logging.GetLogger("source"))
	}
	return source.NewPattern(logging.GetLogger("source"))
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"uvc":     opts.LoggingUVC,
				"bridge":  opts.LoggingBridge,
				"serial":  opts.LoggingSerial,
				"command": opts.LoggingCommand,
				"preview": opts.LoggingPreview,
				"gadget":  opts.LoggingGadget,
				"api":     opts.LoggingAPI,
				"updater": opts.LoggingUpdater,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		eventBus := events.New()

		// Feed new log records onto the bus for the SSE log stream.
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		store := state.NewStore(opts.StateFile)
		if loadErr := store.Load(); loadErr != nil {
			logger.Warn("Failed to load device state, starting fresh", "error", loadErr)
		}

		profileStore := config.NewProfileStore(opts.ProfilesFile)
		if loadErr := profileStore.Load(); loadErr != nil {
			logger.Error("Invalid stream profiles", "error", loadErr, "profiles", opts.ProfilesFile)
			os.Exit(1)
		}
		profiles := profileStore.Streams()

		transport := loopback.New(loopback.Options{Logger: logging.GetLogger("loopback")})
		device, err := uvc.New(uvc.Options{
			Transport: transport,
			Bus:       eventBus,
			Logger:    logging.GetLogger("uvc"),
		})
		if err != nil {
			logger.Error("Failed to create device", "error", err)
			os.Exit(1)
		}
		transport.SetHandler(device)

		for i, sp := range profiles {
			cfg := uvc.StreamConfig{
				Source:    newSource(sp),
				Buffer:    make([]byte, sp.BufferBytes()),
				Catalog:   sp.Catalog(),
				FrameRate: sp.Formats[0].FrameRate,
			}
			if cfgErr := device.Configure(i, cfg); cfgErr != nil {
				logger.Error("Failed to configure stream", "stream", i, "error", cfgErr)
				os.Exit(1)
			}
		}

		// The preview pump gets its own source instance: in wifi mode the
		// pacers idle and the pump owns start/stop of its source.
		previewFormat := profiles[0].Formats[0]
		pump := preview.NewPump(preview.PumpOptions{
			Source:    newSource(profiles[0]),
			Width:     previewFormat.Width,
			Height:    previewFormat.Height,
			FrameRate: previewFormat.FrameRate,
			Logger:    logging.GetLogger("preview"),
		})
		hub := preview.NewHub(logging.GetLogger("preview"))
		pump.Attach(hub.Broadcast)

		var rtpSender *preview.RTPSender
		if opts.PreviewRTPTarget != "" {
			sender, rtpErr := preview.NewRTPSender(opts.PreviewRTPTarget, previewFormat.FrameRate, logging.GetLogger("preview"))
			if rtpErr != nil {
				logger.Warn("Failed to create RTP sender", "error", rtpErr, "target", opts.PreviewRTPTarget)
			} else {
				rtpSender = sender
				pump.Attach(func(frame []byte) {
					if sendErr := rtpSender.SendFrame(frame); sendErr != nil {
						logger.Debug("RTP send failed", "error", sendErr)
					}
				})
			}
		}

		var units bridge.UnitManager
		sysdManager, mgrErr := systemd.NewManager(context.Background())
		if mgrErr != nil {
			logger.Warn("Systemd unavailable, restarts fall back to SIGTERM", "error", mgrErr)
		} else {
			units = sysdManager
		}

		bridgeSvc := bridge.New(bridge.Options{
			Device:   device,
			Store:    store,
			Profiles: profiles,
			Pump:     pump,
			Units:    units,
			Bus:      eventBus,
			Logger:   logging.GetLogger("bridge"),
		})

		registry := command.NewRegistry(logging.GetLogger("command"), eventBus)
		command.RegisterBuiltins(registry, command.BuiltinOptions{
			Serial:  store.Serial,
			Modes:   bridgeSvc,
			Pauser:  bridgeSvc,
			Restart: bridgeSvc.Restart,
		})

		updateService, updErr := updater.NewService(&updater.Options{
			Repository: opts.UpdateRepository,
			Prerelease: opts.UpdatePrerelease,
			Restart: func() {
				if restartErr := bridgeSvc.Restart(); restartErr != nil {
					logger.Error("Restart after update failed", "error", restartErr)
				}
			},
		})
		if updErr != nil {
			logger.Warn("Update service unavailable", "error", updErr)
			updateService = nil
		}

		var ledManager *led.Manager
		if opts.FeaturesLEDControl {
			logger.Info("LED control enabled, initializing")
			ledManager = led.NewManager(led.New(logger), eventBus, logger)
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Bridge:            bridgeSvc,
			Registry:          registry,
			Bus:               eventBus,
			UpdateService:     updateService,
			PrometheusHandler: exporters.HTTPHandler(),
			PreviewMJPEG:      preview.MJPEGHandler(pump, logging.GetLogger("preview")),
			PreviewWS:         http.HandlerFunc(hub.HandleWS),
		})

		// Live reload of log levels when the config file changes. Only the
		// [logging] section is mutable at runtime; everything else shapes
		// the gadget and needs a restart.
		watcher := config.NewConfigWatcher(
			opts.Config,
			func(path string) (logging.Config, error) {
				return config.LoadLoggingConfig(path), nil
			},
			logger,
			config.WithDebounce[logging.Config](time.Second),
		)
		watcher.OnReload(func(cfg logging.Config) {
			for module, level := range cfg.Modules {
				if logging.SetModuleLevel(module, level) {
					logger.Info("Log level changed", "module", module, "level", level)
				}
			}
		})

		runCtx, cancelRun := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			serialPath := opts.SerialPort

			if opts.GadgetEnabled {
				builder := gadget.NewBuilder("", "", logging.GetLogger("gadget"))
				catalogs := make([][]uvc.FrameDesc, len(profiles))
				for i, sp := range profiles {
					catalogs[i] = sp.Catalog()
				}
				gadgetCfg := gadget.Config{
					Name:    opts.GadgetName,
					Serial:  store.Serial(),
					Streams: catalogs,
					WithACM: true,
				}
				if gadgetErr := builder.Create(gadgetCfg); gadgetErr != nil {
					logger.Warn("Gadget setup failed", "error", gadgetErr)
				} else {
					udc := opts.GadgetUDC
					if udc == "" {
						if first, udcErr := builder.FirstUDC(); udcErr == nil {
							udc = first
						} else {
							logger.Warn("No UDC found", "error", udcErr)
						}
					}
					if udc != "" {
						if bindErr := builder.Bind(opts.GadgetName, udc); bindErr != nil {
							logger.Warn("Gadget bind failed", "error", bindErr, "udc", udc)
						}
					}
					if serialPath == "" {
						if acm, acmErr := builder.ACMPortPath(opts.GadgetName); acmErr == nil {
							serialPath = acm
						} else {
							logger.Warn("ACM port not found", "error", acmErr)
						}
					}
				}
			}

			if startErr := device.Start(runCtx); startErr != nil {
				logger.Error("Failed to start device", "error", startErr)
				os.Exit(1)
			}

			if startErr := bridgeSvc.Start(runCtx); startErr != nil {
				logger.Error("Failed to apply persisted device state", "error", startErr)
				os.Exit(1)
			}

			if serialPath != "" {
				port := serial.NewPort(serial.PortOptions{
					Path:   serialPath,
					Logger: logging.GetLogger("serial"),
				}, registry.Dispatch)
				go func() {
					if runErr := port.Run(runCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
						logger.Error("Serial port stopped", "error", runErr)
					}
				}()
			} else {
				logger.Info("No serial port configured, command channel is API only")
			}

			if ledManager != nil {
				ledManager.Start()
			}

			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config watcher failed to start", "error", watchErr)
			}

			if notified, notifyErr := systemd.NotifyReady(); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			} else if notified {
				logger.Debug("Notified systemd of readiness")
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if _, notifyErr := systemd.NotifyStopping(); notifyErr != nil {
				logger.Debug("Failed to notify systemd", "error", notifyErr)
			}

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			cancelRun()
			bridgeSvc.Stop()
			device.Stop()
			hub.Close()
			if rtpSender != nil {
				if closeErr := rtpSender.Close(); closeErr != nil {
					logger.Debug("Error closing RTP sender", "error", closeErr)
				}
			}

			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Debug("Error stopping config watcher", "error", stopErr)
			}
			if ledManager != nil {
				ledManager.Stop()
			}
			if sysdManager != nil {
				sysdManager.Close()
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateValidateCmd())
	cli.Root().AddCommand(cmd.CreateSimulateCmd())

	cli.Run()
}
