package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"voice-agent-platform/internal/agent"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/job"
	"voice-agent-platform/internal/plugins/cartesia"
	"voice-agent-platform/internal/plugins/deepgram"
	"voice-agent-platform/internal/plugins/openai"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/internal/worker"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/utils"
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:          "voice-agent",
	Short:        "Voice assistant worker for inbound and outbound phone calls",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("voice-agent", version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker with an HTTP job intake",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer deps.close()

		w := worker.New(deps.entrypoint, deps.log)
		w.Cap = deps.cap
		w.Start(ctx)

		if deps.cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		r := gin.New()
		r.Use(gin.Recovery())
		r.Use(logger.Middleware(deps.log))
		worker.RegisterRoutes(r, w)

		srv := &http.Server{
			Addr:              deps.cfg.HTTPAddr(),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			deps.log.Info("worker listening", "addr", srv.Addr, "agent", deps.cfg.Agent.Name)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				deps.log.Error("http server failed", "err", err)
				stop()
			}
		}()

		<-ctx.Done()
		deps.log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			deps.log.Error("http shutdown failed", "err", err)
		}

		// Let live calls finish before pulling the plug.
		w.Drain(30 * time.Second)
		return nil
	},
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Run a single call job and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		room, _ := cmd.Flags().GetString("room")
		metadata, _ := cmd.Flags().GetString("metadata")
		if strings.TrimSpace(room) == "" {
			return fmt.Errorf("--room is required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer deps.close()

		return deps.entrypoint.Handle(ctx, job.Job{RoomName: room, Metadata: metadata})
	},
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List registered persona variants",
	Run: func(cmd *cobra.Command, args []string) {
		for _, v := range agent.Variants() {
			fmt.Println(v)
		}
	},
}

type deps struct {
	cfg        config.Config
	log        *slog.Logger
	entrypoint *agent.Entrypoint
	cap        worker.CapGuard

	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	d := &deps{cfg: cfg, log: log}

	control := telephony.NewLiveKit(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)

	stt, err := deepgram.New(deepgram.Config{
		APIKey:     cfg.Provider.DeepgramAPIKey,
		Model:      cfg.Agent.STTModel,
		SampleRate: 48000,
	})
	if err != nil {
		return nil, err
	}
	llm, err := openai.NewClient(cfg.Provider.OpenAIAPIKey, cfg.Provider.OpenAIBaseURL, cfg.Agent.LLMModel)
	if err != nil {
		return nil, err
	}
	tts, err := cartesia.New(cartesia.Config{
		APIKey:  cfg.Provider.CartesiaAPIKey,
		Model:   cfg.Agent.TTSModel,
		VoiceID: cfg.Agent.TTSVoice,
	})
	if err != nil {
		return nil, err
	}

	persona, err := agent.PersonaFor(cfg.Agent.Variant)
	if err != nil {
		return nil, err
	}

	callsRepo := calls.Repository(calls.NewMemoryRepository())
	if cfg.DB.Enabled() {
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = db.Close() })
		callsRepo = calls.NewPostgresRepository(db)
	}
	callsSvc := calls.NewService(callsRepo, log)

	if cfg.Agent.MaxActiveCalls > 0 {
		if cfg.Redis.Enabled() {
			rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
			if err != nil {
				return nil, err
			}
			d.closers = append(d.closers, func() { _ = rdb.Close() })
			d.cap = worker.NewRedisCap(rdb, cfg.Agent.MaxActiveCalls, cfg.Agent.CallCapTTL)
		} else {
			d.cap = worker.NewMemoryCap(cfg.Agent.MaxActiveCalls)
		}
	}

	d.entrypoint = &agent.Entrypoint{
		Control: control,
		Calls:   callsSvc,
		STT:     stt,
		LLM:     llm,
		TTS:     tts,
		Connect: func(ctx context.Context, room string) (agent.RoomTransport, error) {
			return telephony.ConnectRoom(ctx, telephony.RoomConfig{
				URL:              cfg.LiveKit.URL,
				APIKey:           cfg.LiveKit.APIKey,
				APISecret:        cfg.LiveKit.APISecret,
				RoomName:         room,
				Identity:         cfg.Agent.Name,
				NoiseSuppression: true,
			}, log)
		},
		Persona:        persona,
		TrunkID:        cfg.Trunk.OutboundTrunkID,
		RingTimeout:    cfg.Agent.RingTimeout,
		PollInterval:   cfg.Agent.PollInterval,
		VADThreshold:   cfg.Agent.VADThreshold,
		StrictMetadata: cfg.Agent.StrictMetadata,
		Log:            log,
	}
	return d, nil
}

func main() {
	jobCmd.Flags().String("room", "", "room name of the call")
	jobCmd.Flags().String("metadata", "", "raw job metadata JSON")

	rootCmd.AddCommand(versionCmd, serveCmd, jobCmd, personasCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
