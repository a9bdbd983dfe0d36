// =============================================================================
// SPACELOCK - AUTHORITATIVE SERVER
// =============================================================================
// This process is the authoritative simulation server: it owns the
// frame clock, the command log, and the session roster, and is the
// single source of truth every connected client reconciles against via
// hash checks and full-state resync.
// =============================================================================
package main

import (
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"spacelock/internal/admin"
	"spacelock/internal/config"
	"spacelock/internal/netcode/server"
	"spacelock/internal/netcode/session"
	"spacelock/internal/netcode/store"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("spacelock: no .env file found, using environment variables only")
		}
	}

	root := &cobra.Command{
		Use:   "spacelock-server",
		Short: "Authoritative TSS simulation server",
		RunE:  runServer,
	}

	root.Flags().String("listen", "", "QUIC listen address, overrides LISTEN_ADDR")
	root.Flags().String("admin", "", "admin HTTP listen address, overrides ADMIN_ADDR")
	root.Flags().String("store", "", "bbolt snapshot store path, overrides STORE_PATH; empty disables persistence")
	root.Flags().Bool("pprof", false, "mount /debug/pprof on the admin listener")

	if err := root.Execute(); err != nil {
		log.Fatalf("spacelock: %v", err)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	appCfg := config.Load()

	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		appCfg.Server.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("admin"); v != "" {
		appCfg.Server.AdminAddr = v
	}
	if cmd.Flags().Changed("store") {
		appCfg.Server.StorePath, _ = cmd.Flags().GetString("store")
	}
	enablePprof, _ := cmd.Flags().GetBool("pprof")

	log.Printf("spacelock: starting server — listen=%s admin=%s tickrate=%d delays=%v",
		appCfg.Server.ListenAddr, appCfg.Server.AdminAddr, appCfg.Sim.TickRate, appCfg.Sim.Delays)

	var st *store.Store
	if appCfg.Server.StorePath != "" {
		var err error
		st, err = store.Open(appCfg.Server.StorePath)
		if err != nil {
			return err
		}
		defer st.Close()
		log.Printf("spacelock: snapshot persistence enabled at %s", appCfg.Server.StorePath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tlsConf, err := session.GenerateServerTLSConfig()
	if err != nil {
		return err
	}

	roster := session.NewRoster(appCfg.Session.MaxPlayers)
	roster.SetRateLimit(appCfg.Sim.Limits.DatagramsPerSecond, appCfg.Sim.Limits.DatagramBurst)
	transport, err := session.NewServer(ctx, appCfg.Server.ListenAddr, tlsConf, roster, 1024)
	if err != nil {
		return err
	}

	ctrl := server.New(transport, roster, appCfg.Sim, appCfg.Session, st)

	adminRouter := admin.NewRouter(ctrl, admin.Config{EnablePprof: enablePprof})
	adminSrv := &http.Server{Addr: appCfg.Server.AdminAddr, Handler: adminRouter}
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("spacelock: admin server error: %v", err)
		}
	}()
	defer adminSrv.Close()

	log.Println("spacelock: server ready, press Ctrl+C to stop")
	err = ctrl.Run(ctx)
	if ctx.Err() != nil {
		log.Println("spacelock: server shutting down")
		return nil
	}
	return err
}
