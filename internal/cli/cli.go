package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	internal_http "github.com/ignatij/approvalflow/internal/http"
	"github.com/ignatij/approvalflow/internal/log"
	internal_storage "github.com/ignatij/approvalflow/internal/storage"
	"github.com/ignatij/approvalflow/pkg/service"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Run one timeout/reminder batch tick and print the report",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()

			svc := service.NewTimeoutService(store, log.GetLogger())
			workers, err := cmd.Flags().GetInt("workers")
			if err == nil {
				svc.SetWorkers(workers)
			}

			report, err := svc.ProcessTimeouts(time.Now().UTC())
			if err != nil {
				log.GetLogger().Errorf("Approval timeout processing failed: %v", err)
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				log.GetLogger().Errorf("Failed to encode report: %v", err)
				os.Exit(1)
			}
			fmt.Fprintln(os.Stdout, string(out))
		},
	}
	processCmd.Flags().Int("workers", 0, "Number of parallel workers (0 = number of CPUs)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP for an external scheduler",
		Run: func(cmd *cobra.Command, args []string) {
			port, err := cmd.Flags().GetString("port")
			if err != nil || port == "" {
				port = "8080"
			}
			store := initStore(cmd)
			defer store.Close()

			if err := internal_http.StartServer(port, store); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "Port to listen on")

	rootCmd.AddCommand(processCmd, serveCmd)
}

func initStore(cmd *cobra.Command) *internal_storage.PostgresStore {
	connStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	if connStr == "" {
		connStr = connStrFromEnv()
	}
	store, err := internal_storage.InitStore(connStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}

func connStrFromEnv() string {
	if err := godotenv.Load(); err != nil {
		log.GetLogger().Infof("No .env file found: %v. Proceeding with environment variables.", err)
	}
	dbUsername := os.Getenv("DB_USERNAME")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUsername == "" || dbPassword == "" || dbHost == "" || dbPort == "" || dbName == "" {
		fmt.Println("Error: --db flag or complete DB_* env vars (DB_USERNAME, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME) required")
		os.Exit(1)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUsername, dbPassword, dbHost, dbPort, dbName)
}
